/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookincubator/lucp/lucp/protocol"
	"github.com/facebookincubator/lucp/lucp/transport"
	"github.com/stretchr/testify/require"
)

type fixedPrep struct {
	status protocol.Status
	reason string
}

func (f fixedPrep) Prepare(uint32) (protocol.Status, string) { return f.status, f.reason }

func newTestSession(t *testing.T, cfg Config, prep LogPrep) (*Session, *transport.Conn) {
	t.Helper()
	serverRaw, clientRaw := net.Pipe()
	t.Cleanup(func() { _ = clientRaw.Close() })
	s := New(transport.New(serverRaw), cfg, prep, new(atomic.Bool))
	return s, transport.New(clientRaw)
}

func TestHappyPathReachesCompleted(t *testing.T) {
	s, client := newTestSession(t, Config{}, fixedPrep{status: protocol.StatusSuccess})

	done := make(chan State, 1)
	go func() { done <- s.Run() }()

	req := protocol.Make(10001, protocol.UploadRequest, protocol.StatusSuccess, []byte("Request log preparation"))
	require.NoError(t, client.Send(req))

	ack, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.AckStart, ack.Type)
	require.Equal(t, protocol.StatusSuccess, ack.Status)

	notify, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.NotifyDone, notify.Type)
	require.Equal(t, protocol.StatusSuccess, notify.Status)

	require.NoError(t, client.Send(protocol.Make(10001, protocol.FtpLoginResult, protocol.StatusSuccess, nil)))
	require.NoError(t, client.Send(protocol.Make(10001, protocol.FtpDownloadResult, protocol.StatusSuccess, nil)))

	require.Equal(t, Completed, <-done)
}

func TestVersionRejection(t *testing.T) {
	s, client := newTestSession(t, Config{ValidateVersion: true}, fixedPrep{status: protocol.StatusSuccess})

	done := make(chan State, 1)
	go func() { done <- s.Run() }()

	req := &protocol.Frame{VersionMajor: 2, VersionMinor: 0, Sequence: 1, Type: protocol.UploadRequest}
	require.NoError(t, client.Send(req))

	reply, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.AckStart, reply.Type)
	require.Equal(t, protocol.StatusFailed, reply.Status)
	require.Equal(t, "Bad version", string(reply.Payload))

	require.Equal(t, Error, <-done)
}

func TestLogPrepFailureGoesToError(t *testing.T) {
	s, client := newTestSession(t, Config{}, fixedPrep{status: protocol.StatusArchiveFailed, reason: "disk full"})

	done := make(chan State, 1)
	go func() { done <- s.Run() }()

	req := protocol.Make(5, protocol.UploadRequest, protocol.StatusSuccess, nil)
	require.NoError(t, client.Send(req))

	_, err := client.Recv() // ACK_START
	require.NoError(t, err)

	notify, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.StatusArchiveFailed, notify.Status)

	require.Equal(t, Error, <-done)
}

func TestFtpLoginFailureGoesToError(t *testing.T) {
	s, client := newTestSession(t, Config{}, fixedPrep{status: protocol.StatusSuccess})

	done := make(chan State, 1)
	go func() { done <- s.Run() }()

	require.NoError(t, client.Send(protocol.Make(1, protocol.UploadRequest, protocol.StatusSuccess, nil)))
	_, _ = client.Recv() // ACK_START
	_, _ = client.Recv() // NOTIFY_DONE

	require.NoError(t, client.Send(protocol.Make(1, protocol.FtpLoginResult, protocol.StatusFtpLoginFailed, nil)))

	require.Equal(t, Error, <-done)
}

func TestSessionTimeoutTransitionsToError(t *testing.T) {
	s, _ := newTestSession(t, Config{SessionTimeout: time.Millisecond}, fixedPrep{status: protocol.StatusSuccess})
	s.lastActive = time.Now().Add(-time.Hour)
	require.False(t, s.touch())
	require.Equal(t, Error, s.state)
}
