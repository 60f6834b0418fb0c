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

package daemon

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/lucp/cfg"
	"github.com/facebookincubator/lucp/lucp/protocol"
	"github.com/facebookincubator/lucp/lucp/session"
	"github.com/facebookincubator/lucp/lucp/transport"
)

func emptyStore(t *testing.T) *cfg.Store {
	t.Helper()
	return cfg.NewStore()
}

type fixedPrep struct{}

func (fixedPrep) Prepare(uint32) (protocol.Status, string) {
	return protocol.StatusSuccess, "ok"
}

func TestServeHappyPath(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := New(Config{MaxClients: 10, SessionTimeout: time.Second}, func() session.LogPrep { return fixedPrep{} })
	go func() { _ = d.Serve(ln) }()

	nc, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer nc.Close()
	conn := transport.New(nc)

	require.NoError(t, conn.Send(protocol.Make(1, protocol.UploadRequest, protocol.StatusSuccess, []byte("go"))))
	ack, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.AckStart, ack.Type)

	notify, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.NotifyDone, notify.Type)

	require.NoError(t, conn.Send(protocol.Make(1, protocol.FtpLoginResult, protocol.StatusSuccess, nil)))
	require.NoError(t, conn.Send(protocol.Make(1, protocol.FtpDownloadResult, protocol.StatusSuccess, nil)))

	require.Eventually(t, func() bool { return d.Clients() == 0 }, time.Second, time.Millisecond)
}

func TestServeRejectsOverMaxClients(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := New(Config{MaxClients: 1, SessionTimeout: time.Second}, func() session.LogPrep { return fixedPrep{} })
	d.clients.Store(1) // simulate one session already in flight
	go func() { _ = d.Serve(ln) }()

	nc, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	buf := make([]byte, 1)
	nc.SetReadDeadline(time.Now().Add(time.Second))
	_, err = nc.Read(buf)
	require.Error(t, err) // connection closed immediately, not EOF-less hang
}

func TestFromStoreDefaults(t *testing.T) {
	c := FromStore(emptyStore(t))
	require.Equal(t, "127.0.0.1", c.IP)
	require.Equal(t, uint16(32100), c.Port)
	require.Equal(t, 10, c.MaxClients)
	require.Equal(t, time.Second, c.RecvTimeout)
}
