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

package server

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/facebookincubator/lucp/cfg"
	"github.com/facebookincubator/lucp/logproto/frame"
	"github.com/facebookincubator/lucp/logproto/registry"
	"github.com/facebookincubator/lucp/logproto/wire"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	accepted []string
}

func (r *recordingSink) Accept(appID string, lvl frame.Level, ts frame.Timestamp, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, message)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accepted)
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logd.conf")
	require.NoError(t, os.WriteFile(path, []byte(`
[general]
ip = 0.0.0.0

[svc]
threshold_level = debug
debug.mode = console
`), 0o644))
	store, err := cfg.Load(path)
	require.NoError(t, err)
	return registry.New(store)
}

func TestServerHandshakeAndSingleLog(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	sink := &recordingSink{}
	s := New(newRegistry(t), sink, frame.DefaultMaxFrameSize)
	go s.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.SendFrame(conn, frame.New(1, frame.RequestConfig, frame.StatusOK, frame.NewString(frame.TLVAppID, "svc")), frame.DefaultMaxFrameSize))

	reply, err := wire.RecvFrame(conn, frame.MajorVersion, frame.DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, frame.ConfigStatus, reply.Type)
	require.NoError(t, reply.Validate())

	logFrame := frame.New(2, frame.SingleLog, frame.StatusOK,
		frame.NewString(frame.TLVAppID, "svc"),
		frame.NewByte(frame.TLVEntryLevel, uint8(frame.LevelDebug)),
		frame.NewTimestamp(frame.Timestamp{Sec: 1700000000}),
		frame.NewString(frame.TLVLogMessage, "hello"),
	)
	require.NoError(t, wire.SendFrame(conn, logFrame, frame.DefaultMaxFrameSize))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServerRejectsUnregisteredApp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := New(newRegistry(t), &recordingSink{}, frame.DefaultMaxFrameSize)
	go s.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.SendFrame(conn, frame.New(1, frame.RequestConfig, frame.StatusOK, frame.NewString(frame.TLVAppID, "ghost")), frame.DefaultMaxFrameSize))

	reply, err := wire.RecvFrame(conn, frame.MajorVersion, frame.DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, frame.PureStatus, reply.Type)
}

func TestServerBatchLog(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	sink := &recordingSink{}
	s := New(newRegistry(t), sink, frame.DefaultMaxFrameSize)
	go s.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, wire.SendFrame(conn, frame.New(1, frame.RequestConfig, frame.StatusOK, frame.NewString(frame.TLVAppID, "svc")), frame.DefaultMaxFrameSize))
	_, err = wire.RecvFrame(conn, frame.MajorVersion, frame.DefaultMaxFrameSize)
	require.NoError(t, err)

	batch := frame.New(2, frame.MultipleLogs, frame.StatusOK, frame.NewString(frame.TLVAppID, "svc"))
	for i := 0; i < 5; i++ {
		batch.TLVs = append(batch.TLVs,
			frame.NewByte(frame.TLVEntryLevel, uint8(frame.LevelInfo)),
			frame.NewTimestamp(frame.Timestamp{Sec: int64(1700000000 + i)}),
			frame.NewString(frame.TLVLogMessage, "m"),
		)
	}
	require.NoError(t, wire.SendFrame(conn, batch, frame.DefaultMaxFrameSize))

	require.Eventually(t, func() bool { return sink.count() == 5 }, time.Second, 10*time.Millisecond)
}
