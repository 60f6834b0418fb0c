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

package wire

import (
	"net"
	"testing"

	"github.com/facebookincubator/lucp/logproto/frame"
	"github.com/stretchr/testify/require"
)

func TestSendRecvRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	f := frame.New(7, frame.RequestConfig, frame.StatusOK, frame.NewString(frame.TLVAppID, "svc"))

	go func() {
		_ = SendFrame(client, f, frame.DefaultMaxFrameSize)
	}()

	got, err := RecvFrame(server, frame.MajorVersion, frame.DefaultMaxFrameSize)
	require.NoError(t, err)
	require.Equal(t, f.Sequence, got.Sequence)
	require.Equal(t, f.Type, got.Type)
}

func TestRecvFrameRejectsOversizeLength(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	f := frame.New(1, frame.RequestConfig, frame.StatusOK, frame.NewString(frame.TLVAppID, "svc"))
	go func() {
		_ = SendFrame(client, f, 0)
	}()

	_, err := RecvFrame(server, 0, frame.HeaderSize+1)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
