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

// Package wire implements the length-prefixed framing the log-telemetry
// protocol layers over a raw TCP connection: a 4-byte big-endian length
// prefix followed by the encoded frame.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/facebookincubator/lucp/logproto/frame"
)

// ErrZeroLength and ErrFrameTooLarge are returned by RecvFrame when the
// length prefix is rejected before any frame bytes are read.
var (
	ErrZeroLength    = errors.New("logwire: zero-length frame")
	ErrFrameTooLarge = errors.New("logwire: frame exceeds max_frame_size")
)

// SendFrame serializes f and writes it to conn as a 4-byte big-endian
// length prefix followed by the encoded bytes. Short writes are
// reported as errors by the underlying net.Conn.
func SendFrame(conn net.Conn, f *frame.Frame, maxFrameSize int) error {
	buf, err := f.Encode(maxFrameSize)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := conn.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = conn.Write(buf)
	return err
}

// RecvFrame reads one length-prefixed frame from conn, rejecting a
// declared length of zero or greater than maxFrameSize before
// attempting to read the body, and validating magic/major-version via
// frame.Decode.
func RecvFrame(conn net.Conn, requireMajor uint8, maxFrameSize int) (*frame.Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(conn, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n == 0 {
		return nil, ErrZeroLength
	}
	if maxFrameSize > 0 && int(n) > maxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return frame.Decode(buf, requireMajor, maxFrameSize)
}
