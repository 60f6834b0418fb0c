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

// Package transport implements LUCP-Net: blocking send, reassembling
// receive, and a send-with-retries helper over a net.Conn.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/facebookincubator/lucp/lucp/protocol"
	log "github.com/sirupsen/logrus"
)

// RecvBufferSize is the size of the per-connection reassembly buffer.
const RecvBufferSize = 2048

// ErrBufferOverflow is returned by Recv when an in-flight frame would not
// fit in the reassembly buffer.
var ErrBufferOverflow = errors.New("lucp: receive buffer overflow")

// ErrPeerClosed is returned by Recv/Send when a read or write transfers
// zero bytes without reporting an error. A read that fails because the
// peer closed the connection returns the wrapped read error (io.EOF)
// instead.
var ErrPeerClosed = errors.New("lucp: peer closed connection")

// ErrRetriesExhausted is returned by SendWithRetries when no matching
// reply was observed within the retry budget.
var ErrRetriesExhausted = errors.New("lucp: retries exhausted")

// Conn wraps a net.Conn with the LUCP framing discipline: a persistent
// reassembly buffer across successive Recv calls.
type Conn struct {
	nc  net.Conn
	buf []byte
	n   int
}

// New wraps nc for LUCP framing.
func New(nc net.Conn) *Conn {
	return &Conn{nc: nc, buf: make([]byte, RecvBufferSize)}
}

// Raw returns the underlying net.Conn, e.g. for Close or deadlines.
func (c *Conn) Raw() net.Conn { return c.nc }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// Send packs f into a scratch buffer and writes it in full, retrying on
// interrupted system calls the way the standard library already does for
// net.Conn; a short write or a write error is reported to the caller.
func (c *Conn) Send(f *protocol.Frame) error {
	scratch := make([]byte, f.EncodedLen())
	n, err := protocol.Pack(f, scratch)
	if err != nil {
		return fmt.Errorf("lucp: pack frame: %w", err)
	}

	written := 0
	for written < n {
		w, err := c.nc.Write(scratch[written:])
		if err != nil {
			return fmt.Errorf("lucp: write: %w", err)
		}
		if w == 0 {
			return ErrPeerClosed
		}
		written += w
	}
	return nil
}

// Recv returns the next complete frame, reading more bytes from the
// connection as needed and retaining any leftover bytes for the next
// call.
func (c *Conn) Recv() (*protocol.Frame, error) {
	for {
		if f, consumed, result := protocol.Unpack(c.buf[:c.n]); result == protocol.Complete {
			remaining := c.n - consumed
			copy(c.buf, c.buf[consumed:c.n])
			c.n = remaining
			return f, nil
		} else if result == protocol.Corrupt {
			c.n = 0
			return nil, fmt.Errorf("lucp: corrupt frame on wire")
		}

		if c.n == len(c.buf) {
			return nil, ErrBufferOverflow
		}

		read, err := c.nc.Read(c.buf[c.n:])
		if err != nil {
			return nil, fmt.Errorf("lucp: read: %w", err)
		}
		if read == 0 {
			return nil, ErrPeerClosed
		}
		c.n += read
	}
}

// SendWithRetries sends frame, then waits up to timeout for a reply of
// expectType whose sequence matches frame.Sequence, retrying up to
// nRetries times. Replies of the wrong type or sequence are treated as
// not yet arrived and the attempt is retried.
func (c *Conn) SendWithRetries(frame *protocol.Frame, expectType protocol.MessageType, nRetries int, timeout time.Duration) (*protocol.Frame, error) {
	for attempt := 0; attempt <= nRetries; attempt++ {
		if err := c.Send(frame); err != nil {
			return nil, err
		}

		if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, fmt.Errorf("lucp: set read deadline: %w", err)
		}

		reply, err := c.Recv()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Debugf("lucp: send-with-retries attempt %d timed out", attempt)
				continue
			}
			return nil, err
		}

		if reply.Type == expectType && reply.Sequence == frame.Sequence {
			_ = c.nc.SetReadDeadline(time.Time{})
			return reply, nil
		}
		log.Debugf("lucp: ignoring unexpected reply type=%s seq=%d", reply.Type, reply.Sequence)
	}
	_ = c.nc.SetReadDeadline(time.Time{})
	return nil, ErrRetriesExhausted
}
