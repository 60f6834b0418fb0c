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

// Package sender implements the log client's asynchronous background
// sender: it drains the bounded log queue and ships frames over a
// pooled, auto-reconnecting TCP connection.
package sender

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/lucp/logproto/frame"
	"github.com/facebookincubator/lucp/logproto/pool"
	"github.com/facebookincubator/lucp/logproto/queue"
	"github.com/facebookincubator/lucp/logproto/wire"
)

// ReconnectBackoff is how long the sender sleeps after a failed
// connection attempt before retrying.
var ReconnectBackoff = time.Second

// Config parameterizes a Sender.
type Config struct {
	Addr          string
	AutoReconnect bool
	MaxFrameSize  int
	DialTimeout   time.Duration

	// BatchAppID, when non-empty, makes Run merge up to BatchSize
	// dequeued single-log frames into one MULTIPLE_LOGS frame keyed by
	// this application id before sending.
	BatchAppID string
	BatchSize  int

	// Release, when non-nil, receives each single-log frame once its
	// TLVs have been merged into a batch.
	Release func(*frame.Frame)
}

// Sender drains q and writes frames to Config.Addr, reconnecting as
// configured. One Sender runs on a dedicated goroutine per app handle.
type Sender struct {
	cfg  Config
	q    *queue.Queue
	pool *pool.ConnPool
	seq  uint16

	mu   sync.Mutex
	conn net.Conn

	done chan struct{}
}

// New builds a sender bound to q. Call Run in its own goroutine.
func New(cfg Config, q *queue.Queue, connPool *pool.ConnPool) *Sender {
	return &Sender{cfg: cfg, q: q, pool: connPool, done: make(chan struct{})}
}

// Run drains the queue until it is shut down and drained, sending in
// FIFO order. With batching configured, each blocking dequeue is
// followed by a non-blocking drain of up to BatchSize-1 more frames,
// merged into one MULTIPLE_LOGS frame. A frame that fails to send is
// dropped, never requeued.
func (s *Sender) Run() {
	defer close(s.done)

	if s.cfg.AutoReconnect {
		s.ensureConnected()
	}

	for {
		f, ok := s.q.Dequeue()
		if !ok {
			return
		}
		if s.cfg.BatchAppID == "" || s.cfg.BatchSize <= 1 {
			s.sendOne(f)
			continue
		}

		chunk := []*frame.Frame{f}
		for len(chunk) < s.cfg.BatchSize {
			next, ok := s.q.TryDequeue()
			if !ok {
				break
			}
			chunk = append(chunk, next)
		}
		s.sendOne(s.buildBatch(chunk))
	}
}

// buildBatch merges the dequeued single-log frames into one
// MULTIPLE_LOGS frame: APP_ID first, then each entry's (ENTRY_LEVEL,
// TIMESTAMP, LOG_MESSAGE) triple in dequeue order.
func (s *Sender) buildBatch(chunk []*frame.Frame) *frame.Frame {
	tlvs := []frame.TLV{frame.NewString(frame.TLVAppID, s.cfg.BatchAppID)}
	for _, f := range chunk {
		for _, t := range f.TLVs {
			if t.Type == frame.TLVAppID {
				continue
			}
			tlvs = append(tlvs, t)
		}
	}
	s.seq++
	batch := frame.New(s.seq, frame.MultipleLogs, frame.StatusOK, tlvs...)

	if s.cfg.Release != nil {
		for _, f := range chunk {
			s.cfg.Release(f)
		}
	}
	return batch
}

func (s *Sender) sendOne(f *frame.Frame) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		if !s.cfg.AutoReconnect {
			return
		}
		if !s.ensureConnected() {
			time.Sleep(ReconnectBackoff)
			return
		}
		s.mu.Lock()
		conn = s.conn
		s.mu.Unlock()
	}

	if err := wire.SendFrame(conn, f, s.cfg.MaxFrameSize); err != nil {
		log.WithError(err).Warn("logproto sender: send failed, reconnecting")
		s.closeConn()
	}
}

// ensureConnected dials if there is no live connection; it returns
// whether a connection is now available.
func (s *Sender) ensureConnected() bool {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	c, err := s.pool.Acquire()
	if err != nil {
		log.WithError(err).Warn("logproto sender: connect failed")
		return false
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	return true
}

func (s *Sender) closeConn() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()
	if c != nil {
		s.pool.Discard(c)
	}
}

// Stop shuts down the queue (waking Run) and blocks until Run exits,
// draining and discarding any frames left in the queue.
func (s *Sender) Stop() []*frame.Frame {
	s.q.Shutdown()
	<-s.done
	s.closeConn()
	return s.q.Drain()
}
