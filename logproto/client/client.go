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

// Package client implements the per-application log handle: the
// init handshake, cached threshold/mode policy, per-call enqueue onto
// the bounded log queue, a sender goroutine that batches queued
// entries, and a receiver goroutine applying server-pushed
// reconfiguration.
package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/lucp/logproto/frame"
	"github.com/facebookincubator/lucp/logproto/pool"
	"github.com/facebookincubator/lucp/logproto/queue"
	"github.com/facebookincubator/lucp/logproto/sender"
	"github.com/facebookincubator/lucp/logproto/wire"
)

// DefaultServerIP and DefaultServerPort are used when neither the
// environment nor an explicit Config override them.
const (
	DefaultServerIP   = "127.0.0.1"
	DefaultServerPort = 32100
)

// BatchSize is the maximum number of single-log entries the sender
// merges into one MULTIPLE_LOGS frame.
const BatchSize = 100

// ErrNotRegistered is returned by Init when the server does not
// recognize the application (0x03 PURE_STATUS reply).
var ErrNotRegistered = errors.New("logclient: application not registered")

// Config parameterizes a Handle.
type Config struct {
	AppID         string
	ServerIP      string
	ServerPort    int
	ConnTimeout   time.Duration
	MaxFrameSize  int
	AutoReconnect bool
	QueueCapacity int
	PoolCapacity  int
}

// resolveAddr applies the DLT_SERVER_IP/DLT_SERVER_PORT environment
// override, falling back to cfg.ServerIP/Port, then the package
// defaults.
func (cfg Config) resolveAddr() string {
	ip := cfg.ServerIP
	if v := os.Getenv("DLT_SERVER_IP"); v != "" {
		ip = v
	}
	if ip == "" {
		ip = DefaultServerIP
	}

	port := cfg.ServerPort
	if v := os.Getenv("DLT_SERVER_PORT"); v != "" {
		if n, err := fmt.Sscanf(v, "%d", &port); err != nil || n != 1 {
			port = cfg.ServerPort
		}
	}
	if port == 0 {
		port = DefaultServerPort
	}
	return fmt.Sprintf("%s:%d", ip, port)
}

type policy struct {
	threshold frame.Level
	modes     map[frame.Level]bool
}

func (p policy) allows(lvl frame.Level) bool {
	return lvl <= p.threshold && p.modes[lvl]
}

// Handle is one application's log client.
type Handle struct {
	cfg       Config
	addr      string
	connPool  *pool.ConnPool
	framePool *pool.FramePool
	queue     *queue.Queue
	sender    *sender.Sender

	policyMu sync.Mutex
	policy   policy

	controlConn net.Conn

	running atomic.Bool
	seq     uint16

	receiverDone chan struct{}
}

// Init opens a control connection, performs the REQUEST_CONFIG
// handshake, and on success spawns the sender and receiver goroutines.
// Init is synchronous: it does not return until the initial policy
// (CONFIG_STATUS) has been received and applied.
func Init(cfg Config) (*Handle, error) {
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = frame.DefaultMaxFrameSize
	}
	addr := cfg.resolveAddr()

	h := &Handle{
		cfg:          cfg,
		addr:         addr,
		connPool:     pool.NewConnPool(addr, cfg.PoolCapacity, cfg.ConnTimeout),
		framePool:    pool.NewFramePool(0),
		queue:        queue.New(cfg.QueueCapacity),
		receiverDone: make(chan struct{}),
	}

	conn, err := net.DialTimeout("tcp", addr, cfg.ConnTimeout)
	if err != nil {
		return nil, err
	}
	h.controlConn = conn

	req := frame.New(h.nextSeq(), frame.RequestConfig, frame.StatusOK, frame.NewString(frame.TLVAppID, cfg.AppID))
	if err := wire.SendFrame(conn, req, cfg.MaxFrameSize); err != nil {
		_ = conn.Close()
		return nil, err
	}

	reply, err := wire.RecvFrame(conn, frame.MajorVersion, cfg.MaxFrameSize)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if reply.Type == frame.PureStatus {
		_ = conn.Close()
		return nil, ErrNotRegistered
	}
	if reply.Type != frame.ConfigStatus {
		_ = conn.Close()
		return nil, fmt.Errorf("logclient: unexpected init reply type %s", reply.Type)
	}
	if err := reply.Validate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	h.applyPolicy(reply)

	h.sender = sender.New(sender.Config{
		Addr:          addr,
		AutoReconnect: cfg.AutoReconnect,
		MaxFrameSize:  cfg.MaxFrameSize,
		DialTimeout:   cfg.ConnTimeout,
		BatchAppID:    cfg.AppID,
		BatchSize:     BatchSize,
		Release:       h.framePool.Release,
	}, h.queue, h.connPool)

	h.running.Store(true)
	go h.receiverLoop()
	go h.sender.Run()

	return h, nil
}

func (h *Handle) nextSeq() uint16 {
	h.seq++
	return h.seq
}

func (h *Handle) applyPolicy(f *frame.Frame) {
	thresholdTLV, _ := frame.Get(f.TLVs, frame.TLVThresholdLevel)
	thresholdByte, _ := frame.GetByte(thresholdTLV)

	modes := make(map[frame.Level]bool, 6)
	for lvl := frame.LevelFatal; lvl <= frame.LevelVerbose; lvl++ {
		t, ok := frame.Get(f.TLVs, frame.TLVTypeForMode(lvl))
		if !ok {
			continue
		}
		v, _ := frame.GetByte(t)
		modes[lvl] = v != 0
	}

	h.policyMu.Lock()
	h.policy = policy{threshold: frame.Level(thresholdByte), modes: modes}
	h.policyMu.Unlock()
}

// receiverLoop polls the control connection and applies any
// server-initiated UPDATE_CONFIG frame to the cached policy.
func (h *Handle) receiverLoop() {
	defer close(h.receiverDone)
	for {
		f, err := wire.RecvFrame(h.controlConn, frame.MajorVersion, h.cfg.MaxFrameSize)
		if err != nil {
			return
		}
		if f.Type != frame.UpdateConfig {
			continue
		}
		if err := f.Validate(); err != nil {
			log.WithError(err).Warn("logclient: malformed UPDATE_CONFIG, ignoring")
			continue
		}
		h.applyPolicy(f)
	}
}

// sendDirect borrows a pooled connection and sends once, synchronously.
// The fallback for a saturated queue.
func (h *Handle) sendDirect(f *frame.Frame) {
	conn, err := h.connPool.Acquire()
	if err != nil {
		log.WithError(err).Warn("logclient: direct send connect failed, dropping frame")
		return
	}
	if err := wire.SendFrame(conn, f, h.cfg.MaxFrameSize); err != nil {
		log.WithError(err).Warn("logclient: direct send failed, dropping frame")
		h.connPool.Discard(conn)
		return
	}
	h.connPool.Release(conn)
}

// Log classifies and (if allowed) enqueues a single log entry onto the
// bounded queue. The entry is dropped without I/O if the cached policy
// rejects lvl; a saturated queue falls back to one synchronous send
// over a pooled connection.
func (h *Handle) Log(lvl frame.Level, message string) {
	if !h.running.Load() {
		return
	}
	h.policyMu.Lock()
	allowed := h.policy.allows(lvl)
	h.policyMu.Unlock()
	if !allowed {
		return
	}

	now := time.Now()
	f := h.framePool.Acquire()
	f.MajorVersion = frame.MajorVersion
	f.MinorVersion = frame.MinorVersion
	f.Type = frame.SingleLog
	f.Status = frame.StatusOK
	f.TimestampSec = now.Unix()
	f.TimestampMS = uint16(now.Nanosecond() / int(time.Millisecond))
	f.TLVs = append(f.TLVs,
		frame.NewString(frame.TLVAppID, h.cfg.AppID),
		frame.NewByte(frame.TLVEntryLevel, uint8(lvl)),
		frame.NewTimestamp(frame.Timestamp{Sec: now.Unix(), MS: uint16(now.Nanosecond() / int(time.Millisecond))}),
		frame.NewString(frame.TLVLogMessage, message),
	)

	if err := h.queue.Enqueue(f); err != nil {
		h.sendDirect(f)
		h.framePool.Release(f)
	}
}

// Fatal logs at LevelFatal.
func (h *Handle) Fatal(message string) { h.Log(frame.LevelFatal, message) }

// Error logs at LevelError.
func (h *Handle) Error(message string) { h.Log(frame.LevelError, message) }

// Warn logs at LevelWarning.
func (h *Handle) Warn(message string) { h.Log(frame.LevelWarning, message) }

// Info logs at LevelInfo.
func (h *Handle) Info(message string) { h.Log(frame.LevelInfo, message) }

// Debug logs at LevelDebug.
func (h *Handle) Debug(message string) { h.Log(frame.LevelDebug, message) }

// Verbose logs at LevelVerbose.
func (h *Handle) Verbose(message string) { h.Log(frame.LevelVerbose, message) }

// Close stops the background goroutines, drains the queue, and
// releases pooled resources.
func (h *Handle) Close() {
	h.running.Store(false)
	leftover := h.sender.Stop()
	for _, f := range leftover {
		h.framePool.Release(f)
	}
	_ = h.controlConn.Close()
	<-h.receiverDone
	h.connPool.Close()
}
