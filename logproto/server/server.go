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

// Package server implements the log-telemetry daemon: an accept loop
// that hands each client connection to its own goroutine, dispatching
// frames by message type and fanning configuration pushes back out.
package server

import (
	"net"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/lucp/internal/metrics"
	"github.com/facebookincubator/lucp/logproto/frame"
	"github.com/facebookincubator/lucp/logproto/registry"
	"github.com/facebookincubator/lucp/logproto/wire"
)

// MaxClients caps concurrently served connections.
const MaxClients = registry.MaxApplications

// LogSink receives validated single/batch log entries. Implementations
// are expected to be safe for concurrent use from multiple client
// goroutines.
type LogSink interface {
	Accept(appID string, lvl frame.Level, ts frame.Timestamp, message string)
}

// Server is the log-protocol daemon.
type Server struct {
	reg          *registry.Registry
	sink         LogSink
	maxFrameSize int

	mu      sync.Mutex
	clients int
}

// New builds a Server resolving per-app policy from reg and delivering
// accepted logs to sink.
func New(reg *registry.Registry, sink LogSink, maxFrameSize int) *Server {
	if maxFrameSize <= 0 {
		maxFrameSize = frame.DefaultMaxFrameSize
	}
	return &Server{reg: reg, sink: sink, maxFrameSize: maxFrameSize}
}

// Serve accepts connections on ln until it is closed, rejecting work
// above MaxClients by closing the new connection immediately.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}

		s.mu.Lock()
		if s.clients >= MaxClients {
			s.mu.Unlock()
			log.Warn("logproto server: max_clients reached, rejecting connection")
			_ = conn.Close()
			continue
		}
		s.clients++
		metrics.LogServerClientsActive.Set(float64(s.clients))
		s.mu.Unlock()

		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		s.clients--
		metrics.LogServerClientsActive.Set(float64(s.clients))
		s.mu.Unlock()
	}()

	f, err := wire.RecvFrame(conn, frame.MajorVersion, s.maxFrameSize)
	if err != nil {
		log.WithError(err).Debug("logproto server: initial recv failed")
		return
	}

	// A control connection opens with REQUEST_CONFIG; a data connection
	// from an already-initialized client opens directly with its first
	// log frame.
	var appID string
	var ok bool
	if f.Type == frame.RequestConfig {
		appID, ok = s.handshake(conn, f)
	} else {
		appID, ok = s.admitDataConn(conn, f)
	}
	if !ok {
		metrics.LogDropsTotal.WithLabelValues("unknown", "handshake_failed").Inc()
		return
	}

	for {
		f, err := wire.RecvFrame(conn, frame.MajorVersion, s.maxFrameSize)
		if err != nil {
			log.WithError(err).WithField("app_id", appID).Debug("logproto server: client disconnected")
			return
		}
		s.dispatch(conn, appID, f)
	}
}

// handshake answers a REQUEST_CONFIG opener with CONFIG_STATUS for a
// registered application, or PURE_STATUS for an unknown one.
func (s *Server) handshake(conn net.Conn, f *frame.Frame) (string, bool) {
	appID, ok := appIDOf(f)
	if !ok {
		return "", false
	}

	policy, found, err := s.reg.Lookup(appID)
	if err != nil || !found {
		reply := frame.New(f.Sequence, frame.PureStatus, frame.StatusFail,
			frame.NewString(frame.TLVAppID, appID),
			frame.NewString(frame.TLVStatusMessage, "application not registered"),
		)
		_ = wire.SendFrame(conn, reply, s.maxFrameSize)
		return "", false
	}

	_ = wire.SendFrame(conn, configStatusFrame(f.Sequence, appID, policy), s.maxFrameSize)
	return appID, true
}

// admitDataConn accepts a log frame as a connection opener, provided it
// names a registered application. The frame itself is dispatched.
func (s *Server) admitDataConn(conn net.Conn, f *frame.Frame) (string, bool) {
	appID, ok := appIDOf(f)
	if !ok {
		log.WithField("type", f.Type).Warn("logproto server: opening frame carries no APP_ID")
		return "", false
	}
	if _, found, err := s.reg.Lookup(appID); err != nil || !found {
		log.WithField("app_id", appID).Warn("logproto server: data connection from unregistered application")
		return "", false
	}
	s.dispatch(conn, appID, f)
	return appID, true
}

func appIDOf(f *frame.Frame) (string, bool) {
	t, ok := frame.Get(f.TLVs, frame.TLVAppID)
	if !ok {
		return "", false
	}
	return frame.GetString(t)
}

func (s *Server) dispatch(conn net.Conn, appID string, f *frame.Frame) {
	if err := f.Validate(); err != nil {
		log.WithError(err).WithField("app_id", appID).Warn("logproto server: schema violation")
		metrics.LogDropsTotal.WithLabelValues(appID, "schema_violation").Inc()
		return
	}

	switch f.Type {
	case frame.SingleLog:
		s.acceptSingle(appID, f)
	case frame.MultipleLogs:
		s.acceptBatch(appID, f)
	default:
		log.WithField("type", f.Type).Warn("logproto server: unexpected message type from client")
	}
}

func (s *Server) acceptSingle(appID string, f *frame.Frame) {
	lvlTLV, _ := frame.Get(f.TLVs, frame.TLVEntryLevel)
	lvl, _ := frame.GetByte(lvlTLV)
	tsTLV, _ := frame.Get(f.TLVs, frame.TLVTimestamp)
	ts, _ := frame.GetTimestamp(tsTLV)
	msgTLV, _ := frame.Get(f.TLVs, frame.TLVLogMessage)
	msg, _ := frame.GetString(msgTLV)

	if s.sink != nil {
		s.sink.Accept(appID, frame.Level(lvl), ts, msg)
	}
}

func (s *Server) acceptBatch(appID string, f *frame.Frame) {
	rest := f.TLVs[1:]
	for i := 0; i+3 <= len(rest); i += 3 {
		lvl, _ := frame.GetByte(rest[i])
		ts, _ := frame.GetTimestamp(rest[i+1])
		msg, _ := frame.GetString(rest[i+2])
		if s.sink != nil {
			s.sink.Accept(appID, frame.Level(lvl), ts, msg)
		}
	}
}

// PushConfig sends an unsolicited UPDATE_CONFIG frame to a connected
// client, which applies the revised policy in its receiver goroutine.
func PushConfig(conn net.Conn, seq uint16, appID string, policy registry.Policy, maxFrameSize int) error {
	return wire.SendFrame(conn, updateConfigFrame(seq, appID, policy), maxFrameSize)
}

func configStatusFrame(seq uint16, appID string, p registry.Policy) *frame.Frame {
	tlvs := []frame.TLV{
		frame.NewString(frame.TLVStatusMessage, "ok"),
		frame.NewString(frame.TLVAppID, appID),
		frame.NewByte(frame.TLVThresholdLevel, uint8(p.Threshold)),
	}
	tlvs = append(tlvs, modeTLVs(p)...)
	return frame.New(seq, frame.ConfigStatus, frame.StatusOK, tlvs...)
}

func updateConfigFrame(seq uint16, appID string, p registry.Policy) *frame.Frame {
	tlvs := []frame.TLV{
		frame.NewString(frame.TLVAppID, appID),
		frame.NewByte(frame.TLVThresholdLevel, uint8(p.Threshold)),
	}
	tlvs = append(tlvs, modeTLVs(p)...)
	return frame.New(seq, frame.UpdateConfig, frame.StatusOK, tlvs...)
}

func modeTLVs(p registry.Policy) []frame.TLV {
	out := make([]frame.TLV, 0, 6)
	for lvl := frame.LevelFatal; lvl <= frame.LevelVerbose; lvl++ {
		var v uint8
		if p.Modes[lvl] != 0 {
			v = 1
		}
		out = append(out, frame.NewByte(frame.TLVTypeForMode(lvl), v))
	}
	return out
}
