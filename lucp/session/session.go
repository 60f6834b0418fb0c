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

// Package session implements LUCP-Session: the six-state workflow
// automaton that drives one accepted connection through the
// remote-log-upload handshake.
package session

import (
	"sync/atomic"
	"time"

	"github.com/facebookincubator/lucp/internal/metrics"
	"github.com/facebookincubator/lucp/lucp/protocol"
	"github.com/facebookincubator/lucp/lucp/transport"
	log "github.com/sirupsen/logrus"
)

// State is one of the six session states.
type State int

// Session states.
const (
	Init State = iota
	WaitingUploadRequest
	WaitingFtpLoginResult
	WaitingFtpDownloadResult
	Completed
	Error
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case WaitingUploadRequest:
		return "WaitingUploadRequest"
	case WaitingFtpLoginResult:
		return "WaitingFtpLoginResult"
	case WaitingFtpDownloadResult:
		return "WaitingFtpDownloadResult"
	case Completed:
		return "Completed"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// LogPrep is the external log-preparation collaborator invoked from
// WaitingUploadRequest. It returns the status to report to the peer and
// a short human-readable reason.
type LogPrep interface {
	Prepare(seq uint32) (protocol.Status, string)
}

// Config holds the daemon-derived knobs a Session needs.
type Config struct {
	// ValidateVersion, when true, rejects an UPLOAD_REQUEST whose
	// VersionMajor does not match protocol.VersionMajor.
	ValidateVersion bool
	// SessionTimeout is the longest allowed gap between successive state
	// entries; a session that enters a state later than that moves to
	// Error. It is checked only on state entry, so a Recv blocked on a
	// silent peer is not interrupted by it.
	SessionTimeout time.Duration
}

// Session drives one accepted LUCP connection through the state machine.
type Session struct {
	conn       *transport.Conn
	cfg        Config
	prep       LogPrep
	shutdown   *atomic.Bool
	state      State
	sequence   uint32
	lastActive time.Time
}

// New creates a Session bound to conn. shutdown is a process-wide
// shutdown flag shared across all sessions; the session checks it on
// every state transition.
func New(conn *transport.Conn, cfg Config, prep LogPrep, shutdown *atomic.Bool) *Session {
	return &Session{
		conn:     conn,
		cfg:      cfg,
		prep:     prep,
		shutdown: shutdown,
		state:    Init,
	}
}

// State returns the session's current state, mainly for tests and logs.
func (s *Session) State() State { return s.state }

// touch enforces the inactivity timeout, then records the current time
// as the last-activity timestamp. A session whose previous state entry
// is more than SessionTimeout ago moves to Error.
func (s *Session) touch() bool {
	now := time.Now()
	if !s.lastActive.IsZero() && s.cfg.SessionTimeout > 0 && now.Sub(s.lastActive) > s.cfg.SessionTimeout {
		s.state = Error
		return false
	}
	s.lastActive = now
	return true
}

// Run drives the session to completion, returning the terminal state.
// It never returns before reaching Completed or Error, or the shutdown
// flag being set.
func (s *Session) Run() State {
	metrics.LUCPSessionsActive.Inc()
	defer func() {
		_ = s.conn.Close()
		metrics.LUCPSessionsActive.Dec()
		metrics.LUCPSessionsTotal.WithLabelValues(s.state.String()).Inc()
	}()

	for {
		if s.shutdown != nil && s.shutdown.Load() {
			log.Debugf("lucp session: shutdown flag set, aborting in state %s", s.state)
			return s.state
		}
		if !s.touch() {
			return s.state
		}

		switch s.state {
		case Init:
			s.stepInit()
		case WaitingUploadRequest:
			s.stepWaitingUploadRequest()
		case WaitingFtpLoginResult:
			s.stepWaitingFtpLoginResult()
		case WaitingFtpDownloadResult:
			s.stepWaitingFtpDownloadResult()
		case Completed, Error:
			return s.state
		}
	}
}

func (s *Session) stepInit() {
	frame, err := s.conn.Recv()
	if err != nil {
		log.Warnf("lucp session: recv in Init: %v", err)
		s.state = Error
		return
	}

	if frame.Type != protocol.UploadRequest {
		// Unexpected message types are dropped silently; remain in
		// Init awaiting the correct one.
		log.Debugf("lucp session: ignoring unexpected type %s in Init", frame.Type)
		return
	}

	if s.cfg.ValidateVersion && frame.VersionMajor != protocol.VersionMajor {
		reply := protocol.Make(frame.Sequence, protocol.AckStart, protocol.StatusFailed, []byte("Bad version"))
		_ = s.conn.Send(reply)
		s.state = Error
		return
	}

	s.sequence = frame.Sequence
	reply := protocol.Make(s.sequence, protocol.AckStart, protocol.StatusSuccess, nil)
	if err := s.conn.Send(reply); err != nil {
		log.Warnf("lucp session: send ACK_START: %v", err)
		s.state = Error
		return
	}
	s.state = WaitingUploadRequest
}

func (s *Session) stepWaitingUploadRequest() {
	var status protocol.Status
	var reason string
	if s.prep != nil {
		status, reason = s.prep.Prepare(s.sequence)
	} else {
		status, reason = protocol.StatusSuccess, ""
	}

	reply := protocol.Make(s.sequence, protocol.NotifyDone, status, []byte(reason))
	if err := s.conn.Send(reply); err != nil {
		log.Warnf("lucp session: send NOTIFY_DONE: %v", err)
		s.state = Error
		return
	}

	if status == protocol.StatusSuccess {
		s.state = WaitingFtpLoginResult
	} else {
		s.state = Error
	}
}

func (s *Session) stepWaitingFtpLoginResult() {
	s.awaitStatus(protocol.FtpLoginResult, WaitingFtpDownloadResult)
}

func (s *Session) stepWaitingFtpDownloadResult() {
	s.awaitStatus(protocol.FtpDownloadResult, Completed)
}

// awaitStatus receives frames until one of type expect arrives (dropping
// anything else silently), then transitions to onSuccess if its status
// is SUCCESS, or Error otherwise.
func (s *Session) awaitStatus(expect protocol.MessageType, onSuccess State) {
	for {
		frame, err := s.conn.Recv()
		if err != nil {
			log.Warnf("lucp session: recv awaiting %s: %v", expect, err)
			s.state = Error
			return
		}
		if frame.Type != expect {
			log.Debugf("lucp session: ignoring unexpected type %s while awaiting %s", frame.Type, expect)
			continue
		}
		if frame.Status == protocol.StatusSuccess {
			s.state = onSuccess
		} else {
			s.state = Error
		}
		return
	}
}
