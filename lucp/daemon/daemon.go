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

// Package daemon is the LUCP accept loop: it owns the listening socket,
// the process-wide shutdown flag, the max_clients connection counter,
// and daemon-level configuration resolved from a cfg.Store.
package daemon

import (
	"net"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/lucp/cfg"
	"github.com/facebookincubator/lucp/internal/metrics"
	"github.com/facebookincubator/lucp/lucp/session"
	"github.com/facebookincubator/lucp/lucp/transport"
)

// Config is the daemon's resolved runtime configuration, built from a
// cfg.Store (FromStore) or constructed directly by tests.
type Config struct {
	IP              string
	Port            uint16
	MaxClients      int
	RecvTimeout     time.Duration
	SendTimeout     time.Duration
	SessionTimeout  time.Duration
	ValidateVersion bool
}

// FromStore resolves a Config from the LUCP daemon's [network] and
// [protocol] sections, applying the documented defaults and bounds.
// Out-of-range values fall back to the default rather than aborting
// the load.
func FromStore(store *cfg.Store) Config {
	c := Config{
		IP:              store.GetStringDefault("network", "ip", "127.0.0.1"),
		Port:            clampUint16(store.GetUint16Default("network", "port", 32100), 1, 65535, 32100),
		MaxClients:      clampInt(int(store.GetIntDefault("network", "max_clients", 10)), 1, 100, 10),
		RecvTimeout:     clampMillis(store.GetIntDefault("network", "recv_timeout_ms", 1000), 100, 10000, 1000),
		SendTimeout:     clampMillis(store.GetIntDefault("network", "send_timeout_ms", 1000), 100, 10000, 1000),
		SessionTimeout:  clampMillis(store.GetIntDefault("protocol", "session_timeout_ms", 10000), 1000, 30000, 10000),
		ValidateVersion: store.GetBoolDefault("protocol", "validate_version", false),
	}
	return c
}

func clampUint16(v, lo, hi, def uint16) uint16 {
	if v < lo || v > hi {
		return def
	}
	return v
}

func clampInt(v, lo, hi, def int) int {
	if v < lo || v > hi {
		return def
	}
	return v
}

func clampMillis(v int64, lo, hi, def int64) time.Duration {
	if v < lo || v > hi {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// Daemon drives the accept loop: one worker goroutine per accepted
// connection, a shared shutdown flag, and a max_clients ceiling
// enforced by closing the connection right after accept rather than
// pre-empting Accept.
type Daemon struct {
	cfg      Config
	prepFor  func() session.LogPrep
	shutdown atomic.Bool

	clients atomic.Int32
}

// New builds a Daemon. prepFor is invoked once per accepted connection
// to obtain the LogPrep collaborator for that session's
// WaitingUploadRequest step (typically a *ftpboundary.Prep).
func New(cfg Config, prepFor func() session.LogPrep) *Daemon {
	return &Daemon{cfg: cfg, prepFor: prepFor}
}

// Serve accepts connections on ln until Accept fails, driving each
// through its own Session goroutine. Stop alone does not end the loop;
// once Stop has been called and ln is closed, Serve returns nil.
func (d *Daemon) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if d.shutdown.Load() {
				return nil
			}
			return err
		}

		if int(d.clients.Add(1)) > d.cfg.MaxClients {
			d.clients.Add(-1)
			metrics.LUCPSessionsRejected.Inc()
			log.Warn("lucp daemon: max_clients reached, closing connection")
			_ = nc.Close()
			continue
		}

		go d.handle(nc)
	}
}

// Stop flips the shutdown flag; sessions observe it between state
// transitions and the accept loop observes it via Accept's error once
// the caller also closes the listener.
func (d *Daemon) Stop() {
	d.shutdown.Store(true)
}

func (d *Daemon) handle(nc net.Conn) {
	defer d.clients.Add(-1)

	conn := transport.New(nc)
	sessCfg := session.Config{
		ValidateVersion: d.cfg.ValidateVersion,
		SessionTimeout:  d.cfg.SessionTimeout,
	}

	var prep session.LogPrep
	if d.prepFor != nil {
		prep = d.prepFor()
	}

	sess := session.New(conn, sessCfg, prep, &d.shutdown)
	final := sess.Run()
	log.Debugf("lucp daemon: session finished in state %s", final)
}

// Clients reports the number of connections currently being served.
func (d *Daemon) Clients() int { return int(d.clients.Load()) }
