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

// Command logd is the log-telemetry server binary: it accepts
// app-client connections, dispatches the REQUEST_CONFIG handshake
// through the per-app registry, and forwards validated single/batch
// log messages to a sink.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/lucp/cfg"
	"github.com/facebookincubator/lucp/internal/netutil"
	"github.com/facebookincubator/lucp/logproto/frame"
	"github.com/facebookincubator/lucp/logproto/registry"
	"github.com/facebookincubator/lucp/logproto/server"
)

// logrusSink forwards accepted entries to logrus at their own
// severity, and optionally appends them to a flat file.
type logrusSink struct {
	appendFile *os.File
}

func (s *logrusSink) Accept(appID string, lvl frame.Level, ts frame.Timestamp, message string) {
	entry := log.WithFields(log.Fields{"app_id": appID, "level": lvl.String(), "ts_sec": ts.Sec})
	switch lvl {
	case frame.LevelFatal, frame.LevelError:
		entry.Error(message)
	case frame.LevelWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}

	if s.appendFile != nil {
		line := fmt.Sprintf("%d.%03d\t%s\t%s\t%s\n", ts.Sec, ts.MS, appID, lvl, message)
		if _, err := s.appendFile.WriteString(line); err != nil {
			log.WithError(err).Warn("logd: append log write failed")
		}
	}
}

func main() {
	configPath := flag.String("c", "/etc/logd.conf", "Path to the log daemon configuration file")
	monitoringAddr := flag.String("monitoringaddr", ":9101", "host:port to serve Prometheus metrics on")
	logLevel := flag.String("loglevel", "info", "Set a log level. Can be: debug, info, warning, error")
	appendLogPath := flag.String("appendlog", "", "Optional path to append accepted log lines to")
	flag.Parse()

	switch *logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("logd: unrecognized log level %q, defaulting to info", *logLevel)
		log.SetLevel(log.InfoLevel)
	}

	store, err := cfg.Load(*configPath)
	if err != nil {
		log.Warnf("logd: could not load %s (%v), falling back to defaults", *configPath, err)
		store = cfg.NewStore()
	}

	sink := &logrusSink{}
	if *appendLogPath != "" {
		f, err := os.OpenFile(*appendLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("logd: open append log %s: %v", *appendLogPath, err)
		}
		defer f.Close()
		sink.appendFile = f
	}

	reg := registry.New(store)
	maxFrameSize := int(store.GetIntDefault("general", "max_frame_size", frame.DefaultMaxFrameSize))
	srv := server.New(reg, sink, maxFrameSize)

	ip := store.GetStringDefault("general", "ip", "0.0.0.0")
	port := store.GetUint16Default("general", "port", 32101)
	addr := fmt.Sprintf("%s:%d", ip, port)

	ln, err := netutil.Listen(addr)
	if err != nil {
		log.Fatalf("logd: listen on %s: %v", addr, err)
	}
	log.Infof("logd: listening on %s (max_clients=%d)", addr, server.MaxClients)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Warnf("logd: metrics server exited: %v", http.ListenAndServe(*monitoringAddr, nil))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("logd: shutdown signal received")
		_ = ln.Close()
	}()

	if err := srv.Serve(ln); err != nil {
		log.Infof("logd: accept loop exited: %v", err)
	}
}
