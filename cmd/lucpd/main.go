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
	"github.com/facebookincubator/lucp/ftpboundary"
	"github.com/facebookincubator/lucp/internal/netutil"
	"github.com/facebookincubator/lucp/lucp/daemon"
	"github.com/facebookincubator/lucp/lucp/session"
)

func main() {
	fs := flag.NewFlagSet("lucpd", flag.ContinueOnError)
	configPath := fs.String("c", "/etc/lucpd.conf", "Path to the LUCP daemon configuration file")
	port := fs.Int("p", 0, "Port to listen on, overrides the configured [network] port (1..65535)")
	monitoringAddr := fs.String("monitoringaddr", ":9100", "host:port to serve Prometheus metrics on")
	logLevel := fs.String("loglevel", "info", "Set a log level. Can be: debug, info, warning, error")

	// Unknown flags warn and continue with defaults.
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Warnf("lucpd: ignoring unrecognized command line flags: %v", err)
	}

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
		log.Warnf("lucpd: unrecognized log level %q, defaulting to info", *logLevel)
		log.SetLevel(log.InfoLevel)
	}

	store, err := cfg.Load(*configPath)
	if err != nil {
		log.Warnf("lucpd: could not load %s (%v), falling back to defaults", *configPath, err)
		store = cfg.NewStore()
	}

	cfgValues := daemon.FromStore(store)
	if *port > 0 && *port <= 65535 {
		cfgValues.Port = uint16(*port)
	}

	ftpCfg := ftpboundary.FromStore(store)
	uploader := ftpboundary.NewFTPUploader(ftpCfg)

	d := daemon.New(cfgValues, func() session.LogPrep {
		return ftpboundary.New(ftpCfg, uploader)
	})

	addr := fmt.Sprintf("%s:%d", cfgValues.IP, cfgValues.Port)
	ln, err := netutil.Listen(addr)
	if err != nil {
		log.Fatalf("lucpd: listen on %s: %v", addr, err)
	}
	log.Infof("lucpd: listening on %s (max_clients=%d)", addr, cfgValues.MaxClients)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Warnf("lucpd: metrics server exited: %v", http.ListenAndServe(*monitoringAddr, nil))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("lucpd: shutdown signal received")
		d.Stop()
		_ = ln.Close()
	}()

	if err := d.Serve(ln); err != nil {
		log.Fatalf("lucpd: accept loop exited: %v", err)
	}
}
