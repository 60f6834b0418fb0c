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

// Package metrics holds the Prometheus collectors shared by the LUCP
// daemon and the log-telemetry server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LUCP session counters/gauges.
var (
	LUCPSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucp_sessions_total",
		Help: "LUCP sessions started, labeled by terminal state.",
	}, []string{"state"})

	LUCPSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lucp_sessions_active",
		Help: "LUCP sessions currently being served.",
	})

	LUCPSessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lucp_sessions_rejected_total",
		Help: "Connections rejected because max_clients was reached.",
	})
)

// Log-telemetry counters/gauges.
var (
	LogQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logproto_queue_depth",
		Help: "Frames currently buffered in the async sender's bounded queue.",
	})

	LogQueueFullTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logproto_queue_full_total",
		Help: "Enqueue attempts that found the bounded log queue saturated.",
	})

	LogConnPoolHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logproto_conn_pool_total",
		Help: "Connection pool acquisitions, labeled by whether a pooled socket was reused.",
	}, []string{"result"})

	LogDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logproto_drops_total",
		Help: "Log entries dropped by the server, labeled by application id and reason.",
	}, []string{"app_id", "reason"})

	LogServerClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "logproto_server_clients_active",
		Help: "Client connections currently being served by the log server.",
	})
)
