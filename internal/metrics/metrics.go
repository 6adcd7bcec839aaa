// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics holds the Prometheus collectors for cell execution and
// remote engine requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CellsTotal counts executed cells by engine and outcome.
	CellsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qlnb_cells_executed_total",
			Help: "Total number of notebook cells executed",
		},
		[]string{"engine", "outcome"},
	)
	// CellDuration is the wall time of a cell evaluation.
	CellDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qlnb_cell_duration_seconds",
			Help:    "Cell evaluation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine"},
	)
	// RemoteRequests counts requests served by the remote engine server.
	RemoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qlnb_remote_requests_total",
			Help: "Total number of remote engine requests",
		},
		[]string{"status"},
	)
)

// ObserveCell records one finished cell.
func ObserveCell(engine, outcome string, d time.Duration) {
	if engine == "" {
		engine = "unknown"
	}
	CellsTotal.WithLabelValues(engine, outcome).Inc()
	CellDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
