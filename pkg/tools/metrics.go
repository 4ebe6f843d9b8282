// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package tools

import "github.com/prometheus/client_golang/prometheus"

var (
	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scalpel_ops_total",
		Help: "Dispatched operations by name and outcome",
	}, []string{"operation", "outcome"})

	opDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scalpel_op_duration_seconds",
		Help:    "End-to-end dispatch duration",
		Buckets: prometheus.DefBuckets,
	})
)

// Collectors returns the dispatcher metrics for registration by the server.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{opsTotal, opDuration}
}
