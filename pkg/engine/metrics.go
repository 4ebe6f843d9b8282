// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	parseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scalpel_parse_total",
		Help: "Pipeline runs per language",
	}, []string{"language"})

	parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scalpel_parse_duration_seconds",
		Help:    "Sanitize+parse+lower duration",
		Buckets: prometheus.DefBuckets,
	})

	projectLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scalpel_project_load_duration_seconds",
		Help:    "Full project snapshot assembly duration",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})
)

// Collectors returns the engine metrics for registration by the server.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{parseTotal, parseDuration, projectLoadDuration}
}
