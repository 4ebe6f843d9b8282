// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package cache

import "github.com/prometheus/client_golang/prometheus"

var (
	hitTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scalpel_cache_hits_total",
		Help: "Analysis cache hits",
	})
	missTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scalpel_cache_misses_total",
		Help: "Analysis cache misses",
	})
)

// Collectors returns the cache metrics for registration by the server.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{hitTotal, missTotal}
}
