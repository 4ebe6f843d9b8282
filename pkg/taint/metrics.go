// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package taint

import "github.com/prometheus/client_golang/prometheus"

var scanFindingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "scalpel_taint_findings_total",
	Help: "Taint findings emitted across scans",
})

// Collectors returns the taint metrics for registration by the server.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{scanFindingsTotal}
}
