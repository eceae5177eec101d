// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package metrics wires the group layer's operational counters into
// Prometheus, the way durable/state.go instruments boltdb with
// promauto-registered gauges (mDbSize, mBoltStats) in the teacher repo.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "groupdb",
		Subsystem: "group",
		Name:      "commit_duration_seconds",
		Help:      "Time spent serializing dirty state during commit.",
		Buckets:   prometheus.DefBuckets,
	})

	commitTableCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "groupdb",
		Subsystem: "group",
		Name:      "commit_table_count",
		Help:      "Number of tables present at the most recent commit.",
	})

	commitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groupdb",
		Subsystem: "group",
		Name:      "commits_total",
		Help:      "Total number of commits performed.",
	})

	arenaBaseline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "groupdb",
		Subsystem: "arena",
		Name:      "baseline_bytes",
		Help:      "Physical size of the memory-mapped heap.",
	})

	advanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "groupdb",
		Subsystem: "group",
		Name:      "advance_transact_duration_seconds",
		Help:      "Time spent replaying a transaction log during advance_transact.",
		Buckets:   prometheus.DefBuckets,
	})
)

// StartTimer returns the current time, for pairing with ObserveCommit.
func StartTimer() time.Time { return time.Now() }

// ObserveCommit records the duration of a commit and the resulting
// table count.
func ObserveCommit(start time.Time, tableCount int) {
	commitDuration.Observe(time.Since(start).Seconds())
	commitTableCount.Set(float64(tableCount))
	commitsTotal.Inc()
}

// ObserveAdvance records the duration of an advance_transact call.
func ObserveAdvance(start time.Time) {
	advanceDuration.Observe(time.Since(start).Seconds())
}

// SetArenaBaseline records the allocator's current physical size.
func SetArenaBaseline(n uint64) {
	arenaBaseline.Set(float64(n))
}
