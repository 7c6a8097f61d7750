// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics defines the Prometheus metrics of the track store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trackstore"

var (
	// ElementsIngested counts elements read from sources.
	ElementsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_ingested_total",
			Help:      "Total number of elements read from track sources",
		},
		[]string{"genome"},
	)

	// TracksProcessed counts processed tracks.
	// Labels: outcome (committed, unchanged, dry_run, metadata_only, not_supported, failed)
	TracksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_processed_total",
			Help:      "Total number of tracks processed by outcome",
		},
		[]string{"outcome"},
	)

	// RulesSkipped counts overlap rules whose stored data was up to date.
	RulesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_skipped_total",
			Help:      "Total number of overlap rules skipped as unchanged",
		},
		[]string{"rule"},
	)

	// StageDuration tracks the time spent in each pipeline state.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each preprocessing state",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"state"},
	)

	// QueryLatency tracks the latency of range queries.
	QueryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_latency_seconds",
			Help:      "Latency of range queries",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	// RowsReturned tracks the number of rows returned per query.
	RowsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_rows_returned",
			Help:      "Number of rows returned per range query",
			Buckets:   prometheus.ExponentialBuckets(1, 10, 8),
		},
	)
)

// ObserveStage records the time elapsed since start in the given state.
func ObserveStage(state string, start time.Time) {
	StageDuration.WithLabelValues(state).Observe(time.Since(start).Seconds())
}
