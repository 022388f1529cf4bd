// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package miner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries the run's Prometheus instruments. Registering on a
// caller-supplied registry keeps tests independent of the global one.
type Metrics struct {
	FactorsMined       prometheus.Counter
	Simulations        *prometheus.CounterVec
	GenerationFailures prometheus.Counter
	DatasetFallbacks   prometheus.Counter
	CheckpointWrites   prometheus.Counter
	Cycles             *prometheus.CounterVec
	Scores             prometheus.Histogram
}

// NewMetrics registers the mining instruments on reg. Pass
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FactorsMined: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphamine_factors_mined_total",
			Help: "Factors recorded across the run.",
		}),
		Simulations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alphamine_simulations_total",
			Help: "Candidate simulations by outcome.",
		}, []string{"outcome"}),
		GenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphamine_generation_failures_total",
			Help: "Generator calls that produced no usable candidate.",
		}),
		DatasetFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphamine_dataset_fallbacks_total",
			Help: "Cycles where dataset selection fell back to the first catalog entry.",
		}),
		CheckpointWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "alphamine_checkpoint_writes_total",
			Help: "Snapshot files written.",
		}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alphamine_cycles_total",
			Help: "Mining cycles by outcome.",
		}, []string{"outcome"}),
		Scores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "alphamine_factor_score",
			Help:    "Primary check score of every simulated candidate.",
			Buckets: prometheus.LinearBuckets(0, 0.25, 16),
		}),
	}
}
