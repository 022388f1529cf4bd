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
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is a read-only view of run progress for the HTTP surface.
type Status struct {
	RunID          string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	Dataset        string    `json:"dataset"`
	Cycles         int       `json:"cycles"`
	FactorsMined   int       `json:"factors_mined"`
	BestScore      float64   `json:"best_score"`
	LastExpression string    `json:"last_expression,omitempty"`
	LastUpdated    time.Time `json:"last_updated"`
}

// StatusBoard is the concurrency boundary between the controller and
// the status server. The controller publishes snapshots; readers never
// touch RunState.
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
}

// Update applies fn to the board's status under the write lock and
// stamps LastUpdated.
func (b *StatusBoard) Update(fn func(*Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.status)
	b.status.LastUpdated = time.Now().UTC()
}

// Snapshot returns a copy of the current status.
func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// NewStatusRouter builds the HTTP surface: liveness, run progress, and
// Prometheus metrics.
func NewStatusRouter(board *StatusBoard, gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/v1/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, board.Snapshot())
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}
