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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/alphamine/services/brain"
	"github.com/AleutianAI/alphamine/services/generator"
)

// CatalogClient is the catalog surface the controller needs from the
// simulation platform.
type CatalogClient interface {
	ListDatasets(ctx context.Context, region string, delay int, universe string) ([]brain.Dataset, error)
	ListFields(ctx context.Context, datasetID, region string, delay int, universe string) ([]brain.DataField, error)
	ListOperators(ctx context.Context) ([]string, error)
}

// Evaluator runs one expression through simulation and returns its
// quality report.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, fields []brain.DataField) (*brain.QualityReport, error)
}

// Config bounds a mining run.
type Config struct {
	Region   string
	Delay    int
	Universe string

	// MaxFactors stops the run once this many factors are recorded.
	MaxFactors int
	// MinScore is the acceptance bar for the primary check value.
	MinScore float64
	// MaxImprovementRounds caps revisions per seed.
	MaxImprovementRounds int
	// SaveInterval checkpoints every N recorded factors.
	SaveInterval int
}

// DefaultConfig returns the standard mining bounds.
func DefaultConfig() Config {
	return Config{
		Region:               "USA",
		Delay:                1,
		Universe:             "TOP3000",
		MaxFactors:           100,
		MinScore:             1.5,
		MaxImprovementRounds: 10,
		SaveInterval:         10,
	}
}

func (c Config) validate() error {
	if c.MaxFactors <= 0 {
		return errors.New("max factors must be positive")
	}
	if c.MaxImprovementRounds <= 0 {
		return errors.New("max improvement rounds must be positive")
	}
	if c.SaveInterval <= 0 {
		return errors.New("save interval must be positive")
	}
	return nil
}

// Deps are the controller's collaborators. Catalog, Generator,
// Evaluator, and Store are required; the rest default to no-ops.
type Deps struct {
	Catalog   CatalogClient
	Generator generator.Generator
	Evaluator Evaluator
	Store     *SnapshotStore
	Metrics   *Metrics
	Board     *StatusBoard
	Sink      ScoreSink
	Logger    *slog.Logger
}

// Controller owns one mining run end to end. It is single-threaded:
// every step of every cycle happens on the goroutine that called Run.
type Controller struct {
	cfg     Config
	catalog CatalogClient
	gen     generator.Generator
	eval    Evaluator
	store   *SnapshotStore
	metrics *Metrics
	board   *StatusBoard
	sink    ScoreSink
	log     *slog.Logger

	state     *RunState
	lastSaved int
}

// NewController validates config and wiring.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid mining config: %w", err)
	}
	if deps.Catalog == nil || deps.Generator == nil || deps.Evaluator == nil || deps.Store == nil {
		return nil, errors.New("controller requires catalog, generator, evaluator, and store")
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Board == nil {
		deps.Board = &StatusBoard{}
	}
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		catalog: deps.Catalog,
		gen:     deps.Generator,
		eval:    deps.Evaluator,
		store:   deps.Store,
		metrics: deps.Metrics,
		board:   deps.Board,
		sink:    deps.Sink,
		log:     deps.Logger,
	}, nil
}

// Run executes the mining loop until the factor cap is reached or the
// context is cancelled. A final checkpoint is always written on exit
// paths past initialization, cancellation and panicked cycles
// included.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.initialize(ctx); err != nil {
		return err
	}
	defer c.finalCheckpoint()

	for len(c.state.Records) < c.cfg.MaxFactors {
		if err := ctx.Err(); err != nil {
			c.log.Info("mining run cancelled",
				"factors", len(c.state.Records), "cycles", c.state.Cycles)
			return err
		}

		outcome := c.safeCycle(ctx)
		c.state.Cycles++
		c.metrics.Cycles.WithLabelValues(outcome).Inc()
		c.board.Update(func(s *Status) {
			s.Cycles = c.state.Cycles
		})
		c.log.Info("mining cycle finished",
			"cycle", c.state.Cycles, "outcome", outcome,
			"factors", len(c.state.Records), "target", c.cfg.MaxFactors)
	}

	c.log.Info("mining run complete",
		"factors", len(c.state.Records), "cycles", c.state.Cycles)
	return nil
}

// initialize authenticates nothing itself; it assumes the session is
// live and pulls the run-scoped catalog: datasets and the operator
// vocabulary, both fixed for the rest of the run.
func (c *Controller) initialize(ctx context.Context) error {
	c.state = &RunState{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}

	datasets, err := c.catalog.ListDatasets(ctx, c.cfg.Region, c.cfg.Delay, c.cfg.Universe)
	if err != nil {
		return fmt.Errorf("run initialization failed: %w", err)
	}
	if len(datasets) == 0 {
		return errors.New("run initialization failed: dataset catalog is empty")
	}

	operators, err := c.catalog.ListOperators(ctx)
	if err != nil {
		return fmt.Errorf("run initialization failed: %w", err)
	}

	c.state.Datasets = datasets
	c.state.Operators = operators

	c.board.Update(func(s *Status) {
		s.RunID = c.state.RunID.String()
		s.StartedAt = c.state.StartedAt
	})
	c.log.Info("mining run initialized",
		"run_id", c.state.RunID, "datasets", len(datasets), "operators", len(operators))
	return nil
}

// safeCycle isolates one cycle: a panic aborts the cycle, not the run.
func (c *Controller) safeCycle(ctx context.Context) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("mining cycle panicked",
				"panic", r, "stack", string(debug.Stack()))
			outcome = "panic"
		}
	}()
	return c.runCycle(ctx)
}

// runCycle is one pass of the outer loop: dataset selection, field
// fetch, seed candidate, then the bounded improvement loop.
func (c *Controller) runCycle(ctx context.Context) string {
	dataset := c.selectDataset(ctx)

	fields, err := c.catalog.ListFields(ctx, dataset.ID, c.cfg.Region, c.cfg.Delay, c.cfg.Universe)
	if err != nil {
		if !errors.Is(err, brain.ErrPartialCatalog) || len(fields) == 0 {
			c.log.Error("field fetch failed, abandoning cycle", "dataset", dataset.ID, "error", err)
			return "catalog_error"
		}
		c.log.Warn("mining with a partial field set", "dataset", dataset.ID, "fields", len(fields))
	}
	if len(fields) == 0 {
		c.log.Warn("dataset has no fields, abandoning cycle", "dataset", dataset.ID)
		return "catalog_error"
	}

	c.state.Dataset = dataset
	c.state.Fields = fields
	c.board.Update(func(s *Status) {
		s.Dataset = dataset.ID
	})

	seed, err := c.gen.ProposeSeed(ctx, dataset, fields, c.state.Operators)
	if err != nil {
		c.metrics.GenerationFailures.Inc()
		c.log.Error("seed generation failed", "dataset", dataset.ID, "error", err)
		return "generation_error"
	}
	if seed.Empty() {
		c.metrics.GenerationFailures.Inc()
		c.log.Warn("generator produced no seed, abandoning cycle", "dataset", dataset.ID)
		return "no_candidate"
	}
	if ctx.Err() != nil {
		return "cancelled"
	}

	score, ok := c.evaluateAndRecord(ctx, seed)
	if !ok {
		return "simulation_error"
	}
	if score >= c.cfg.MinScore {
		c.log.Info("seed cleared the acceptance bar", "score", score, "min_score", c.cfg.MinScore)
		return "accepted"
	}

	// Improvement sub-loop: every successful revision is recorded;
	// clearing the bar ends the sub-loop early.
	for round := 1; round <= c.cfg.MaxImprovementRounds; round++ {
		if ctx.Err() != nil {
			return "cancelled"
		}
		if len(c.state.Records) >= c.cfg.MaxFactors {
			return "cap_reached"
		}

		history, err := c.state.historyJSON()
		if err != nil {
			c.log.Error("failed to serialize history", "error", err)
			return "internal_error"
		}
		next, err := c.gen.ProposeNext(ctx, dataset, fields, c.state.Operators, history)
		if err != nil {
			c.metrics.GenerationFailures.Inc()
			c.log.Error("improvement generation failed", "round", round, "error", err)
			return "generation_error"
		}
		if next.Empty() {
			c.metrics.GenerationFailures.Inc()
			return "no_candidate"
		}

		score, ok := c.evaluateAndRecord(ctx, next)
		if !ok {
			if ctx.Err() != nil {
				return "cancelled"
			}
			return "simulation_error"
		}
		if score >= c.cfg.MinScore {
			c.log.Info("revision cleared the acceptance bar",
				"score", score, "min_score", c.cfg.MinScore, "round", round)
			return "accepted"
		}
		c.log.Info("revision below the acceptance bar",
			"expression", next.Expression, "score", score,
			"min_score", c.cfg.MinScore, "round", round)
	}
	return "exhausted"
}

// evaluateAndRecord simulates one candidate and, when the evaluation
// yields a report, appends its FactorRecord. Returns the primary score
// and whether a record was appended. A report without checks still
// names a simulated alpha: it is recorded, and the fallback score 0
// fails the acceptance predicate.
func (c *Controller) evaluateAndRecord(ctx context.Context, candidate generator.Candidate) (float64, bool) {
	report, err := c.eval.Evaluate(ctx, candidate.Expression, c.state.Fields)
	if err != nil {
		c.metrics.Simulations.WithLabelValues("failed").Inc()
		c.log.Error("simulation failed",
			"expression", candidate.Expression, "error", err)
		return 0, false
	}

	score, ok := report.PrimaryScore()
	if !ok {
		c.metrics.Simulations.WithLabelValues("no_score").Inc()
		c.log.Warn("check returned no score, recording with fallback 0", "alpha_id", report.AlphaID)
		score = 0
	} else {
		c.metrics.Simulations.WithLabelValues("succeeded").Inc()
	}
	c.metrics.Scores.Observe(score)

	c.record(ctx, candidate, report, score)
	return score, true
}

// selectDataset asks the generator to choose and falls back to the
// first catalog entry when the answer is missing or names a dataset
// the catalog does not contain.
func (c *Controller) selectDataset(ctx context.Context) brain.Dataset {
	fallback := c.state.Datasets[0]

	selection, err := c.gen.SelectDataset(ctx, c.state.Datasets)
	if err != nil {
		c.metrics.DatasetFallbacks.Inc()
		c.log.Warn("dataset selection failed, using first catalog entry",
			"fallback", fallback.ID, "error", err)
		return fallback
	}

	for _, ds := range c.state.Datasets {
		if strings.EqualFold(ds.ID, selection.DatasetID) {
			c.log.Info("dataset selected", "dataset", ds.ID, "reason", selection.Reason)
			return ds
		}
	}

	c.metrics.DatasetFallbacks.Inc()
	c.log.Warn("selection named an unknown dataset, using first catalog entry",
		"selected", selection.DatasetID, "fallback", fallback.ID)
	return fallback
}

func (c *Controller) record(ctx context.Context, candidate generator.Candidate, report *brain.QualityReport, score float64) {
	rec := FactorRecord{
		Expression:  candidate.Expression,
		Explanation: candidate.Explanation,
		AlphaID:     report.AlphaID,
		Score:       score,
		DatasetID:   c.state.Dataset.ID,
		MinedAt:     time.Now().UTC(),
		Checks:      report.Raw,
	}
	c.state.Records = append(c.state.Records, rec)

	c.metrics.FactorsMined.Inc()
	c.board.Update(func(s *Status) {
		s.FactorsMined = len(c.state.Records)
		s.BestScore = c.state.bestScore()
		s.LastExpression = rec.Expression
	})
	c.log.Info("factor recorded",
		"expression", rec.Expression, "alpha_id", rec.AlphaID,
		"score", score, "total", len(c.state.Records))

	if err := c.sink.RecordFactor(ctx, rec); err != nil {
		c.log.Warn("score sink write failed", "alpha_id", rec.AlphaID, "error", err)
	}

	c.maybeCheckpoint()
}

// maybeCheckpoint saves when SaveInterval factors have accumulated
// since the last save. Save failures are logged and retried implicitly
// at the next interval or the final checkpoint.
func (c *Controller) maybeCheckpoint() {
	if len(c.state.Records)-c.lastSaved < c.cfg.SaveInterval {
		return
	}
	c.checkpoint()
}

// finalCheckpoint runs on every exit path past initialization. It
// writes unconditionally: the run always ends with a snapshot, even
// when empty or when the interval checkpoint already covered every
// record.
func (c *Controller) finalCheckpoint() {
	if c.state == nil {
		return
	}
	c.checkpoint()
}

func (c *Controller) checkpoint() {
	path, err := c.store.Save(c.state)
	if err != nil {
		c.log.Error("checkpoint failed", "error", err)
		return
	}
	c.lastSaved = len(c.state.Records)
	c.metrics.CheckpointWrites.Inc()
	c.log.Info("checkpoint written", "path", path, "factors", c.lastSaved)
}
