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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/alphamine/services/brain"
	"github.com/AleutianAI/alphamine/services/generator"
)

type fakeCatalog struct {
	datasets    []brain.Dataset
	operators   []string
	fields      map[string][]brain.DataField
	fieldsErr   error
	fieldCalls  []string
	fieldScopes []string
}

func (f *fakeCatalog) ListDatasets(context.Context, string, int, string) ([]brain.Dataset, error) {
	return f.datasets, nil
}

func (f *fakeCatalog) ListFields(_ context.Context, datasetID, region string, delay int, universe string) ([]brain.DataField, error) {
	f.fieldCalls = append(f.fieldCalls, datasetID)
	f.fieldScopes = append(f.fieldScopes, fmt.Sprintf("%s/%d/%s", region, delay, universe))
	return f.fields[datasetID], f.fieldsErr
}

func (f *fakeCatalog) ListOperators(context.Context) ([]string, error) {
	return f.operators, nil
}

type fakeGenerator struct {
	selection generator.Selection
	selectErr error

	seedCalls int
	nextCalls int
	histories []string

	// onSeed runs before each ProposeSeed; tests use it to cancel the
	// run after a given number of cycles.
	onSeed func(call int)
}

func (f *fakeGenerator) SelectDataset(context.Context, []brain.Dataset) (generator.Selection, error) {
	return f.selection, f.selectErr
}

func (f *fakeGenerator) ProposeSeed(context.Context, brain.Dataset, []brain.DataField, []string) (generator.Candidate, error) {
	f.seedCalls++
	if f.onSeed != nil {
		f.onSeed(f.seedCalls)
	}
	return generator.Candidate{Expression: fmt.Sprintf("rank(seed_%d)", f.seedCalls)}, nil
}

func (f *fakeGenerator) ProposeNext(_ context.Context, _ brain.Dataset, _ []brain.DataField, _ []string, history json.RawMessage) (generator.Candidate, error) {
	f.nextCalls++
	f.histories = append(f.histories, string(history))
	return generator.Candidate{Expression: fmt.Sprintf("rank(next_%d)", f.nextCalls)}, nil
}

type evalStep struct {
	score    float64
	err      error
	panics   bool
	noChecks bool
}

// scriptedEvaluator replays a fixed sequence of outcomes; the last
// step repeats once the script runs out.
type scriptedEvaluator struct {
	script []evalStep
	calls  int
	exprs  []string
}

func (e *scriptedEvaluator) Evaluate(_ context.Context, expression string, _ []brain.DataField) (*brain.QualityReport, error) {
	step := e.script[min(e.calls, len(e.script)-1)]
	e.calls++
	e.exprs = append(e.exprs, expression)

	if step.panics {
		panic("simulator blew up")
	}
	if step.err != nil {
		return nil, step.err
	}
	if step.noChecks {
		return &brain.QualityReport{
			AlphaID: fmt.Sprintf("alpha-%d", e.calls),
			Status:  "WARNING",
		}, nil
	}
	return &brain.QualityReport{
		AlphaID: fmt.Sprintf("alpha-%d", e.calls),
		Status:  "PASS",
		IS: brain.InSample{Checks: []brain.Check{
			{Name: "LOW_SHARPE", Result: "PASS", Value: step.score, Limit: 1.25},
		}},
	}, nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		datasets: []brain.Dataset{
			{ID: "fundamental6", Name: "Company Fundamentals"},
			{ID: "analyst4", Name: "Analyst Estimates"},
		},
		operators: []string{"rank", "ts_rank"},
		fields: map[string][]brain.DataField{
			"fundamental6": {{ID: "fnd6_drxq"}},
			"analyst4":     {{ID: "anl4_eps"}},
		},
	}
}

func newTestController(t *testing.T, cfg Config, cat *fakeCatalog, gen *fakeGenerator, eval *scriptedEvaluator) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSnapshotStore(dir, nil)
	require.NoError(t, err)

	c, err := NewController(cfg, Deps{
		Catalog:   cat,
		Generator: gen,
		Evaluator: eval,
		Store:     store,
		Metrics:   NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return c, dir
}

func snapshotFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "factors_*.json"))
	require.NoError(t, err)
	return matches
}

func readSnapshot(t *testing.T, path string) Snapshot {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func TestRunStopsAtFactorCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 3
	cfg.SaveInterval = 2

	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.8}}}
	c, dir := newTestController(t, cfg, testCatalog(), gen, eval)

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, c.state.Records, 3)
	assert.Equal(t, 3, c.state.Cycles)
	assert.Equal(t, "fundamental6", c.state.Records[0].DatasetID)
	assert.Equal(t, 1.8, c.state.Records[0].Score)

	// Interval checkpoint at 2 factors plus the final one at 3.
	files := snapshotFiles(t, dir)
	require.Len(t, files, 2)
	last := readSnapshot(t, files[len(files)-1])
	assert.Equal(t, 3, last.Count)
	assert.Len(t, last.Factors, 3)
}

func TestImprovementRoundsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 5
	cfg.MaxImprovementRounds = 3

	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{
		selection: generator.Selection{DatasetID: "fundamental6"},
		onSeed: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	// Every candidate falls short of the bar.
	eval := &scriptedEvaluator{script: []evalStep{{score: 0.4}}}
	c, _ := newTestController(t, cfg, testCatalog(), gen, eval)

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 4, eval.calls, "one seed plus three bounded improvement rounds")
	assert.Equal(t, 3, gen.nextCalls)
	assert.Len(t, c.state.Records, 4, "below-bar factors are still recorded")
}

func TestImprovementHistoryCarriesAcceptedFactors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 5
	cfg.MinScore = 1.5

	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{
		selection: generator.Selection{DatasetID: "fundamental6"},
		onSeed: func(call int) {
			if call == 3 {
				cancel()
			}
		},
	}
	// Cycle 1's seed clears the bar; cycle 2's falls short, forcing an
	// improvement round that must see the full recorded history.
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}, {score: 0.3}, {score: 1.7}}}
	c, _ := newTestController(t, cfg, testCatalog(), gen, eval)

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NotEmpty(t, gen.histories)
	assert.Contains(t, gen.histories[0], `"rank(seed_1)"`,
		"improvement prompt must include previously accepted factors")
	assert.Contains(t, gen.histories[0], `"alpha-1"`)
}

func TestDatasetFallbackToFirstEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 1

	cat := testCatalog()
	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "no_such_dataset"}}
	eval := &scriptedEvaluator{script: []evalStep{{score: 2.0}}}
	c, _ := newTestController(t, cfg, cat, gen, eval)

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, cat.fieldCalls, 1)
	assert.Equal(t, "fundamental6", cat.fieldCalls[0], "unknown selection falls back to the first dataset")
	assert.Equal(t, "fundamental6", c.state.Records[0].DatasetID)
}

func TestDatasetSelectionErrorFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 1

	cat := testCatalog()
	gen := &fakeGenerator{selectErr: errors.New("model unavailable")}
	eval := &scriptedEvaluator{script: []evalStep{{score: 2.0}}}
	c, _ := newTestController(t, cfg, cat, gen, eval)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"fundamental6"}, cat.fieldCalls)
}

func TestCyclePanicDoesNotKillRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 1

	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	eval := &scriptedEvaluator{script: []evalStep{{panics: true}, {score: 1.9}}}
	c, _ := newTestController(t, cfg, testCatalog(), gen, eval)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 2, c.state.Cycles, "the panicked cycle is abandoned and mining continues")
	require.Len(t, c.state.Records, 1)
	assert.Equal(t, "rank(seed_2)", c.state.Records[0].Expression)
}

func TestSimulationFailureAbandonsCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 1

	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	eval := &scriptedEvaluator{script: []evalStep{{err: errors.New("timeout")}, {score: 1.9}}}
	c, _ := newTestController(t, cfg, testCatalog(), gen, eval)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 2, c.state.Cycles)
	require.Len(t, c.state.Records, 1)
	assert.Zero(t, gen.nextCalls, "a failed simulation must not trigger improvement")
}

func TestCancellationWritesFinalCheckpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 10
	cfg.SaveInterval = 10

	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{
		selection: generator.Selection{DatasetID: "fundamental6"},
		onSeed: func(call int) {
			if call == 2 {
				cancel()
			}
		},
	}
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}}}
	c, dir := newTestController(t, cfg, testCatalog(), gen, eval)

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// One factor was accepted before cancellation and SaveInterval was
	// never reached, so only the final checkpoint exists.
	files := snapshotFiles(t, dir)
	require.Len(t, files, 1)
	snap := readSnapshot(t, files[0])
	require.Len(t, snap.Factors, 1)
	assert.Equal(t, "rank(seed_1)", snap.Factors[0].Expression)
}

func TestFinalCheckpointAlwaysWritten(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 2
	cfg.SaveInterval = 2

	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}}}
	c, dir := newTestController(t, cfg, testCatalog(), gen, eval)

	require.NoError(t, c.Run(context.Background()))

	// The interval checkpoint at 2 factors already covered every record,
	// but the run still ends with its own snapshot.
	files := snapshotFiles(t, dir)
	require.Len(t, files, 2)
	last := readSnapshot(t, files[len(files)-1])
	assert.Equal(t, 2, last.Count)
}

func TestEmptyRunStillWritesFinalCheckpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 5

	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{
		selection: generator.Selection{DatasetID: "fundamental6"},
		onSeed: func(call int) {
			cancel()
		},
	}
	// The only cycle is cancelled before simulation, so nothing is mined.
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}}}
	c, dir := newTestController(t, cfg, testCatalog(), gen, eval)

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	files := snapshotFiles(t, dir)
	require.Len(t, files, 1)
	snap := readSnapshot(t, files[0])
	assert.Zero(t, snap.Count)
	assert.Empty(t, snap.Factors)
}

func TestFieldListingUsesConfiguredScope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 1
	cfg.Region = "EUR"
	cfg.Delay = 0
	cfg.Universe = "TOP1200"

	cat := testCatalog()
	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}}}
	c, _ := newTestController(t, cfg, cat, gen, eval)

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, cat.fieldScopes, 1)
	assert.Equal(t, "EUR/0/TOP1200", cat.fieldScopes[0],
		"field listing must carry the configured region, delay, and universe")
}

func TestReportWithoutChecksStillRecorded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 2

	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	// The seed's report names an alpha but carries no checks; the
	// revision clears the bar.
	eval := &scriptedEvaluator{script: []evalStep{{noChecks: true}, {score: 1.9}}}
	c, _ := newTestController(t, cfg, testCatalog(), gen, eval)

	require.NoError(t, c.Run(context.Background()))

	require.Len(t, c.state.Records, 2)
	assert.Equal(t, "alpha-1", c.state.Records[0].AlphaID)
	assert.Zero(t, c.state.Records[0].Score, "a missing score falls back to 0")
	assert.Equal(t, 1, gen.nextCalls, "a scoreless seed still enters improvement")
	assert.Equal(t, 1.9, c.state.Records[1].Score)
}

func TestPartialFieldSetStillMines(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFactors = 1

	cat := testCatalog()
	cat.fieldsErr = fmt.Errorf("page failed: %w", brain.ErrPartialCatalog)
	gen := &fakeGenerator{selection: generator.Selection{DatasetID: "fundamental6"}}
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}}}
	c, _ := newTestController(t, cfg, cat, gen, eval)

	require.NoError(t, c.Run(context.Background()))
	assert.Len(t, c.state.Records, 1)
}

func TestInitializationFailsOnEmptyCatalog(t *testing.T) {
	gen := &fakeGenerator{}
	eval := &scriptedEvaluator{script: []evalStep{{score: 1.9}}}
	c, _ := newTestController(t, DefaultConfig(), &fakeCatalog{}, gen, eval)

	assert.Error(t, c.Run(context.Background()))
}

func TestNewControllerValidation(t *testing.T) {
	store, err := NewSnapshotStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = NewController(Config{}, Deps{
		Catalog:   &fakeCatalog{},
		Generator: &fakeGenerator{},
		Evaluator: &scriptedEvaluator{script: []evalStep{{}}},
		Store:     store,
	})
	assert.Error(t, err, "zero bounds are rejected")

	_, err = NewController(DefaultConfig(), Deps{})
	assert.Error(t, err, "missing collaborators are rejected")
}
