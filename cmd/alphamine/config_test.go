// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err, "a missing config file falls back to defaults")

	assert.Equal(t, 100, cfg.Mining.MaxFactors)
	assert.Equal(t, 1.5, cfg.Mining.MinScore)
	assert.Equal(t, 10, cfg.Mining.MaxImprovementRounds)
	assert.Equal(t, "USA", cfg.Simulation.Region)
	assert.Equal(t, "TOP3000", cfg.Simulation.Universe)
	assert.Equal(t, "INDUSTRY", cfg.SimulationSettings().Neutralization)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mining:
  max_factors: 25
  min_score: 2.0
simulation:
  region: EUR
  universe: TOP1200
ai:
  model: gpt-4o
status:
  enabled: true
  listen: ":9100"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Mining.MaxFactors)
	assert.Equal(t, 2.0, cfg.Mining.MinScore)
	assert.Equal(t, 10, cfg.Mining.MaxImprovementRounds, "unset keys keep their defaults")
	assert.Equal(t, "EUR", cfg.Simulation.Region)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.True(t, cfg.Status.Enabled)

	settings := cfg.SimulationSettings()
	assert.Equal(t, "EUR", settings.Region)
	assert.Equal(t, "TOP1200", settings.Universe)
	assert.Equal(t, 13, settings.Decay, "platform defaults survive partial overrides")

	mc := cfg.MinerConfig()
	assert.Equal(t, 25, mc.MaxFactors)
	assert.Equal(t, "EUR", mc.Region)
}

func TestLoadConfigRejectsBadBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mining:\n  max_factors: -1\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestResolveSecretPrefersEnvironment(t *testing.T) {
	t.Setenv("BRAIN_EMAIL", "miner@example.com")
	assert.Equal(t, "miner@example.com", resolveSecret("BRAIN_EMAIL"))
	assert.Empty(t, resolveSecret("ALPHAMINE_TEST_UNSET_VAR"))
}
