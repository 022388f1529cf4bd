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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/alphamine/pkg/validation"
	"github.com/AleutianAI/alphamine/services/brain"
	"github.com/AleutianAI/alphamine/services/miner"
)

// Config is the on-disk configuration. Credentials are never stored
// here; they resolve from the environment or /run/secrets at startup.
type Config struct {
	Brain struct {
		BaseURL           string  `yaml:"base_url"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"brain"`

	Simulation struct {
		Region         string  `yaml:"region"`
		Universe       string  `yaml:"universe"`
		Delay          int     `yaml:"delay"`
		Decay          int     `yaml:"decay"`
		Neutralization string  `yaml:"neutralization"`
		Truncation     float64 `yaml:"truncation"`
	} `yaml:"simulation"`

	AI struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"ai"`

	Mining struct {
		MaxFactors           int     `yaml:"max_factors"`
		MinScore             float64 `yaml:"min_score"`
		MaxImprovementRounds int     `yaml:"max_improvement_rounds"`
		SaveInterval         int     `yaml:"save_interval"`
		OutputDir            string  `yaml:"output_dir"`
	} `yaml:"mining"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"status"`

	InfluxDB struct {
		URL    string `yaml:"url"`
		Org    string `yaml:"org"`
		Bucket string `yaml:"bucket"`
	} `yaml:"influxdb"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`
}

// DefaultAppConfig mirrors the standard mining bounds and simulation
// scope so an empty config file is fully usable.
func DefaultAppConfig() Config {
	var cfg Config
	cfg.Brain.BaseURL = brain.DefaultBaseURL
	cfg.Brain.RequestsPerSecond = 2

	settings := brain.DefaultSimulationSettings()
	cfg.Simulation.Region = settings.Region
	cfg.Simulation.Universe = settings.Universe
	cfg.Simulation.Delay = settings.Delay
	cfg.Simulation.Decay = settings.Decay
	cfg.Simulation.Neutralization = settings.Neutralization
	cfg.Simulation.Truncation = settings.Truncation

	mining := miner.DefaultConfig()
	cfg.Mining.MaxFactors = mining.MaxFactors
	cfg.Mining.MinScore = mining.MinScore
	cfg.Mining.MaxImprovementRounds = mining.MaxImprovementRounds
	cfg.Mining.SaveInterval = mining.SaveInterval
	cfg.Mining.OutputDir = "factors"

	cfg.Status.Listen = ":8099"
	cfg.Logging.Level = "info"
	return cfg
}

// LoadConfig reads the yaml file at path over the defaults. A missing
// file is fine; the defaults stand.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultAppConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects bounds the mining loop cannot run with.
func (c Config) Validate() error {
	if err := validation.PositiveInt("mining.max_factors", c.Mining.MaxFactors); err != nil {
		return err
	}
	if err := validation.PositiveInt("mining.max_improvement_rounds", c.Mining.MaxImprovementRounds); err != nil {
		return err
	}
	if err := validation.PositiveInt("mining.save_interval", c.Mining.SaveInterval); err != nil {
		return err
	}
	if err := validation.FiniteFloat("mining.min_score", c.Mining.MinScore); err != nil {
		return err
	}
	if err := validation.FiniteFloat("simulation.truncation", c.Simulation.Truncation); err != nil {
		return err
	}
	return nil
}

// SimulationSettings merges the config's simulation scope into the
// platform defaults.
func (c Config) SimulationSettings() brain.SimulationSettings {
	settings := brain.DefaultSimulationSettings()
	settings.Region = c.Simulation.Region
	settings.Universe = c.Simulation.Universe
	settings.Delay = c.Simulation.Delay
	settings.Decay = c.Simulation.Decay
	settings.Neutralization = c.Simulation.Neutralization
	settings.Truncation = c.Simulation.Truncation
	return settings
}

// MinerConfig maps the yaml sections onto the controller's bounds.
func (c Config) MinerConfig() miner.Config {
	return miner.Config{
		Region:               c.Simulation.Region,
		Delay:                c.Simulation.Delay,
		Universe:             c.Simulation.Universe,
		MaxFactors:           c.Mining.MaxFactors,
		MinScore:             c.Mining.MinScore,
		MaxImprovementRounds: c.Mining.MaxImprovementRounds,
		SaveInterval:         c.Mining.SaveInterval,
	}
}

// resolveSecret looks up a credential: environment first, then the
// conventional container secret mount.
func resolveSecret(envVar string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	name := strings.ToLower(envVar)
	data, err := os.ReadFile(filepath.Join("/run/secrets", name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
