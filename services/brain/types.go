// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package brain is a client for the WorldQuant BRAIN platform API:
// catalog lookup (datasets, data fields, operators), simulation
// submission, and alpha quality checks.
package brain

import "encoding/json"

// CategoryRef identifies a dataset category or subcategory.
type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Dataset describes one entry of the platform's dataset catalog.
// Immutable once fetched.
type Dataset struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Coverage    float64     `json:"coverage"`
	UserCount   int         `json:"userCount"`
	AlphaCount  int         `json:"alphaCount"`
	Category    CategoryRef `json:"category"`
	Subcategory CategoryRef `json:"subcategory"`
}

// DataField describes one field of a dataset. The ID is the canonical
// identifier the simulation language expects; the simulator is
// case-sensitive, so this casing is authoritative.
type DataField struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Coverage    float64 `json:"coverage"`
	UserCount   int     `json:"userCount"`
	AlphaCount  int     `json:"alphaCount"`
}

// SimulationSettings is the fixed-shape settings object submitted with
// every simulation. It is configured once per run and is not part of
// the search space.
type SimulationSettings struct {
	InstrumentType string  `json:"instrumentType"`
	Region         string  `json:"region"`
	Universe       string  `json:"universe"`
	Delay          int     `json:"delay"`
	Decay          int     `json:"decay"`
	Neutralization string  `json:"neutralization"`
	Truncation     float64 `json:"truncation"`
	Pasteurization string  `json:"pasteurization"`
	UnitHandling   string  `json:"unitHandling"`
	NanHandling    string  `json:"nanHandling"`
	Language       string  `json:"language"`
	Visualization  bool    `json:"visualization"`
}

// DefaultSimulationSettings returns the standard equity configuration:
// USA TOP3000, delay 1, decay 13, industry neutralization.
func DefaultSimulationSettings() SimulationSettings {
	return SimulationSettings{
		InstrumentType: "EQUITY",
		Region:         "USA",
		Universe:       "TOP3000",
		Delay:          1,
		Decay:          13,
		Neutralization: "INDUSTRY",
		Truncation:     0.13,
		Pasteurization: "ON",
		UnitHandling:   "VERIFY",
		NanHandling:    "OFF",
		Language:       "FASTEXPR",
		Visualization:  false,
	}
}

// Check is one statistical acceptance test applied to a simulated
// alpha, with its pass/fail result and measured value.
type Check struct {
	Name   string  `json:"name"`
	Result string  `json:"result"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit,omitempty"`
}

// InSample holds the in-sample check collection of a quality report.
type InSample struct {
	Checks []Check `json:"checks"`
}

// QualityReport is the outcome of evaluating one candidate expression:
// the alpha identifier assigned by the simulator, the raw status, and
// the nested check results. Immutable once returned.
type QualityReport struct {
	AlphaID string          `json:"alphaId"`
	Status  string          `json:"status,omitempty"`
	IS      InSample        `json:"is"`
	Raw     json.RawMessage `json:"-"`
}

// PrimaryScore returns the acceptance score: the value of the first
// in-sample check. The position is an upstream API convention, so the
// deep lookup lives here and nowhere else. Returns ok=false when the
// report carries no checks.
func (r *QualityReport) PrimaryScore() (float64, bool) {
	if r == nil || len(r.IS.Checks) == 0 {
		return 0, false
	}
	return r.IS.Checks[0].Value, true
}
