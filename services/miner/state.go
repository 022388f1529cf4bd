// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package miner drives the factor mining run: pick a dataset, generate
// a candidate expression, simulate it, record its quality report, and
// keep revising with the accumulated history as feedback until a
// candidate clears the acceptance bar or the round budget runs out.
// One Controller owns one run.
package miner

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/alphamine/services/brain"
)

// FactorRecord is one successfully evaluated factor. Records are
// append-only for the lifetime of a run and are what gets checkpointed
// to disk.
type FactorRecord struct {
	Expression  string          `json:"expression"`
	Explanation string          `json:"explanation,omitempty"`
	AlphaID     string          `json:"alpha_id"`
	Score       float64         `json:"score"`
	DatasetID   string          `json:"dataset_id"`
	MinedAt     time.Time       `json:"mined_at"`
	Checks      json.RawMessage `json:"checks,omitempty"`
}

// RunState is the controller's working state. It is owned by the
// controller goroutine exclusively; anything other goroutines need to
// see goes through the StatusBoard instead.
type RunState struct {
	RunID     uuid.UUID
	StartedAt time.Time

	// Catalog fetched once at initialization.
	Datasets  []brain.Dataset
	Operators []string

	// Scope of the current mining cycle.
	Dataset brain.Dataset
	Fields  []brain.DataField

	Records []FactorRecord
	Cycles  int
}

// historyJSON serializes the recorded factors for the generator's
// improvement prompt.
func (s *RunState) historyJSON() (json.RawMessage, error) {
	if len(s.Records) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(s.Records)
}

// bestScore returns the highest recorded score so far, or 0 when no
// factor has been recorded yet.
func (s *RunState) bestScore() float64 {
	best := 0.0
	for _, r := range s.Records {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}
