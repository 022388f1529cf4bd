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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the on-disk checkpoint format. Saving the same state
// twice produces identical Factors content; only the filename differs.
type Snapshot struct {
	RunID   string         `json:"run_id"`
	SavedAt time.Time      `json:"saved_at"`
	Count   int            `json:"count"`
	Factors []FactorRecord `json:"factors"`
}

// SnapshotStore writes timestamped factor checkpoints into a single
// directory. Files are named factors_YYYYMMDD_HHMMSS.json; a numeric
// suffix disambiguates saves that land within the same second.
type SnapshotStore struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

// NewSnapshotStore creates the output directory if needed.
func NewSnapshotStore(dir string, logger *slog.Logger) (*SnapshotStore, error) {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	return &SnapshotStore{dir: dir, log: logger, now: time.Now}, nil
}

// Save writes the run's recorded factors to a new checkpoint file and
// returns its path. The previous checkpoints are left in place; each
// file is a complete snapshot, not a delta.
func (s *SnapshotStore) Save(state *RunState) (string, error) {
	snap := Snapshot{
		RunID:   state.RunID.String(),
		SavedAt: s.now().UTC(),
		Count:   len(state.Records),
		Factors: state.Records,
	}
	if snap.Factors == nil {
		snap.Factors = []FactorRecord{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := s.nextPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}

	s.log.Info("saved factor snapshot", "path", path, "factors", snap.Count)
	return path, nil
}

func (s *SnapshotStore) nextPath() string {
	stamp := s.now().Format("20060102_150405")
	path := filepath.Join(s.dir, fmt.Sprintf("factors_%s.json", stamp))
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(s.dir, fmt.Sprintf("factors_%s_%d.json", stamp, i))
	}
}
