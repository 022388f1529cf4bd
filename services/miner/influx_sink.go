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
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
)

// ScoreSink receives every recorded factor for time-series analysis.
// Sink failures are reported but never abort the run; the snapshot
// files remain the source of truth.
type ScoreSink interface {
	RecordFactor(ctx context.Context, rec FactorRecord) error
	Close()
}

// NopSink discards everything. Used when no InfluxDB is configured.
type NopSink struct{}

func (NopSink) RecordFactor(context.Context, FactorRecord) error { return nil }
func (NopSink) Close()                                           {}

// InfluxSink writes accepted factors as points in the factor_scores
// measurement, tagged by dataset.
type InfluxSink struct {
	client influxdb2.Client
	write  influxapi.WriteAPIBlocking
}

// NewInfluxSink connects to an InfluxDB 2.x instance.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
	}
}

func (s *InfluxSink) RecordFactor(ctx context.Context, rec FactorRecord) error {
	point := influxdb2.NewPoint("factor_scores",
		map[string]string{"dataset": rec.DatasetID},
		map[string]interface{}{
			"score":      rec.Score,
			"alpha_id":   rec.AlphaID,
			"expression": rec.Expression,
		},
		rec.MinedAt)
	if err := s.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write factor point: %w", err)
	}
	return nil
}

func (s *InfluxSink) Close() {
	s.client.Close()
}
