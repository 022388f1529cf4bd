// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package brain

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/AleutianAI/alphamine/pkg/validation"
)

// fieldPageSize is the page size for data-field listing. The remote
// endpoint caps pages at 50.
const fieldPageSize = 50

// ErrPartialCatalog signals that a paged listing failed partway
// through; the returned slice holds everything aggregated before the
// failing page.
var ErrPartialCatalog = errors.New("partial catalog result")

type pagedEnvelope[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

type operatorInfo struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListDatasets returns the dataset catalog for a region, delay, and
// universe scope.
func (s *Session) ListDatasets(ctx context.Context, region string, delay int, universe string) ([]Dataset, error) {
	query := url.Values{
		"region":         {region},
		"delay":          {strconv.Itoa(delay)},
		"universe":       {universe},
		"instrumentType": {"EQUITY"},
		"limit":          {"100"},
	}

	var envelope pagedEnvelope[Dataset]
	if err := s.get(ctx, "/data-sets", query, &envelope); err != nil {
		return nil, fmt.Errorf("dataset listing failed: %w", err)
	}

	s.log.Info("fetched dataset catalog",
		"region", region, "delay", delay, "universe", universe,
		"datasets", len(envelope.Results))
	return envelope.Results, nil
}

// ListFields returns every data field of a dataset within the given
// region, delay, and universe scope, paging through the remote
// collection and aggregating client-side. The scope must match the
// simulation settings or the fields offered to the generator will not
// exist in the simulated universe. If a page request fails after the
// first, the fields fetched so far are returned along with an error
// wrapping ErrPartialCatalog; callers decide whether a partial field
// set is usable.
func (s *Session) ListFields(ctx context.Context, datasetID, region string, delay int, universe string) ([]DataField, error) {
	id, err := validation.SanitizeDatasetID(datasetID)
	if err != nil {
		return nil, fmt.Errorf("field listing rejected: %w", err)
	}

	query := url.Values{
		"dataset.id":     {id},
		"delay":          {strconv.Itoa(delay)},
		"instrumentType": {"EQUITY"},
		"region":         {region},
		"universe":       {universe},
		"limit":          {strconv.Itoa(fieldPageSize)},
		"offset":         {"0"},
	}

	var first pagedEnvelope[DataField]
	if err := s.get(ctx, "/data-fields", query, &first); err != nil {
		return nil, fmt.Errorf("field listing failed for dataset %s: %w", id, err)
	}

	fields := first.Results
	for offset := fieldPageSize; offset < first.Count; offset += fieldPageSize {
		query.Set("offset", strconv.Itoa(offset))

		var page pagedEnvelope[DataField]
		if err := s.get(ctx, "/data-fields", query, &page); err != nil {
			s.log.Warn("field page fetch failed, returning partial result",
				"dataset", id, "offset", offset, "fetched", len(fields), "error", err)
			return fields, fmt.Errorf("field page at offset %d failed for dataset %s: %v: %w",
				offset, id, err, ErrPartialCatalog)
		}
		fields = append(fields, page.Results...)
	}

	s.log.Info("fetched dataset fields", "dataset", id, "fields", len(fields))
	return fields, nil
}

// ListOperators returns the operator vocabulary. Fetched once per run
// and treated as immutable afterwards.
func (s *Session) ListOperators(ctx context.Context) ([]string, error) {
	var operators []operatorInfo
	if err := s.get(ctx, "/operators", nil, &operators); err != nil {
		return nil, fmt.Errorf("operator listing failed: %w", err)
	}

	names := make([]string, 0, len(operators))
	for _, op := range operators {
		if op.Name != "" {
			names = append(names, op.Name)
		}
	}

	s.log.Info("fetched operator vocabulary", "operators", len(names))
	return names, nil
}
