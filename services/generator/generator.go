// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generator produces candidate alpha expressions through an
// LLM. The model is asked for JSON; everything except the expression
// text is informational and never validated beyond presence. Malformed
// model output degrades to an empty candidate rather than an error:
// the mining loop treats "nothing usable" as an ordinary outcome and
// moves on.
package generator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/AleutianAI/alphamine/services/brain"
)

// Candidate is one proposed factor expression with the model's
// rationale. Only Expression is load-bearing.
type Candidate struct {
	Expression  string   `json:"factor_expression"`
	Explanation string   `json:"explanation,omitempty"`
	Fields      []string `json:"fields,omitempty"`
	Operators   []string `json:"operators,omitempty"`
}

// Empty reports whether the candidate carries no usable expression.
func (c Candidate) Empty() bool {
	return strings.TrimSpace(c.Expression) == ""
}

// Selection is the model's dataset choice with its stated reason.
type Selection struct {
	DatasetID string `json:"selected_dataset"`
	Reason    string `json:"reason,omitempty"`
}

// Generator is the candidate-generation capability consumed by the
// mining controller. Implementations are stateless per call. An empty
// Candidate (or zero Selection) with a nil error is a legitimate
// outcome meaning the model produced nothing usable.
type Generator interface {
	// SelectDataset picks a dataset from the catalog for the next
	// mining cycle.
	SelectDataset(ctx context.Context, datasets []brain.Dataset) (Selection, error)

	// ProposeSeed produces the first expression for a freshly selected
	// dataset.
	ProposeSeed(ctx context.Context, dataset brain.Dataset, fields []brain.DataField, operators []string) (Candidate, error)

	// ProposeNext produces a revised expression given the serialized
	// sequence of every factor mined so far, so the model can steer
	// away from correlation with the whole history rather than just
	// the previous attempt.
	ProposeNext(ctx context.Context, dataset brain.Dataset, fields []brain.DataField, operators []string, history json.RawMessage) (Candidate, error)
}

type candidateResponse struct {
	FactorExpression string `json:"factor_expression"`
	Explanation      string `json:"explanation"`
	Components       struct {
		Fields    []string `json:"fields"`
		Operators []string `json:"operators"`
	} `json:"components"`
}

type selectionResponse struct {
	SelectedDataset string `json:"selected_dataset"`
	Reason          string `json:"reason"`
}

// parseCandidate extracts a Candidate from raw model output. Returns
// an empty Candidate on any malformation.
func parseCandidate(content string) Candidate {
	var resp candidateResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return Candidate{}
	}
	return Candidate{
		Expression:  strings.TrimSpace(resp.FactorExpression),
		Explanation: resp.Explanation,
		Fields:      resp.Components.Fields,
		Operators:   resp.Components.Operators,
	}
}

// parseSelection extracts a Selection from raw model output. Returns a
// zero Selection on any malformation.
func parseSelection(content string) Selection {
	var resp selectionResponse
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return Selection{}
	}
	return Selection{
		DatasetID: strings.TrimSpace(resp.SelectedDataset),
		Reason:    resp.Reason,
	}
}

// stripFences removes a markdown code fence wrapper if the model
// ignored the JSON response format and wrapped its output anyway.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
