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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/AleutianAI/alphamine/pkg/validation"
)

// ErrNoSimulationID signals that the simulation pipeline completed
// without assigning a usable alpha identifier; the candidate cannot be
// checked and the cycle must be abandoned.
var ErrNoSimulationID = errors.New("simulation returned no alpha id")

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 120
)

// Evaluator submits candidate expressions for simulation and retrieves
// their quality reports. The settings object is fixed for the run;
// only the expression varies. Each call is network-bound: submission,
// bounded polling until the simulation finishes, then a check fetch.
type Evaluator struct {
	session  *Session
	settings SimulationSettings
	log      *slog.Logger

	pollInterval time.Duration
	maxPolls     int
}

// NewEvaluator creates an Evaluator over an authenticated session.
func NewEvaluator(session *Session, settings SimulationSettings, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		session:      session,
		settings:     settings,
		log:          logger,
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}
}

type simulationRequest struct {
	Type     string             `json:"type"`
	Settings SimulationSettings `json:"settings"`
	Regular  string             `json:"regular"`
}

type simulationStatus struct {
	ID       string  `json:"id"`
	Status   string  `json:"status"`
	AlphaID  string  `json:"alpha"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Evaluate runs one candidate expression through the simulator and
// returns its quality report. Field identifiers in the expression are
// substituted back to their canonical catalog casing before submission;
// the simulation language is case-sensitive and the generator is not
// reliable about casing.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, fields []DataField) (*QualityReport, error) {
	expr, err := validation.SanitizeExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("candidate rejected before submission: %w", err)
	}
	expr = CanonicalizeFields(expr, fields)

	e.log.Info("submitting simulation", "expression", expr)

	resp, err := e.session.post(ctx, "/simulations", simulationRequest{
		Type:     "REGULAR",
		Settings: e.settings,
		Regular:  expr,
	})
	if err != nil {
		return nil, fmt.Errorf("simulation submission failed: %w", err)
	}
	location := resp.Header.Get("Location")
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("simulation submission returned status %d: %s", resp.StatusCode, string(body))
	}
	if location == "" {
		return nil, fmt.Errorf("simulation submission returned no progress location: %w", ErrNoSimulationID)
	}

	alphaID, err := e.awaitAlpha(ctx, e.session.resolveURL(location))
	if err != nil {
		return nil, err
	}

	report, err := e.fetchCheck(ctx, alphaID)
	if err != nil {
		return nil, err
	}

	score, ok := report.PrimaryScore()
	e.log.Info("simulation complete",
		"alpha_id", alphaID, "status", report.Status,
		"checks", len(report.IS.Checks), "score", score, "score_present", ok)
	return report, nil
}

// awaitAlpha polls the simulation progress URL until the platform
// assigns an alpha id or the poll budget is exhausted.
func (e *Evaluator) awaitAlpha(ctx context.Context, progressURL string) (string, error) {
	for attempt := 0; attempt < e.maxPolls; attempt++ {
		resp, err := e.session.getURL(ctx, progressURL)
		if err != nil {
			return "", fmt.Errorf("simulation progress request failed: %w", err)
		}

		var status simulationStatus
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("simulation progress returned status %d", resp.StatusCode)
		}
		if decodeErr != nil {
			return "", fmt.Errorf("failed to decode simulation progress: %w", decodeErr)
		}

		switch status.Status {
		case "COMPLETE", "WARNING":
			if status.AlphaID == "" {
				return "", fmt.Errorf("simulation finished with status %s: %w", status.Status, ErrNoSimulationID)
			}
			return status.AlphaID, nil
		case "ERROR", "FAIL", "FAILED":
			return "", fmt.Errorf("simulation failed: %s: %w", status.Message, ErrNoSimulationID)
		}

		e.log.Debug("simulation in progress",
			"status", status.Status, "progress", status.Progress, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
	return "", fmt.Errorf("simulation did not finish within %d polls: %w", e.maxPolls, ErrNoSimulationID)
}

// fetchCheck retrieves the check collection for a finished alpha.
func (e *Evaluator) fetchCheck(ctx context.Context, alphaID string) (*QualityReport, error) {
	resp, err := e.session.getURL(ctx, e.session.resolveURL("/alphas/"+alphaID+"/check"))
	if err != nil {
		return nil, fmt.Errorf("check request failed for alpha %s: %w", alphaID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read check response for alpha %s: %w", alphaID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check returned status %d for alpha %s: %s", resp.StatusCode, alphaID, string(raw))
	}

	var report QualityReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("failed to decode check response for alpha %s: %w", alphaID, err)
	}
	report.AlphaID = alphaID
	report.Raw = raw
	return &report, nil
}

// CanonicalizeFields rewrites every known field identifier in the
// expression to its catalog casing, matching case-insensitively on
// whole identifiers. "Close" becomes "close" when the catalog defines
// "close"; unknown identifiers pass through untouched.
func CanonicalizeFields(expression string, fields []DataField) string {
	for _, field := range fields {
		if field.ID == "" {
			continue
		}
		pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(field.ID) + `\b`)
		expression = pattern.ReplaceAllString(expression, field.ID)
	}
	return expression
}
