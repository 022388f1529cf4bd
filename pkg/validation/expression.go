// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for values that
// cross a trust boundary before being sent to remote services.
//
// The mining loop forwards LLM-produced factor expressions and dataset
// identifiers into BRAIN API requests. Validating them here prevents a
// malformed or adversarial generator response from producing garbage
// simulations or broken request URLs.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// MaxExpressionLength bounds factor expressions before submission.
// The remote simulator rejects long expressions anyway; failing locally
// gives a clearer error and saves a simulation slot.
const MaxExpressionLength = 512

// datasetIDPattern matches BRAIN dataset identifiers such as
// "fundamental6" or "analyst4". Lowercase alphanumerics and underscores.
var datasetIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,63}$`)

// expressionCharPattern matches the character set of a FASTEXPR factor
// expression: field ids, operator names, numbers, arithmetic and
// punctuation. Anything outside this set (quotes, semicolons, braces)
// indicates the generator went off the rails.
var expressionCharPattern = regexp.MustCompile(`^[A-Za-z0-9_+\-*/^<>=!?:.,()\s]+$`)

// ValidateDatasetID validates a dataset identifier before it is
// interpolated into a catalog request path.
func ValidateDatasetID(id string) error {
	if id == "" {
		return fmt.Errorf("dataset id cannot be empty")
	}
	if !datasetIDPattern.MatchString(id) {
		return fmt.Errorf("invalid dataset id format: %q (must be 1-64 lowercase alphanumeric chars or underscores)", id)
	}
	return nil
}

// SanitizeDatasetID normalizes and validates a dataset identifier.
// Returns the lowercase id if valid, or an error if invalid.
func SanitizeDatasetID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateDatasetID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateExpression checks a candidate factor expression for the
// failure modes the generator is known to produce: empty output,
// unbalanced parentheses, runaway length, and characters outside the
// expression language.
func ValidateExpression(expr string) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return fmt.Errorf("expression cannot be empty")
	}
	if len(trimmed) > MaxExpressionLength {
		return fmt.Errorf("expression too long: %d chars (max %d)", len(trimmed), MaxExpressionLength)
	}
	if !expressionCharPattern.MatchString(trimmed) {
		return fmt.Errorf("expression contains characters outside the factor language: %q", trimmed)
	}

	depth := 0
	for _, r := range trimmed {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses in expression: %q", trimmed)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses in expression: %q", trimmed)
	}
	return nil
}

// SanitizeExpression trims and validates a candidate expression.
// Returns the trimmed expression if valid, or an error if invalid.
func SanitizeExpression(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)
	if err := ValidateExpression(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// PositiveInt validates an externally supplied run limit.
func PositiveInt(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %d", name, v)
	}
	return nil
}

// FiniteFloat validates an externally supplied threshold.
func FiniteFloat(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %v", name, v)
	}
	return nil
}
