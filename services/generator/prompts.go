// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/alphamine/services/brain"
)

const systemPrompt = `You are a quantitative researcher specializing in alpha factor ` +
	`construction on the WorldQuant BRAIN platform. You write factor expressions in ` +
	`the FASTEXPR language. Always respond with a single JSON object and nothing else.`

const expressionRules = `Rules for the expression:
1. Use only the data fields and operators listed above, with their exact identifiers.
2. The expression must be a single FASTEXPR statement, at most 512 characters.
3. Prefer economically interpretable constructions over arbitrary combinations.
4. Time-series windows should be between 5 and 250 trading days.
5. Do not use literal ticker symbols or hard-coded instrument lists.`

// maxPromptFields caps how many fields are described in a prompt so
// very wide datasets do not blow the context window.
const maxPromptFields = 150

func buildSelectionPrompt(datasets []brain.Dataset) (string, error) {
	catalog, err := json.MarshalIndent(datasets, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode dataset catalog: %w", err)
	}

	var b strings.Builder
	b.WriteString("Below is the catalog of available datasets as JSON:\n\n")
	b.Write(catalog)
	b.WriteString("\n\nChoose the single dataset most promising for mining new alpha factors. ")
	b.WriteString("Weigh coverage, how many users already mine it, and how many alphas ")
	b.WriteString("already exist on it; crowded datasets yield correlated factors.\n\n")
	b.WriteString(`Respond with JSON: {"selected_dataset": "<dataset id>", "reason": "<one sentence>"}`)
	return b.String(), nil
}

func buildSeedPrompt(dataset brain.Dataset, fields []brain.DataField, operators []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are mining the %q dataset (%s).\n\n", dataset.ID, dataset.Name)
	writeVocabulary(&b, fields, operators)
	b.WriteString("\nPropose one new alpha factor expression using this dataset.\n\n")
	b.WriteString(expressionRules)
	b.WriteString("\n\n")
	b.WriteString(responseShape)
	return b.String()
}

func buildImprovementPrompt(dataset brain.Dataset, fields []brain.DataField, operators []string, history json.RawMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are mining the %q dataset (%s).\n\n", dataset.ID, dataset.Name)
	writeVocabulary(&b, fields, operators)
	b.WriteString("\nThe factors mined so far in this run, as JSON:\n\n")
	b.Write(history)
	b.WriteString("\n\nPropose one improved alpha factor expression. It must differ ")
	b.WriteString("structurally from every factor above, not just in parameter values, ")
	b.WriteString("so that its returns are unlikely to correlate with them.\n\n")
	b.WriteString(expressionRules)
	b.WriteString("\n\n")
	b.WriteString(responseShape)
	return b.String()
}

const responseShape = `Respond with JSON:
{
  "factor_expression": "<the expression>",
  "explanation": "<why this should predict returns>",
  "components": {"fields": ["<field ids used>"], "operators": ["<operators used>"]}
}`

func writeVocabulary(b *strings.Builder, fields []brain.DataField, operators []string) {
	b.WriteString("Available data fields (id: description):\n")
	for i, f := range fields {
		if i >= maxPromptFields {
			fmt.Fprintf(b, "  ... and %d more fields omitted\n", len(fields)-i)
			break
		}
		desc := f.Description
		if desc == "" {
			desc = f.Type
		}
		fmt.Fprintf(b, "  %s: %s\n", f.ID, desc)
	}
	b.WriteString("\nAvailable operators:\n  ")
	b.WriteString(strings.Join(operators, ", "))
	b.WriteString("\n")
}
