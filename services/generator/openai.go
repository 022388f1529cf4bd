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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/alphamine/services/brain"
)

// Config holds the settings for the OpenAI-backed generator. BaseURL
// may point at any OpenAI-compatible endpoint, including a local
// inference server.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// OpenAIGenerator implements Generator over the chat-completion API
// with JSON response mode. One instance is safe for concurrent use.
type OpenAIGenerator struct {
	api         *openai.Client
	model       string
	temperature float32
	log         *slog.Logger
}

// NewOpenAIGenerator builds a generator from config. The API key must
// be present; everything else has workable defaults.
func NewOpenAIGenerator(cfg Config, logger *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generator requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		api:         openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         logger,
	}, nil
}

// SelectDataset asks the model to pick a dataset from the catalog. A
// zero Selection with nil error means the model's answer was unusable;
// the caller falls back to its own choice.
func (g *OpenAIGenerator) SelectDataset(ctx context.Context, datasets []brain.Dataset) (Selection, error) {
	if len(datasets) == 0 {
		return Selection{}, errors.New("cannot select from an empty dataset catalog")
	}

	prompt, err := buildSelectionPrompt(datasets)
	if err != nil {
		return Selection{}, err
	}

	content, err := g.complete(ctx, prompt)
	if err != nil {
		return Selection{}, fmt.Errorf("dataset selection failed: %w", err)
	}

	selection := parseSelection(content)
	if selection.DatasetID == "" {
		g.log.Warn("model returned no usable dataset selection", "content_len", len(content))
	}
	return selection, nil
}

// ProposeSeed asks the model for the first expression on a dataset.
func (g *OpenAIGenerator) ProposeSeed(ctx context.Context, dataset brain.Dataset, fields []brain.DataField, operators []string) (Candidate, error) {
	return g.propose(ctx, buildSeedPrompt(dataset, fields, operators))
}

// ProposeNext asks the model for an expression improving on the run's
// mined history.
func (g *OpenAIGenerator) ProposeNext(ctx context.Context, dataset brain.Dataset, fields []brain.DataField, operators []string, history json.RawMessage) (Candidate, error) {
	return g.propose(ctx, buildImprovementPrompt(dataset, fields, operators, history))
}

func (g *OpenAIGenerator) propose(ctx context.Context, prompt string) (Candidate, error) {
	content, err := g.complete(ctx, prompt)
	if err != nil {
		return Candidate{}, fmt.Errorf("candidate generation failed: %w", err)
	}

	candidate := parseCandidate(content)
	if candidate.Empty() {
		g.log.Warn("model returned no usable expression", "content_len", len(content))
	} else {
		g.log.Debug("model proposed candidate", "expression", candidate.Expression)
	}
	return candidate, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
