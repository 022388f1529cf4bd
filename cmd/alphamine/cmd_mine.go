// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/alphamine/services/brain"
	"github.com/AleutianAI/alphamine/services/generator"
	"github.com/AleutianAI/alphamine/services/miner"
)

// runMine wires the collaborators and drives the mining loop until the
// factor cap is reached or the process receives SIGINT/SIGTERM.
func runMine(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slogger := logger.Slog()

	email := resolveSecret("BRAIN_EMAIL")
	password := resolveSecret("BRAIN_PASSWORD")
	if email == "" || password == "" {
		log.Fatal("BRAIN_EMAIL and BRAIN_PASSWORD must be set in the environment or /run/secrets")
	}

	session := brain.NewSession(brain.SessionConfig{
		BaseURL:           config.Brain.BaseURL,
		Email:             email,
		Password:          password,
		RequestsPerSecond: config.Brain.RequestsPerSecond,
	}, slogger)
	if err := session.Authenticate(ctx); err != nil {
		log.Fatalf("Error authenticating with the BRAIN platform: %v", err)
	}

	gen, err := generator.NewOpenAIGenerator(generator.Config{
		APIKey:      resolveSecret("OPENAI_API_KEY"),
		BaseURL:     config.AI.BaseURL,
		Model:       config.AI.Model,
		Temperature: config.AI.Temperature,
	}, slogger)
	if err != nil {
		log.Fatalf("Error creating the candidate generator: %v", err)
	}

	dir := config.Mining.OutputDir
	if outputDir != "" {
		dir = outputDir
	}
	store, err := miner.NewSnapshotStore(dir, slogger)
	if err != nil {
		log.Fatalf("Error preparing the snapshot directory: %v", err)
	}

	minerCfg := config.MinerConfig()
	if maxFactors > 0 {
		minerCfg.MaxFactors = maxFactors
	}
	if minScore > 0 {
		minerCfg.MinScore = minScore
	}

	var sink miner.ScoreSink = miner.NopSink{}
	if config.InfluxDB.URL != "" {
		influx := miner.NewInfluxSink(config.InfluxDB.URL, resolveSecret("INFLUXDB_TOKEN"),
			config.InfluxDB.Org, config.InfluxDB.Bucket)
		defer influx.Close()
		sink = influx
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	board := &miner.StatusBoard{}

	controller, err := miner.NewController(minerCfg, miner.Deps{
		Catalog:   session,
		Generator: gen,
		Evaluator: brain.NewEvaluator(session, config.SimulationSettings(), slogger),
		Store:     store,
		Metrics:   miner.NewMetrics(registry),
		Board:     board,
		Sink:      sink,
		Logger:    slogger,
	})
	if err != nil {
		log.Fatalf("Error building the mining controller: %v", err)
	}

	var statusSrv *http.Server
	if config.Status.Enabled {
		listen := config.Status.Listen
		if statusListen != "" {
			listen = statusListen
		}
		statusSrv = &http.Server{
			Addr:    listen,
			Handler: miner.NewStatusRouter(board, registry),
		}
		go func() {
			slogger.Info("status server listening", "addr", listen)
			if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slogger.Error("status server failed", "error", err)
			}
		}()
	}

	err = controller.Run(ctx)

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		statusSrv.Shutdown(shutdownCtx)
		cancel()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Mining run failed: %v", err)
	}
}
