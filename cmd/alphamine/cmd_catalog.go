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
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/alphamine/services/brain"
)

// fieldFetchConcurrency bounds parallel field listings so the shared
// rate limiter is not starved by one wide request.
const fieldFetchConcurrency = 4

func newCatalogSession(ctx context.Context) *brain.Session {
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
	}, logger.Slog())
	if err := session.Authenticate(ctx); err != nil {
		log.Fatalf("Error authenticating with the BRAIN platform: %v", err)
	}
	return session
}

func runListDatasets(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := newCatalogSession(ctx)
	datasets, err := session.ListDatasets(ctx,
		config.Simulation.Region, config.Simulation.Delay, config.Simulation.Universe)
	if err != nil {
		log.Fatalf("Error listing datasets: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOVERAGE\tUSERS\tALPHAS")
	for _, ds := range datasets {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%d\n",
			ds.ID, ds.Name, ds.Coverage, ds.UserCount, ds.AlphaCount)
	}
	w.Flush()
}

func runListFields(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := newCatalogSession(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fieldFetchConcurrency)
	results := make([][]brain.DataField, len(args))
	for i, datasetID := range args {
		g.Go(func() error {
			fields, err := session.ListFields(gctx, datasetID,
				config.Simulation.Region, config.Simulation.Delay, config.Simulation.Universe)
			if err != nil {
				return fmt.Errorf("dataset %s: %w", datasetID, err)
			}
			results[i] = fields
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("Error listing fields: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tFIELD\tTYPE\tDESCRIPTION")
	for i, datasetID := range args {
		for _, f := range results[i] {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", datasetID, f.ID, f.Type, f.Description)
		}
	}
	w.Flush()
}

func runListOperators(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := newCatalogSession(ctx)
	operators, err := session.ListOperators(ctx)
	if err != nil {
		log.Fatalf("Error listing operators: %v", err)
	}
	fmt.Println(strings.Join(operators, "\n"))
}
