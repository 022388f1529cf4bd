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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	outputDir    string
	maxFactors   int
	minScore     float64
	statusListen string

	rootCmd = &cobra.Command{
		Use:   "alphamine",
		Short: "A cli to mine alpha factors on the WorldQuant BRAIN platform",
		Long: `Alphamine drives an LLM through the generate, simulate, check
loop of alpha factor mining: it selects a dataset, asks the model
for candidate expressions, simulates them, and keeps the ones whose
quality checks clear the bar.`,
	}

	// --- Mining ---
	mineCmd = &cobra.Command{
		Use:   "mine",
		Short: "Run the factor mining loop until the factor cap is reached",
		Run:   runMine, // Defined in cmd_mine.go
	}

	// --- Catalog Inspection ---
	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the platform's dataset, field, and operator catalogs",
	}
	datasetsCmd = &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets available in the configured region and universe",
		Run:   runListDatasets, // Defined in cmd_catalog.go
	}
	fieldsCmd = &cobra.Command{
		Use:   "fields [dataset_id...]",
		Short: "List the data fields of one or more datasets",
		Args:  cobra.MinimumNArgs(1),
		Run:   runListFields, // Defined in cmd_catalog.go
	}
	operatorsCmd = &cobra.Command{
		Use:   "operators",
		Short: "List the operator vocabulary",
		Run:   runListOperators, // Defined in cmd_catalog.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the yaml configuration file")

	mineCmd.Flags().StringVar(&outputDir, "output", "", "Override the snapshot output directory")
	mineCmd.Flags().IntVar(&maxFactors, "max-factors", 0, "Override the factor cap")
	mineCmd.Flags().Float64Var(&minScore, "min-score", 0, "Override the acceptance score bar")
	mineCmd.Flags().StringVar(&statusListen, "status-listen", "", "Override the status server listen address")

	catalogCmd.AddCommand(datasetsCmd)
	catalogCmd.AddCommand(fieldsCmd)
	catalogCmd.AddCommand(operatorsCmd)

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(catalogCmd)
}
