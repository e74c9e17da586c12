// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/marketraw/ingestd/pipeline"
)

var (
	updateFromDate      string
	updatePricesOnly    bool
	updateDividendsOnly bool
	updateCompaniesOnly bool
	updateForce         bool
	updateDryRun        bool
	updateLimit         int
)

// updateCmd represents the daily ingestion mode described in §6.
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run the daily incremental ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var fromDateOverride *time.Time
		if updateFromDate != "" {
			parsed, err := time.Parse("2006-01-02", updateFromDate)
			if err != nil {
				return exitCodeErr{code: 2, err: fmt.Errorf("--from-date: %w", err)}
			}
			fromDateOverride = &parsed
		}

		a, err := buildApp(ctx, viper.GetViper())
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("building application: %w", err)}
		}
		defer a.pool.Close()

		now := time.Now().UTC()
		o := a.orchestrator()
		report, err := o.RunUpdate(ctx, pipeline.RunOptions{
			Force:            updateForce || a.cfg.ForceRun,
			DryRun:           updateDryRun,
			PricesOnly:       updatePricesOnly,
			DividendsOnly:    updateDividendsOnly,
			CompaniesOnly:    updateCompaniesOnly,
			Limit:            updateLimit,
			FromDateOverride: fromDateOverride,
		}, now)
		if err != nil {
			log.Error().Err(err).Msg("update run failed")
		}

		rendered, rerr := pipeline.RenderReport(report)
		if rerr != nil {
			log.Warn().Err(rerr).Msg("could not render run report")
		} else {
			fmt.Print(rendered)
		}

		if code := report.ExitCode(); code != 0 {
			return exitCodeErr{code: code, err: fmt.Errorf("update finished with exit code %d", code)}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&updateFromDate, "from-date", "", "override the planner's per-symbol from_date (YYYY-MM-DD)")
	updateCmd.Flags().BoolVar(&updatePricesOnly, "prices-only", false, "only run the price phase")
	updateCmd.Flags().BoolVar(&updateDividendsOnly, "dividends-only", false, "only run the dividend phase")
	updateCmd.Flags().BoolVar(&updateCompaniesOnly, "companies-only", false, "only run the company phase")
	updateCmd.Flags().BoolVar(&updateForce, "force", false, "ignore staleness skip and the market-hours gate")
	updateCmd.Flags().BoolVar(&updateDryRun, "dry-run", false, "compute plans and print counts without writing")
	updateCmd.Flags().IntVar(&updateLimit, "limit", 0, "cap the work list size (0 = unlimited)")
}
