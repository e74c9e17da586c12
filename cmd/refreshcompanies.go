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
)

var refreshCompaniesLimit int

// refreshCompaniesCmd targets symbols whose company metadata has never
// been filled in, the `refresh-companies --limit N` mode from §6.
var refreshCompaniesCmd = &cobra.Command{
	Use:   "refresh-companies",
	Short: "Backfill company/ETF metadata for symbols missing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := buildApp(ctx, viper.GetViper())
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("building application: %w", err)}
		}
		defer a.pool.Close()

		symbols, err := a.repo.SymbolsMissingName(ctx, refreshCompaniesLimit)
		if err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("listing symbols missing company data: %w", err)}
		}

		summary, err := a.coProc.Run(ctx, symbols, time.Now().UTC())
		if err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("company refresh: %w", err)}
		}

		log.Info().
			Int("targeted", len(symbols)).
			Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed).
			Msg("refresh-companies complete")

		if summary.FailureRate() >= 0.05 {
			return exitCodeErr{code: 1, err: fmt.Errorf("refresh-companies failure rate %.1f%% exceeded threshold", summary.FailureRate()*100)}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCompaniesCmd)
	refreshCompaniesCmd.Flags().IntVar(&refreshCompaniesLimit, "limit", 0, "cap the number of symbols targeted (0 = unlimited)")
}
