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
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// discoverCmd runs Discovery + the Validator and persists the surviving
// universe, the `discover` mode from §6.
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Enumerate the tradable universe and validate liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := buildApp(ctx, viper.GetViper())
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("building application: %w", err)}
		}
		defer a.pool.Close()

		candidates, err := a.discovery.Discover(ctx)
		if err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("discovery: %w", err)}
		}

		now := time.Now().UTC()
		survivors, err := a.validator.ValidateAll(ctx, candidates, now)
		if err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("validation: %w", err)}
		}

		if err := a.repo.UpsertSymbols(ctx, survivors); err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("persisting symbols: %w", err)}
		}

		log.Info().
			Int("candidates", len(candidates)).
			Int("survivors", len(survivors)).
			Int("excluded", len(candidates)-len(survivors)).
			Msg("discovery complete")

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Metric", "Count"})
		table.Append([]string{"Candidates", fmt.Sprintf("%d", len(candidates))})
		table.Append([]string{"Survivors", fmt.Sprintf("%d", len(survivors))})
		table.Append([]string{"Excluded", fmt.Sprintf("%d", len(candidates)-len(survivors))})
		table.Render()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
