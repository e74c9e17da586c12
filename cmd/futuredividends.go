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

var futureDividendsDaysAhead int

// futureDividendsCmd populates forward-looking dividend events, the
// `future-dividends --days-ahead D` mode from §6.
var futureDividendsCmd = &cobra.Command{
	Use:   "future-dividends",
	Short: "Populate forward-looking dividend events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := buildApp(ctx, viper.GetViper())
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("building application: %w", err)}
		}
		defer a.pool.Close()

		summary, err := a.divProc.FetchFutureDividends(ctx, time.Now().UTC(), futureDividendsDaysAhead)
		if err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("future dividends: %w", err)}
		}

		log.Info().Int("daysAhead", futureDividendsDaysAhead).Int("succeeded", summary.Succeeded).Msg("future-dividends complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(futureDividendsCmd)
	futureDividendsCmd.Flags().IntVar(&futureDividendsDaysAhead, "days-ahead", 90, "size of the forward-looking window in days")
}
