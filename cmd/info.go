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

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/marketraw/ingestd/repository"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display information about the raw data layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := buildApp(ctx, viper.GetViper())
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("building application: %w", err)}
		}
		defer a.pool.Close()

		summary, err := a.repo.Summarize(ctx)
		if err != nil {
			return exitCodeErr{code: 1, err: fmt.Errorf("summarizing raw layer: %w", err)}
		}

		doc := renderSummary(summary)

		r, _ := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)

		out, err := r.Render(doc)
		if err != nil {
			log.Warn().Err(err).Msg("could not render summary document, falling back to plain text")
			fmt.Print(doc)
			return nil
		}

		fmt.Print(out)
		return nil
	},
}

func renderSummary(s repository.Summary) string {
	p := message.NewPrinter(language.English)

	doc := "# Raw Layer Summary\n\n## Details\n\n"
	doc += p.Sprintf("  * Symbols tracked: %d\n", s.TotalSymbols)
	doc += p.Sprintf("  * Symbols excluded: %d\n", s.ExcludedSymbols)
	doc += p.Sprintf("  * Price bars stored: %d\n", s.TotalPriceBars)
	doc += p.Sprintf("  * Dividend events stored: %d\n", s.TotalDividends)

	if !s.LatestPriceDate.IsZero() {
		doc += fmt.Sprintf("  * Most recent price date: %s (%s)\n", s.LatestPriceDate.Format("2006-01-02"), timeago.English.Format(s.LatestPriceDate))
	}

	return doc
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
