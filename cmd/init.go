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
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketraw/ingestd/db"
)

// initSettings is the subset of config gathered by flags and saved to the
// TOML config file; everything else keeps its §4.1 default.
type initSettings struct {
	DBUrl        string `toml:"db.url"`
	PrimaryKey   string `toml:"api.primary_key"`
	SecondaryKey string `toml:"api.secondary_key"`
	TertiaryKey  string `toml:"api.tertiary_key"`
	Environment  string `toml:"environment"`
}

var initFlags initSettings

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the raw-layer schema and save connection settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := pgx.ParseConfig(initFlags.DBUrl); err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("invalid --db-url: %w", err)}
		}

		log.Info().Msg("creating raw-layer schema")
		if err := db.Migrate(initFlags.DBUrl); err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("running migration: %w", err)}
		}
		log.Info().Msg("raw-layer schema created")

		home, err := os.UserHomeDir()
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("determining home directory: %w", err)}
		}

		configFN := filepath.Join(home, ".ingestd.toml")
		configData, err := toml.Marshal(initFlags)
		if err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("marshaling config: %w", err)}
		}

		if err := os.WriteFile(configFN, configData, 0600); err != nil {
			return exitCodeErr{code: 2, err: fmt.Errorf("writing %s: %w", configFN, err)}
		}

		log.Info().Str("ConfigFile", configFN).Msg("saved configuration")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initFlags.Environment = "development"
	initCmd.Flags().StringVar(&initFlags.DBUrl, "db-url", "", "PostgreSQL connection string (required)")
	initCmd.Flags().StringVar(&initFlags.PrimaryKey, "primary-key", "", "PRIMARY provider API key")
	initCmd.Flags().StringVar(&initFlags.SecondaryKey, "secondary-key", "", "SECONDARY provider API key")
	initCmd.Flags().StringVar(&initFlags.TertiaryKey, "tertiary-key", "", "TERTIARY provider API key")
	initCmd.Flags().StringVar(&initFlags.Environment, "environment", "development", "development or production")
	_ = initCmd.MarkFlagRequired("db-url")
}
