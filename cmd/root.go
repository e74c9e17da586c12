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
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "ingestd maintains the raw layer of a market-data warehouse",
	Long: `ingestd is a command line utility that incrementally populates the
raw layer of a market-data warehouse: symbols, daily end-of-day prices,
dividend events, corporate actions, and fund metadata for US and
Canadian equities and ETFs.

It consumes three independent third-party providers plus a batch-quote
endpoint, reconciling their coverage through a source-tracking ledger so
the cheapest provider that actually has the data always wins, and writes
idempotently into a relational store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitCodeErr lets a RunE body pick its own §7 process exit code while
// still reporting the error message through the normal cobra/log path.
type exitCodeErr struct {
	code int
	err  error
}

func (e exitCodeErr) Error() string { return e.err.Error() }
func (e exitCodeErr) Unwrap() error { return e.err }
func (e exitCodeErr) ExitCode() int { return e.code }

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ingestd.toml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("toml")
		viper.SetConfigName(".ingestd")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Info().Str("ConfigFN", viper.ConfigFileUsed()).Msg("using config file")
	}
}

// exitCodeFor maps a command error to the §7 process exit codes. cobra
// errors that didn't come from one of our RunE bodies (flag parsing,
// unknown subcommand) still count as a configuration error.
func exitCodeFor(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	type exitCoder interface{ ExitCode() int }
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 2
}
