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

// Package config holds the single, validated, read-only configuration
// struct every other component receives by reference. It is built once at
// startup from viper (flags, env, config file) and never read ad-hoc
// afterward.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

type API struct {
	PrimaryKey          string
	SecondaryKey        string
	TertiaryKey         string
	PrimaryConcurrency  int
	SecondaryConcurrency int
	TertiaryConcurrency int
	BatchQuoteConcurrency int
	RequestTimeout      time.Duration
}

type Fetch struct {
	UseBatchEod           bool
	BatchEodDays          int
	UseBatchQuoteFilter   bool
	FilterDividendSymbols bool
	CacheCompanyData      bool
	CompanyCacheDays      int
	StalenessHours        int
	PricesStartDate       time.Time
	AutoExcludeAfterEmpty int
}

type Exchange struct {
	Allowed         map[string]bool
	BlockedSuffixes []string
	HolidayCalendar string
}

type DB struct {
	URL              string
	ServiceKey       string
	UpsertBatchSize  int
	WriteConcurrency int
}

type Features struct {
	UseAdjustedClose bool
	TrackAUM         bool
	TrackIV          bool
}

// Config is the process-wide, validated configuration. It is built once
// by FromViper and passed by reference to every component; nothing reads
// viper directly outside this package.
type Config struct {
	Environment string
	ForceRun    bool
	HealthCheckURL string

	API      API
	Fetch    Fetch
	Exchange Exchange
	DB       DB
	Features Features
}

// LedgerPriorityOrder returns the source preference order PreferredSource
// walks: PRIMARY, TERTIARY, SECONDARY per §4.5. The order is fixed; no
// configuration key changes it.
func (c *Config) LedgerPriorityOrder() []source.Name {
	return []source.Name{source.Primary, source.Tertiary, source.Secondary}
}

// Validate performs the "fails fast" startup checks §4.1 describes:
// required credentials present, numeric options in range.
func (c *Config) Validate() error {
	var missing []string
	if c.API.PrimaryKey == "" {
		missing = append(missing, "api.primary_key")
	}
	if c.DB.URL == "" {
		missing = append(missing, "db.url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}

	type rangeCheck struct {
		name string
		val  int
	}
	for _, rc := range []rangeCheck{
		{"api.primary_concurrency", c.API.PrimaryConcurrency},
		{"db.upsert_batch_size", c.DB.UpsertBatchSize},
		{"db.write_concurrency", c.DB.WriteConcurrency},
		{"fetch.batch_eod_days", c.Fetch.BatchEodDays},
		{"fetch.staleness_hours", c.Fetch.StalenessHours},
		{"fetch.company_cache_days", c.Fetch.CompanyCacheDays},
	} {
		if rc.val <= 0 {
			return fmt.Errorf("config: %s must be > 0, got %d", rc.name, rc.val)
		}
	}

	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("config: environment must be development or production, got %q", c.Environment)
	}

	return nil
}

// FromViper builds a Config from whatever viper has already loaded
// (flags bound via cobra, environment via viper.AutomaticEnv(), and an
// optional config file), applying the defaults §4.1 names.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)

	allowed := map[string]bool{}
	for _, ex := range v.GetStringSlice("exchange.allowed") {
		allowed[strings.ToUpper(ex)] = true
	}

	startDate, err := time.Parse("2006-01-02", v.GetString("fetch.prices_start_date"))
	if err != nil {
		startDate = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	return &Config{
		Environment:    v.GetString("environment"),
		ForceRun:       v.GetBool("force_run"),
		HealthCheckURL: v.GetString("healthcheck.url"),
		API: API{
			PrimaryKey:            v.GetString("api.primary_key"),
			SecondaryKey:          v.GetString("api.secondary_key"),
			TertiaryKey:           v.GetString("api.tertiary_key"),
			PrimaryConcurrency:    v.GetInt("api.primary_concurrency"),
			SecondaryConcurrency:  v.GetInt("api.secondary_concurrency"),
			TertiaryConcurrency:   v.GetInt("api.tertiary_concurrency"),
			BatchQuoteConcurrency: v.GetInt("api.batch_quote_concurrency"),
			RequestTimeout:        v.GetDuration("api.request_timeout"),
		},
		Fetch: Fetch{
			UseBatchEod:           v.GetBool("fetch.use_batch_eod"),
			BatchEodDays:          v.GetInt("fetch.batch_eod_days"),
			UseBatchQuoteFilter:   v.GetBool("fetch.use_batch_quote_filter"),
			FilterDividendSymbols: v.GetBool("fetch.filter_dividend_symbols"),
			CacheCompanyData:      v.GetBool("fetch.cache_company_data"),
			CompanyCacheDays:      v.GetInt("fetch.company_cache_days"),
			StalenessHours:        v.GetInt("fetch.staleness_hours"),
			PricesStartDate:       startDate,
			AutoExcludeAfterEmpty: v.GetInt("fetch.auto_exclude_after_empty"),
		},
		Exchange: Exchange{
			Allowed:         allowed,
			BlockedSuffixes: append([]string{}, v.GetStringSlice("exchange.blocked_suffixes")...),
			HolidayCalendar: v.GetString("exchange.holiday_calendar"),
		},
		DB: DB{
			URL:              v.GetString("db.url"),
			ServiceKey:       v.GetString("db.service_key"),
			UpsertBatchSize:  v.GetInt("db.upsert_batch_size"),
			WriteConcurrency: v.GetInt("db.write_concurrency"),
		},
		Features: Features{
			UseAdjustedClose: v.GetBool("features.use_adjusted_close"),
			TrackAUM:         v.GetBool("features.track_aum"),
			TrackIV:          v.GetBool("features.track_iv"),
		},
	}
}

// FromEnv is the non-interactive entrypoint cmd/ uses: it binds the §6
// environment variables onto the expected viper keys, then delegates to
// FromViper.
func FromEnv(v *viper.Viper) *Config {
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	bind := map[string]string{
		"api.primary_key":   "PRIMARY_API_KEY",
		"api.secondary_key": "SECONDARY_API_KEY",
		"api.tertiary_key":  "TERTIARY_API_KEY",
		"db.url":            "DB_URL",
		"db.service_key":    "DB_SERVICE_KEY",
		"environment":       "ENVIRONMENT",
		"force_run":         "FORCE_RUN",
	}
	for key, env := range bind {
		_ = v.BindEnv(key, env)
	}

	return FromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("api.primary_concurrency", 60)
	v.SetDefault("api.secondary_concurrency", 30)
	v.SetDefault("api.tertiary_concurrency", 30)
	v.SetDefault("api.batch_quote_concurrency", 10)
	v.SetDefault("api.request_timeout", 30*time.Second)
	v.SetDefault("fetch.use_batch_eod", true)
	v.SetDefault("fetch.batch_eod_days", 30)
	v.SetDefault("fetch.use_batch_quote_filter", true)
	v.SetDefault("fetch.filter_dividend_symbols", true)
	v.SetDefault("fetch.cache_company_data", true)
	v.SetDefault("fetch.company_cache_days", 90)
	v.SetDefault("fetch.staleness_hours", 20)
	v.SetDefault("fetch.prices_start_date", "1960-01-01")
	v.SetDefault("fetch.auto_exclude_after_empty", 5)
	v.SetDefault("exchange.allowed", []string{"XNAS", "XNYS", "ARCX", "BATS", "XTSE", "XTSX"})
	v.SetDefault("exchange.blocked_suffixes", defaultBlockedSuffixes())
	v.SetDefault("exchange.holiday_calendar", "us-eastern")
	v.SetDefault("db.upsert_batch_size", 500)
	v.SetDefault("db.write_concurrency", 8)
	v.SetDefault("features.use_adjusted_close", true)
	v.SetDefault("features.track_aum", true)
	v.SetDefault("features.track_iv", true)
}

// defaultBlockedSuffixes seeds exchange.blocked_suffixes from the
// model's canonical non-target exchange qualifier list, so the default
// and the compiled-in fallback can never drift apart.
func defaultBlockedSuffixes() []string {
	return append([]string{}, model.BlockedSuffixes...)
}
