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

// wire.go (this file) wires every component from a single config.Config:
// the one place a concrete pgxpool.Pool and the concrete PRIMARY/
// SECONDARY/TERTIARY/BATCH_QUOTE clients are constructed and handed to
// the interface-typed collaborators that make up the Orchestrator.
package cmd

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"

	"github.com/marketraw/ingestd/companyproc"
	"github.com/marketraw/ingestd/config"
	"github.com/marketraw/ingestd/discovery"
	"github.com/marketraw/ingestd/dividendproc"
	"github.com/marketraw/ingestd/healthcheck"
	"github.com/marketraw/ingestd/ledger"
	"github.com/marketraw/ingestd/markethours"
	"github.com/marketraw/ingestd/pipeline"
	"github.com/marketraw/ingestd/planner"
	"github.com/marketraw/ingestd/priceproc"
	"github.com/marketraw/ingestd/ratelimit"
	"github.com/marketraw/ingestd/repository"
	"github.com/marketraw/ingestd/source"
	"github.com/marketraw/ingestd/validator"
)

// app bundles every wired component a cmd/ subcommand might drive, built
// once from config.Config per invocation.
type app struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	repo *repository.Repository
	ledg *ledger.Ledger

	primary    *source.PrimaryClient
	secondary  *source.SecondaryClient
	tertiary   *source.TertiaryClient
	batchQuote *source.BatchQuoteClient

	discovery *discovery.Discovery
	validator *validator.Validator
	planner   *planner.Planner

	priceProc *priceproc.Processor
	divProc   *dividendproc.Processor
	coProc    *companyproc.Processor

	gate   *markethours.Gate
	pinger *healthcheck.Pinger
}

func buildApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg := config.FromEnv(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := repository.Connect(ctx, cfg.DB.URL)
	if err != nil {
		return nil, err
	}

	writeLimiter := ratelimit.New(cfg.DB.WriteConcurrency, 1)
	repo := repository.New(pool, writeLimiter, cfg.DB.UpsertBatchSize)
	ledg := ledger.New(pool, cfg.LedgerPriorityOrder())

	primaryLimiter := ratelimit.New(cfg.API.PrimaryConcurrency, 1)
	secondaryLimiter := ratelimit.New(cfg.API.SecondaryConcurrency, 1)
	tertiaryLimiter := ratelimit.New(cfg.API.TertiaryConcurrency, 1)
	batchLimiter := ratelimit.New(cfg.API.BatchQuoteConcurrency, 1)

	primary := source.NewPrimaryClient(cfg.API.PrimaryKey, cfg.API.RequestTimeout, primaryLimiter)
	secondary := source.NewSecondaryClient(cfg.API.SecondaryKey, cfg.API.RequestTimeout, secondaryLimiter)
	tertiary := source.NewTertiaryClient(cfg.API.TertiaryKey, cfg.API.RequestTimeout, tertiaryLimiter)
	batchQuote := source.NewBatchQuoteClient(cfg.API.PrimaryKey, cfg.API.RequestTimeout, batchLimiter)

	disc := discovery.New(
		[]source.SymbolLister{primary, secondary},
		discovery.Config{Allowed: cfg.Exchange.Allowed, BlockedSuffixes: cfg.Exchange.BlockedSuffixes},
	)
	val := validator.New(repo)
	pl := planner.New(repo, cfg.Fetch.PricesStartDate, cfg.Fetch.StalenessHours)

	pp := priceproc.New(primary, secondary, tertiary, batchQuote, primary, repo, ledg, priceproc.Config{
		UseBatchQuoteFilter: cfg.Fetch.UseBatchQuoteFilter,
		UseBatchEod:         cfg.Fetch.UseBatchEod,
		BatchEodDays:        cfg.Fetch.BatchEodDays,
		Concurrency:         cfg.API.PrimaryConcurrency,
		AutoExcludeAfter:    cfg.Fetch.AutoExcludeAfterEmpty,
	})
	dp := dividendproc.New(primary, secondary, tertiary, repo, ledg, dividendproc.Config{
		FilterDividendSymbols: cfg.Fetch.FilterDividendSymbols,
		Concurrency:           cfg.API.PrimaryConcurrency,
	})
	cp := companyproc.New(primary, secondary, repo, companyproc.Config{
		CacheCompanyData: cfg.Fetch.CacheCompanyData,
		CompanyCacheDays: cfg.Fetch.CompanyCacheDays,
	})

	return &app{
		cfg:        cfg,
		pool:       pool,
		repo:       repo,
		ledg:       ledg,
		primary:    primary,
		secondary:  secondary,
		tertiary:   tertiary,
		batchQuote: batchQuote,
		discovery:  disc,
		validator:  val,
		planner:    pl,
		priceProc:  pp,
		divProc:    dp,
		coProc:     cp,
		gate:       markethours.New(cfg.Exchange.HolidayCalendar),
		pinger:     healthcheck.New(cfg.HealthCheckURL),
	}, nil
}

func (a *app) orchestrator() *pipeline.Orchestrator {
	return &pipeline.Orchestrator{
		Repo:      a.repo,
		Planner:   a.planner,
		Gate:      a.gate,
		Pinger:    a.pinger,
		PriceProc: a.priceProc,
		DivProc:   a.divProc,
		CoProc:    a.coProc,
	}
}
