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

// Package pipeline wires Discovery, the Validator, the Planner, and the
// three processors into the Orchestrator (C12): the single entrypoint
// each cmd/ subcommand drives.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/healthcheck"
	"github.com/marketraw/ingestd/markethours"
	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/planner"
)

// RunOptions carries the flags cmd/update.go parses: §6's
// --from-date / --prices-only / --dividends-only / --companies-only /
// --force / --limit surface.
type RunOptions struct {
	Force            bool
	DryRun           bool
	PricesOnly       bool
	DividendsOnly    bool
	CompaniesOnly    bool
	Limit            int
	FromDateOverride *time.Time
}

// symbolSource is satisfied by repository.Repository.
type symbolSource interface {
	AllSymbols(ctx context.Context) ([]model.Symbol, error)
}

// planSource is satisfied by planner.Planner.
type planSource interface {
	Plan(ctx context.Context, symbols []string, dataType string, now time.Time, force bool) (*model.Plan, error)
}

type priceRunner interface {
	Run(ctx context.Context, plan *model.Plan, now time.Time) (*model.PhaseSummary, error)
}

type dividendRunner interface {
	Run(ctx context.Context, plan *model.Plan, now time.Time) (*model.PhaseSummary, error)
}

type companyRunner interface {
	Run(ctx context.Context, symbols []string, now time.Time) (*model.PhaseSummary, error)
}

// Orchestrator wires every component together. It holds no business
// logic of its own beyond sequencing.
type Orchestrator struct {
	Repo      symbolSource
	Planner   planSource
	Gate      *markethours.Gate
	Pinger    *healthcheck.Pinger
	PriceProc priceRunner
	DivProc   dividendRunner
	CoProc    companyRunner
}

// RunUpdate implements the `update` mode's six steps from §4.12.
func (o *Orchestrator) RunUpdate(ctx context.Context, opts RunOptions, now time.Time) (*model.RunReport, error) {
	runID := newRunID()
	report := &model.RunReport{RunID: runID, Mode: "update", Start: now}

	if o.Pinger != nil {
		_ = o.Pinger.Start()
	}

	if !opts.Force && o.Gate != nil {
		ok, reason := o.Gate.ShouldRun(now)
		if !ok {
			report.Skipped = true
			report.SkipReason = reason
			report.End = now
			log.Info().Str("reason", reason).Msg("market-hours gate declined this run")
			return report, nil
		}
	}

	symbols, err := o.Repo.AllSymbols(ctx)
	if err != nil {
		return o.fail(report, now, err)
	}
	identifiers := make([]string, 0, len(symbols))
	for _, s := range symbols {
		identifiers = append(identifiers, s.Identifier)
	}
	if opts.Limit > 0 && len(identifiers) > opts.Limit {
		identifiers = identifiers[:opts.Limit]
	}

	pricePlan, err := o.Planner.Plan(ctx, identifiers, planner.DataTypePrices, now, opts.Force)
	if err != nil {
		return o.fail(report, now, err)
	}
	dividendPlan, err := o.Planner.Plan(ctx, identifiers, planner.DataTypeDividends, now, opts.Force)
	if err != nil {
		return o.fail(report, now, err)
	}

	if opts.FromDateOverride != nil {
		applyFromDateOverride(pricePlan, *opts.FromDateOverride)
		applyFromDateOverride(dividendPlan, *opts.FromDateOverride)
	}

	if opts.DryRun {
		log.Info().Int("priceEntries", len(pricePlan.Entries)).Int("dividendEntries", len(dividendPlan.Entries)).
			Msg("dry run: no writes will be performed")
		report.End = now
		return report, nil
	}

	runPrices := !opts.DividendsOnly && !opts.CompaniesOnly
	runDividends := !opts.PricesOnly && !opts.CompaniesOnly
	runCompanies := !opts.PricesOnly && !opts.DividendsOnly

	// Price and Dividend run concurrently against ctx, but NOT a shared
	// cancelable child context: per §7, phases are independent, and a
	// failure in one must not abort in-flight work in the other. Each
	// goroutine's error is collected on its own, so both summaries are
	// always appended to the report before either error is inspected.
	var priceSummary, dividendSummary *model.PhaseSummary
	var priceErr, dividendErr error
	var wg sync.WaitGroup
	if runPrices && o.PriceProc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			priceSummary, priceErr = o.PriceProc.Run(ctx, pricePlan, now)
		}()
	}
	if runDividends && o.DivProc != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dividendSummary, dividendErr = o.DivProc.Run(ctx, dividendPlan, now)
		}()
	}
	wg.Wait()

	if priceSummary != nil {
		report.Phases = append(report.Phases, priceSummary)
	}
	if dividendSummary != nil {
		report.Phases = append(report.Phases, dividendSummary)
	}
	if priceErr != nil {
		return o.fail(report, now, priceErr)
	}
	if dividendErr != nil {
		return o.fail(report, now, dividendErr)
	}

	if runCompanies && o.CoProc != nil {
		companySummary, err := o.CoProc.Run(ctx, identifiers, now)
		if err != nil {
			return o.fail(report, now, err)
		}
		report.Phases = append(report.Phases, companySummary)
	}

	report.End = time.Now()
	if report.ExitCode() != 0 {
		report.Degraded = true
	}

	if o.Pinger != nil {
		if report.Degraded {
			_ = o.Pinger.Fail("run completed with degraded phases")
		} else {
			_ = o.Pinger.Success()
		}
	}

	return report, nil
}

func (o *Orchestrator) fail(report *model.RunReport, now time.Time, err error) (*model.RunReport, error) {
	report.FatalErr = err.Error()
	report.FatalKind = classifyFatal(err)
	report.End = now
	if o.Pinger != nil {
		_ = o.Pinger.Fail(err.Error())
	}
	return report, err
}

// classifyFatal recovers the model.Kind behind a fatal error so
// RunReport.ExitCode doesn't have to re-parse an error string: only a
// ConfigError or an auth-kind ProviderError earns exit 2.
func classifyFatal(err error) model.Kind {
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		return model.KindConfig
	}
	var provErr *model.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return model.KindPersistence
}

func newRunID() string {
	return uuid.NewString()
}

// applyFromDateOverride implements --from-date: every entry in plan
// fetches from the given date regardless of what the Planner computed
// from stored data.
func applyFromDateOverride(plan *model.Plan, from time.Time) {
	for i := range plan.Entries {
		plan.Entries[i].FromDate = from
	}
}
