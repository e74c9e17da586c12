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

// Package priceproc implements the Price Processor (C9), the
// critical-path component of every daily run: batch-quote filtering,
// batch-EOD backfill, and a per-symbol hybrid fetch with
// PRIMARY -> TERTIARY -> SECONDARY fallback, all ledger-aware.
package priceproc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/ledger"
	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

const batchQuoteChunkSize = 500

// repo is the subset of repository.Repository this processor needs.
type repo interface {
	UpsertPrices(ctx context.Context, batch []model.PriceBar) error
	ConsecutiveEmptyRuns(ctx context.Context, symbol string) (int, error)
	RecordEmptyRun(ctx context.Context, symbol string, empty bool) error
	MarkExcluded(ctx context.Context, symbol, reason string, auto bool) error
}

// ledgerIface is the subset of ledger.Ledger this processor needs.
type ledgerIface interface {
	Record(ctx context.Context, symbol, dataType string, src source.Name, hasData bool, note string) error
	KnownLacking(ctx context.Context, symbol, dataType string, src source.Name) bool
	PreferredSource(ctx context.Context, symbol, dataType string) (source.Name, bool, error)
}

// Config carries the fetch.* options the Price Processor consults.
type Config struct {
	UseBatchQuoteFilter bool
	UseBatchEod         bool
	BatchEodDays        int
	Concurrency         int
	AutoExcludeAfter    int
}

type Processor struct {
	primary    source.PriceFetcher
	secondary  source.PriceFetcher
	tertiary   source.PriceFetcher
	batchQuote source.BatchQuoteFetcher
	batchEOD   source.BatchEODFetcher
	repo       repo
	ledger     ledgerIface
	cfg        Config
}

func New(primary, secondary, tertiary source.PriceFetcher, batchQuote source.BatchQuoteFetcher, batchEOD source.BatchEODFetcher, repo repo, ledg ledgerIface, cfg Config) *Processor {
	return &Processor{
		primary: primary, secondary: secondary, tertiary: tertiary,
		batchQuote: batchQuote, batchEOD: batchEOD,
		repo: repo, ledger: ledg, cfg: cfg,
	}
}

// Run executes the four-step pipeline in §4.9 against plan and returns
// a PhaseSummary for the Orchestrator's RunReport.
func (p *Processor) Run(ctx context.Context, plan *model.Plan, now time.Time) (*model.PhaseSummary, error) {
	start := time.Now()
	summary := &model.PhaseSummary{Phase: "price", Inputs: len(plan.Entries) + len(plan.Skipped)}
	for _, reason := range plan.Skipped {
		if reason == "staleness" {
			summary.SkippedStaleness++
		} else {
			summary.SkippedLedger++
		}
	}

	needsFetch := make(map[string]time.Time, len(plan.Entries))
	for _, e := range plan.Entries {
		needsFetch[e.Symbol] = e.FromDate
	}

	if p.cfg.UseBatchQuoteFilter && p.batchQuote != nil && windowIsSingleDay(plan.Entries, now) {
		p.applyBatchQuoteFilter(ctx, needsFetch)
	}

	if p.cfg.UseBatchEod && p.batchEOD != nil {
		p.applyBatchEodBackfill(ctx, needsFetch, now, summary)
	}

	symbols := make([]string, 0, len(needsFetch))
	for sym := range needsFetch {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	summary.Processed += len(symbols)
	p.hybridFetch(ctx, symbols, needsFetch, summary, now)

	summary.Elapsed = time.Since(start)
	return summary, nil
}

func windowIsSingleDay(entries []model.PlanEntry, now time.Time) bool {
	cutoff := now.AddDate(0, 0, -1)
	for _, e := range entries {
		if e.FromDate.Before(cutoff) {
			return false
		}
	}
	return true
}

func (p *Processor) applyBatchQuoteFilter(ctx context.Context, needsFetch map[string]time.Time) {
	symbols := make([]string, 0, len(needsFetch))
	for sym := range needsFetch {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, chunk := range chunkStrings(symbols, batchQuoteChunkSize) {
		quotes, err := p.batchQuote.FetchBatchQuote(ctx, chunk)
		if err != nil {
			log.Warn().Err(err).Msg("batch quote filter unavailable; falling back to per-symbol fetch for this chunk")
			continue
		}
		for _, sym := range chunk {
			if q, ok := quotes[sym]; ok && q.Unchanged() {
				delete(needsFetch, sym)
			}
		}
	}
}

func chunkStrings(symbols []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[i:end])
	}
	return out
}

func (p *Processor) applyBatchEodBackfill(ctx context.Context, needsFetch map[string]time.Time, now time.Time, summary *model.PhaseSummary) {
	for _, date := range lastBusinessDays(now, p.cfg.BatchEodDays) {
		bars, err := p.batchEOD.FetchBatchEod(ctx, date)
		if err != nil {
			log.Warn().Err(err).Time("date", date).Msg("batch EOD unavailable; disabling for the remainder of this run")
			return
		}

		var toUpsert []model.PriceBar
		for sym := range needsFetch {
			if bar, ok := bars[sym]; ok {
				toUpsert = append(toUpsert, bar)
				delete(needsFetch, sym)
			}
		}
		toUpsert = validatePriceBars(toUpsert, now, summary)
		if len(toUpsert) == 0 {
			continue
		}
		if err := p.repo.UpsertPrices(ctx, toUpsert); err != nil {
			log.Error().Err(err).Msg("batch EOD upsert failed")
			summary.Failed += len(toUpsert)
			continue
		}
		summary.Succeeded += len(toUpsert)
	}
}

// validatePriceBars drops any bar failing PriceBar.Validate (date in the
// future, non-positive close), recording each drop into summary as a
// DataInvariantError would be reported by any other rejection path.
func validatePriceBars(bars []model.PriceBar, now time.Time, summary *model.PhaseSummary) []model.PriceBar {
	valid := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		if err := b.Validate(now); err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, b.Symbol+": "+err.Error())
			log.Warn().Err(err).Str("symbol", b.Symbol).Msg("dropping price bar that failed validation")
			continue
		}
		valid = append(valid, b)
	}
	return valid
}

// lastBusinessDays returns the last n calendar days (excluding weekends)
// ending yesterday.
func lastBusinessDays(now time.Time, n int) []time.Time {
	var out []time.Time
	d := now.AddDate(0, 0, -1)
	for i := 0; i < n; i++ {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}

// hybridFetch runs the per-symbol PRIMARY -> TERTIARY -> SECONDARY
// fallback concurrently with cfg.Concurrency workers, draining a
// buffered channel of symbols (the message-passing concurrency model).
func (p *Processor) hybridFetch(ctx context.Context, symbols []string, fromDates map[string]time.Time, summary *model.PhaseSummary, now time.Time) {
	workers := p.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}

	work := make(chan string, len(symbols))
	for _, sym := range symbols {
		work <- sym
	}
	close(work)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range work {
				fromDate := fromDates[sym]
				bars, err := p.fetchOne(ctx, sym, fromDate)

				mu.Lock()
				p.recordOutcome(ctx, sym, bars, err, summary, now)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

// providerChain is PRIMARY -> TERTIARY -> SECONDARY per §4.5's
// documented priority order.
func (p *Processor) providerChain() []struct {
	name  source.Name
	fetch source.PriceFetcher
} {
	return []struct {
		name  source.Name
		fetch source.PriceFetcher
	}{
		{source.Primary, p.primary},
		{source.Tertiary, p.tertiary},
		{source.Secondary, p.secondary},
	}
}

// orderedProviderChain moves the symbol's last-known-good source to the
// front of the fixed PRIMARY -> TERTIARY -> SECONDARY chain, so a symbol
// the ledger already knows carries data on e.g. TERTIARY isn't made to
// fail a doomed PRIMARY attempt first on every run.
func (p *Processor) orderedProviderChain(ctx context.Context, symbol string) []struct {
	name  source.Name
	fetch source.PriceFetcher
} {
	chain := p.providerChain()
	preferred, ok, err := p.ledger.PreferredSource(ctx, symbol, ledger.DataTypePrices)
	if err != nil || !ok {
		return chain
	}
	for i, prov := range chain {
		if prov.name == preferred {
			if i != 0 {
				copy(chain[1:i+1], chain[:i])
				chain[0] = prov
			}
			break
		}
	}
	return chain
}

func (p *Processor) fetchOne(ctx context.Context, symbol string, fromDate time.Time) ([]model.PriceBar, error) {
	var lastErr error
	for _, prov := range p.orderedProviderChain(ctx, symbol) {
		if prov.fetch == nil {
			continue
		}
		if p.ledger.KnownLacking(ctx, symbol, ledger.DataTypePrices, prov.name) {
			continue
		}

		fd := fromDate
		bars, err := prov.fetch.FetchPrices(ctx, symbol, &fd)
		hasData := err == nil && len(bars) > 0
		note := ""
		if err != nil {
			note = err.Error()
		}
		_ = p.ledger.Record(ctx, symbol, ledger.DataTypePrices, prov.name, hasData, note)

		if err != nil {
			lastErr = err
			continue
		}
		if len(bars) == 0 {
			continue
		}
		return bars, nil
	}
	return nil, lastErr
}

func (p *Processor) recordOutcome(ctx context.Context, symbol string, bars []model.PriceBar, err error, summary *model.PhaseSummary, now time.Time) {
	fetchedAny := len(bars) > 0
	if fetchedAny {
		bars = validatePriceBars(bars, now, summary)
	}

	if len(bars) > 0 {
		if uerr := p.repo.UpsertPrices(ctx, bars); uerr != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, symbol+": "+uerr.Error())
			return
		}
		summary.Succeeded++
		_ = p.repo.RecordEmptyRun(ctx, symbol, false)
		return
	}

	if err != nil {
		summary.Failed++
		summary.Failures = append(summary.Failures, symbol+": "+err.Error())
		return
	}

	if fetchedAny {
		// Every returned bar failed validation; already counted into
		// summary.Failed above. Not an empty-provider response, so it
		// doesn't count toward the auto-exclude streak.
		summary.Succeeded++
		_ = p.repo.RecordEmptyRun(ctx, symbol, false)
		return
	}

	// Zero bars from every provider: not a processing failure, but
	// tracked toward auto-exclusion per §4.9's empty-streak rule.
	summary.Succeeded++
	_ = p.repo.RecordEmptyRun(ctx, symbol, true)

	if p.cfg.AutoExcludeAfter <= 0 {
		return
	}
	streak, serr := p.repo.ConsecutiveEmptyRuns(ctx, symbol)
	if serr != nil {
		return
	}
	if streak >= p.cfg.AutoExcludeAfter {
		if merr := p.repo.MarkExcluded(ctx, symbol, model.ReasonNoPriceData, true); merr != nil {
			log.Error().Err(merr).Str("symbol", symbol).Msg("failed to auto-exclude symbol with no price data")
		}
	}
}
