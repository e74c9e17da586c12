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

// Package dividendproc implements the Dividend Processor (C10): a
// ledger-aware PRIMARY -> TERTIARY -> SECONDARY fallback over the
// dividend-payer work list, plus a once-per-run forward-looking fetch.
package dividendproc

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

const futureDividendWindow = 90 * 24 * time.Hour

type repo interface {
	UpsertDividends(ctx context.Context, batch []model.DividendEvent) error
	UpsertFutureDividends(ctx context.Context, batch []model.DividendEvent) error
	UpsertSplits(ctx context.Context, batch []model.CorporateSplit) error
	DividendPayers(ctx context.Context) (map[string]bool, error)
}

type ledgerIface interface {
	Record(ctx context.Context, symbol, dataType string, src source.Name, hasData bool, note string) error
	KnownLacking(ctx context.Context, symbol, dataType string, src source.Name) bool
	PreferredSource(ctx context.Context, symbol, dataType string) (source.Name, bool, error)
}

type Config struct {
	FilterDividendSymbols bool
	Concurrency           int
}

type Processor struct {
	primary   source.DividendFetcher
	secondary source.DividendFetcher
	tertiary  source.DividendFetcher
	repo      repo
	ledger    ledgerIface
	cfg       Config

	// primarySplit/tertiarySplit are populated by type-asserting primary
	// and tertiary against source.SplitFetcher: per §4.3's capability
	// matrix only PRIMARY and TERTIARY carry splits, and both happen to
	// be the same client instances already passed in for dividends.
	primarySplit  source.SplitFetcher
	tertiarySplit source.SplitFetcher
}

func New(primary, secondary, tertiary source.DividendFetcher, repo repo, ledg ledgerIface, cfg Config) *Processor {
	p := &Processor{primary: primary, secondary: secondary, tertiary: tertiary, repo: repo, ledger: ledg, cfg: cfg}
	p.primarySplit, _ = primary.(source.SplitFetcher)
	p.tertiarySplit, _ = tertiary.(source.SplitFetcher)
	return p
}

func (p *Processor) Run(ctx context.Context, plan *model.Plan, now time.Time) (*model.PhaseSummary, error) {
	start := time.Now()
	summary := &model.PhaseSummary{Phase: "dividend", Inputs: len(plan.Entries) + len(plan.Skipped)}
	for _, reason := range plan.Skipped {
		if reason == "staleness" {
			summary.SkippedStaleness++
		} else {
			summary.SkippedLedger++
		}
	}

	entries := plan.Entries
	if p.cfg.FilterDividendSymbols {
		payers, err := p.repo.DividendPayers(ctx)
		if err != nil {
			// A transient read failure here degrades the filter, it
			// doesn't abort the phase: fall back to fetching every
			// entry in the plan unfiltered and let the per-symbol
			// ledger lookups do the rest of the work of skipping
			// known-non-payers.
			log.Warn().Err(err).Msg("dividend payer lookup failed; continuing with an unfiltered symbol list")
		} else {
			var filtered []model.PlanEntry
			for _, e := range entries {
				if payers[e.Symbol] {
					filtered = append(filtered, e)
				} else {
					summary.SkippedLedger++
				}
			}
			entries = filtered
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	summary.Processed += len(entries)
	p.fetchConcurrently(ctx, entries, summary)

	if p.primary != nil {
		p.fetchFutureDividends(ctx, now, futureDividendWindow)
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// FetchFutureDividends drives the standalone `future-dividends` mode: a
// forward-looking PRIMARY fetch over an arbitrary window, independent of
// Run's once-per-update call with the default 90-day window.
func (p *Processor) FetchFutureDividends(ctx context.Context, now time.Time, daysAhead int) (*model.PhaseSummary, error) {
	summary := &model.PhaseSummary{Phase: "future-dividends"}
	if p.primary == nil {
		return summary, nil
	}
	summary.Processed = 1
	p.fetchFutureDividends(ctx, now, time.Duration(daysAhead)*24*time.Hour)
	summary.Succeeded = 1
	return summary, nil
}

func (p *Processor) fetchConcurrently(ctx context.Context, entries []model.PlanEntry, summary *model.PhaseSummary) {
	workers := p.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}

	work := make(chan model.PlanEntry, len(entries))
	for _, e := range entries {
		work <- e
	}
	close(work)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range work {
				events, err := p.fetchOne(ctx, e.Symbol, e.FromDate)

				mu.Lock()
				if err != nil {
					summary.Failed++
					summary.Failures = append(summary.Failures, e.Symbol+": "+err.Error())
				} else if len(events) > 0 {
					events = validateDividendEvents(events, summary)
					if len(events) == 0 {
						summary.Succeeded++
					} else if uerr := p.repo.UpsertDividends(ctx, events); uerr != nil {
						summary.Failed++
						summary.Failures = append(summary.Failures, e.Symbol+": "+uerr.Error())
					} else {
						summary.Succeeded++
					}
				} else {
					summary.Succeeded++
				}
				mu.Unlock()

				p.fetchAndUpsertSplits(ctx, e.Symbol, e.FromDate)
			}
		}()
	}
	wg.Wait()
}

// validateDividendEvents drops any event failing DividendEvent.Validate
// (amount < 0), recording each drop into summary the same way every
// other per-row rejection path does.
func validateDividendEvents(events []model.DividendEvent, summary *model.PhaseSummary) []model.DividendEvent {
	valid := make([]model.DividendEvent, 0, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, e.Symbol+": "+err.Error())
			log.Warn().Err(err).Str("symbol", e.Symbol).Msg("dropping dividend event that failed validation")
			continue
		}
		valid = append(valid, e)
	}
	return valid
}

func (p *Processor) providerChain() []struct {
	name  source.Name
	fetch source.DividendFetcher
} {
	return []struct {
		name  source.Name
		fetch source.DividendFetcher
	}{
		{source.Primary, p.primary},
		{source.Tertiary, p.tertiary},
		{source.Secondary, p.secondary},
	}
}

// orderedProviderChain moves the symbol's last-known-good source to the
// front of the chain, mirroring the Price Processor's use of
// PreferredSource to skip avoidable fallback attempts.
func (p *Processor) orderedProviderChain(ctx context.Context, symbol string) []struct {
	name  source.Name
	fetch source.DividendFetcher
} {
	chain := p.providerChain()
	preferred, ok, err := p.ledger.PreferredSource(ctx, symbol, ledger.DataTypeDividends)
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

func (p *Processor) fetchOne(ctx context.Context, symbol string, fromDate time.Time) ([]model.DividendEvent, error) {
	var lastErr error
	for _, prov := range p.orderedProviderChain(ctx, symbol) {
		if prov.fetch == nil {
			continue
		}
		if p.ledger.KnownLacking(ctx, symbol, ledger.DataTypeDividends, prov.name) {
			continue
		}

		fd := fromDate
		events, err := prov.fetch.FetchDividends(ctx, symbol, &fd)
		hasData := err == nil && len(events) > 0
		note := ""
		if err != nil {
			note = err.Error()
		}
		_ = p.ledger.Record(ctx, symbol, ledger.DataTypeDividends, prov.name, hasData, note)

		if err != nil {
			lastErr = err
			continue
		}
		if len(events) == 0 {
			continue
		}
		return events, nil
	}
	return nil, lastErr
}

// fetchFutureDividends calls PRIMARY once per run for the forward
// window and upserts every result, independent of the symbol work list.
func (p *Processor) fetchFutureDividends(ctx context.Context, now time.Time, window time.Duration) {
	events, err := p.primary.FetchFutureDividends(ctx, now, now.Add(window))
	if err != nil {
		log.Warn().Err(err).Msg("future dividend fetch failed")
		return
	}
	valid := make([]model.DividendEvent, 0, len(events))
	for _, e := range events {
		if verr := e.Validate(); verr != nil {
			log.Warn().Err(verr).Str("symbol", e.Symbol).Msg("dropping future dividend event that failed validation")
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return
	}
	if err := p.repo.UpsertFutureDividends(ctx, valid); err != nil {
		log.Error().Err(err).Msg("future dividend upsert failed")
	}
}

func (p *Processor) splitProviderChain() []struct {
	name  source.Name
	fetch source.SplitFetcher
} {
	return []struct {
		name  source.Name
		fetch source.SplitFetcher
	}{
		{source.Primary, p.primarySplit},
		{source.Tertiary, p.tertiarySplit},
	}
}

// fetchSplitsOne walks the PRIMARY -> TERTIARY split chain (no SECONDARY
// per §4.3's capability matrix) the same way fetchOne walks the
// dividend chain: ledger-aware, first non-empty result wins.
func (p *Processor) fetchSplitsOne(ctx context.Context, symbol string, fromDate time.Time) ([]model.CorporateSplit, error) {
	var lastErr error
	for _, prov := range p.splitProviderChain() {
		if prov.fetch == nil {
			continue
		}
		if p.ledger.KnownLacking(ctx, symbol, ledger.DataTypeSplits, prov.name) {
			continue
		}

		fd := fromDate
		splits, err := prov.fetch.FetchSplits(ctx, symbol, &fd)
		hasData := err == nil && len(splits) > 0
		note := ""
		if err != nil {
			note = err.Error()
		}
		_ = p.ledger.Record(ctx, symbol, ledger.DataTypeSplits, prov.name, hasData, note)

		if err != nil {
			lastErr = err
			continue
		}
		if len(splits) == 0 {
			continue
		}
		return splits, nil
	}
	return nil, lastErr
}

// fetchAndUpsertSplits is best-effort alongside the per-symbol dividend
// fetch: a split-fetch failure is logged and does not affect the
// dividend PhaseSummary, since raw_stock_splits is a distinct table with
// its own failure mode.
func (p *Processor) fetchAndUpsertSplits(ctx context.Context, symbol string, fromDate time.Time) {
	if p.primarySplit == nil && p.tertiarySplit == nil {
		return
	}
	splits, err := p.fetchSplitsOne(ctx, symbol, fromDate)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("split fetch failed")
		return
	}
	if len(splits) == 0 {
		return
	}

	valid := make([]model.CorporateSplit, 0, len(splits))
	for _, s := range splits {
		if verr := s.Validate(); verr != nil {
			log.Warn().Err(verr).Str("symbol", symbol).Msg("dropping corporate split that failed validation")
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return
	}
	if uerr := p.repo.UpsertSplits(ctx, valid); uerr != nil {
		log.Error().Err(uerr).Str("symbol", symbol).Msg("split upsert failed")
	}
}
