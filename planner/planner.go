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

// Package planner turns a symbol universe and a target table into an
// ordered, deterministic work plan: a per-symbol from_date plus a
// skipped set annotated with why each symbol was dropped.
package planner

import (
	"context"
	"sort"
	"time"

	"github.com/marketraw/ingestd/model"
)

// dateLookup is satisfied by Repository.BulkLatestDates.
type dateLookup interface {
	BulkLatestDates(ctx context.Context, table, dateColumn string, symbols []string) (map[string]time.Time, error)
	SymbolUpdatedAt(ctx context.Context, symbols []string) (map[string]time.Time, error)
}

// Tables the planner knows how to compute from_date windows for,
// keyed by the Plan.DataType values the processors pass in.
const (
	DataTypePrices    = "prices"
	DataTypeDividends = "dividends"
)

var tableFor = map[string]struct {
	table      string
	dateColumn string
}{
	DataTypePrices:    {table: "raw_stock_prices", dateColumn: "date"},
	DataTypeDividends: {table: "raw_dividends", dateColumn: "ex_date"},
}

// Planner computes per-symbol fetch plans per §4.6.
type Planner struct {
	repo            dateLookup
	pricesStartDate time.Time
	stalenessHours  int
}

func New(repo dateLookup, pricesStartDate time.Time, stalenessHours int) *Planner {
	return &Planner{repo: repo, pricesStartDate: pricesStartDate, stalenessHours: stalenessHours}
}

// Plan computes the work list for symbols against dataType. now and
// force are passed explicitly rather than read from the clock/config
// so the same inputs always produce the same plan (the §8 determinism
// property).
func (p *Planner) Plan(ctx context.Context, symbols []string, dataType string, now time.Time, force bool) (*model.Plan, error) {
	spec, ok := tableFor[dataType]
	if !ok {
		spec = tableFor[DataTypePrices]
	}

	latest, err := p.repo.BulkLatestDates(ctx, spec.table, spec.dateColumn, symbols)
	if err != nil {
		return nil, err
	}

	updatedAt, err := p.repo.SymbolUpdatedAt(ctx, symbols)
	if err != nil {
		return nil, err
	}

	plan := &model.Plan{DataType: dataType, Skipped: map[string]string{}}
	staleness := time.Duration(p.stalenessHours) * time.Hour

	for _, symbol := range symbols {
		if !force {
			if ts, ok := updatedAt[symbol]; ok && now.Sub(ts) < staleness {
				plan.Skipped[symbol] = "staleness"
				continue
			}
		}

		fromDate := p.pricesStartDate
		if last, ok := latest[symbol]; ok {
			fromDate = last.AddDate(0, 0, 1)
		}

		if fromDate.After(truncateToDate(now)) && !force {
			// latest stored date is today or later: nothing new to fetch.
			plan.Skipped[symbol] = "up-to-date"
			continue
		}

		plan.Entries = append(plan.Entries, model.PlanEntry{Symbol: symbol, FromDate: fromDate})
	}

	sort.Slice(plan.Entries, func(i, j int) bool { return plan.Entries[i].Symbol < plan.Entries[j].Symbol })
	return plan, nil
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
