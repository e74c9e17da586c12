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

// Package source defines the provider capability interfaces and the
// concrete HTTP-backed clients (PRIMARY, SECONDARY, TERTIARY, BATCH_QUOTE)
// that implement the subset of capabilities the §4.3 matrix grants them.
// Processors depend only on these interfaces, never on a concrete client.
package source

import (
	"context"
	"time"

	"github.com/marketraw/ingestd/model"
)

// Name identifies a provider slot. It is also used as the Ledger's source
// key and names the entries of the priority order consulted by
// PreferredSource.
type Name string

const (
	Primary    Name = "primary"
	Secondary  Name = "secondary"
	Tertiary   Name = "tertiary"
	BatchQuote Name = "batch_quote"
)

// Provider is the minimal capability every concrete client satisfies: a
// name for logging/ledger keys and a Stats snapshot. Everything else is
// an optional capability interface a client may additionally implement.
type Provider interface {
	Name() Name
	Stats() Stats
}

// Stats exposes per-client request counters, populated by retryDo.
type Stats struct {
	Attempts  int64
	Successes int64
	Status4xx int64
	Status5xx int64
	Timeouts  int64
}

// SymbolLister enumerates the tradable universe. PRIMARY and SECONDARY
// implement this; TERTIARY and BATCH_QUOTE do not.
type SymbolLister interface {
	Provider
	ListSymbols(ctx context.Context, cursor string, limit int) (symbols []model.Symbol, nextCursor string, err error)
	ListEtfs(ctx context.Context) ([]model.Symbol, error)
	ListDividendCandidates(ctx context.Context) ([]model.Symbol, error)
}

// PriceFetcher fetches per-symbol EOD history. All three per-symbol
// providers implement it.
type PriceFetcher interface {
	Provider
	FetchPrices(ctx context.Context, symbol string, fromDate *time.Time) ([]model.PriceBar, error)
}

// DividendFetcher fetches per-symbol and forward-looking dividend events.
type DividendFetcher interface {
	Provider
	FetchDividends(ctx context.Context, symbol string, fromDate *time.Time) ([]model.DividendEvent, error)
	FetchFutureDividends(ctx context.Context, start, end time.Time) ([]model.DividendEvent, error)
}

// SplitFetcher fetches per-symbol corporate splits. Only PRIMARY and
// TERTIARY implement this per the capability matrix.
type SplitFetcher interface {
	Provider
	FetchSplits(ctx context.Context, symbol string, fromDate *time.Time) ([]model.CorporateSplit, error)
}

// BatchEODFetcher returns one bar per symbol for a single date in one
// round trip. Only PRIMARY implements this.
type BatchEODFetcher interface {
	Provider
	FetchBatchEod(ctx context.Context, date time.Time) (map[string]model.PriceBar, error)
}

// BatchQuoteFetcher returns a real-time quote delta for many symbols in
// one round trip. Only the dedicated BATCH_QUOTE client implements this.
type BatchQuoteFetcher interface {
	Provider
	FetchBatchQuote(ctx context.Context, symbols []string) (map[string]model.QuoteDelta, error)
}

// CompanyFetcher returns company/ETF metadata. PRIMARY and SECONDARY
// implement this; SECONDARY is consulted for ETF-specific fields only.
type CompanyFetcher interface {
	Provider
	FetchCompany(ctx context.Context, symbol string) (model.CompanyInfo, error)
}

// HoldingsFetcher returns an ETF's constituents. Not wired to a matrix
// row in §4.3 but kept on the interface set for completeness; no
// processor currently calls it.
type HoldingsFetcher interface {
	Provider
	FetchHoldings(ctx context.Context, etfSymbol string) ([]model.Holding, error)
}
