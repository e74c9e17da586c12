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
package source

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gocarina/gocsv"
	"github.com/goccy/go-json"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/ratelimit"
)

// PrimaryClient is the richest provider: discovery, per-symbol and batch
// EOD, dividends, splits, and company metadata, per the §4.3 matrix.
type PrimaryClient struct {
	statCounters
	client  *resty.Client
	limiter *ratelimit.Limiter
}

func NewPrimaryClient(apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *PrimaryClient {
	client := resty.New().
		SetBaseURL("https://api.primary-market-data.example/v1").
		SetQueryParam("apikey", apiKey).
		SetTimeout(timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &PrimaryClient{client: client, limiter: limiter}
}

func (c *PrimaryClient) Name() Name    { return Primary }
func (c *PrimaryClient) Stats() Stats  { return c.snapshot() }

type primarySymbolPayload struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

// primarySymbolRow is the CSV row shape of PRIMARY's bulk symbol listing,
// one of PRIMARY's two endpoints (with grouped daily EOD) that ship CSV
// instead of JSON.
type primarySymbolRow struct {
	Symbol   string `csv:"symbol"`
	Exchange string `csv:"exchange"`
	Type     string `csv:"type"`
	Name     string `csv:"name"`
}

// ListSymbols implements SymbolLister. PRIMARY paginates its CSV listing
// with a cursor returned in a response header rather than a body field,
// since a CSV row has nowhere else to carry it.
func (c *PrimaryClient) ListSymbols(ctx context.Context, cursor string, limit int) ([]model.Symbol, string, error) {
	var rows []primarySymbolRow

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "list-symbols", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).
			SetQueryParam("cursor", cursor).
			SetQueryParam("limit", fmt.Sprintf("%d", limit)).
			Get("/reference/symbols.csv")
	})
	if err != nil {
		return nil, "", err
	}

	if err := retryParse(ctx, string(c.Name()), "list-symbols", "", func() error {
		rows = nil
		return gocsv.Unmarshal(bytes.NewReader(resp.Body()), &rows)
	}); err != nil {
		return nil, "", err
	}
	nextCursor := resp.Header().Get("X-Next-Cursor")

	out := make([]model.Symbol, 0, len(rows))
	for _, s := range rows {
		out = append(out, model.Symbol{Identifier: s.Symbol, Exchange: s.Exchange, Type: model.InstrumentType(s.Type), Name: s.Name})
	}
	return out, nextCursor, nil
}

// ListEtfs implements SymbolLister.
func (c *PrimaryClient) ListEtfs(ctx context.Context) ([]model.Symbol, error) {
	var payload []primarySymbolPayload
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "list-etfs", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get("/reference/etfs")
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "list-etfs", "", func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.Symbol, 0, len(payload))
	for _, s := range payload {
		out = append(out, model.Symbol{Identifier: s.Symbol, Exchange: s.Exchange, Type: model.InstrumentETF, Name: s.Name})
	}
	return out, nil
}

// ListDividendCandidates implements SymbolLister.
func (c *PrimaryClient) ListDividendCandidates(ctx context.Context) ([]model.Symbol, error) {
	var payload []primarySymbolPayload
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "list-dividend-candidates", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get("/reference/dividend-payers")
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "list-dividend-candidates", "", func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.Symbol, 0, len(payload))
	for _, s := range payload {
		out = append(out, model.Symbol{Identifier: s.Symbol, Exchange: s.Exchange, Type: model.InstrumentType(s.Type), Name: s.Name})
	}
	return out, nil
}

type primaryBar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

// FetchPrices implements PriceFetcher.
func (c *PrimaryClient) FetchPrices(ctx context.Context, symbol string, fromDate *time.Time) ([]model.PriceBar, error) {
	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("from", fromDate.Format("2006-01-02"))
	}

	var bars []primaryBar
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "prices", symbol, func(ctx context.Context) (*resty.Response, error) {
		return req.SetResult(&bars).Get(fmt.Sprintf("/eod/%s", symbol))
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "prices", symbol, func() error {
		return json.Unmarshal(resp.Body(), &bars)
	}); err != nil {
		return nil, err
	}

	out := make([]model.PriceBar, 0, len(bars))
	for _, b := range bars {
		d, perr := time.Parse("2006-01-02", b.Date)
		if perr != nil {
			continue
		}
		out = append(out, model.PriceBar{Symbol: symbol, Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, AdjClose: b.AdjClose, Volume: b.Volume})
	}
	return out, nil
}

type primaryDividend struct {
	ExDate          string  `json:"exDate"`
	DeclarationDate string  `json:"declarationDate"`
	RecordDate      string  `json:"recordDate"`
	PaymentDate     string  `json:"paymentDate"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &d
}

// FetchDividends implements DividendFetcher.
func (c *PrimaryClient) FetchDividends(ctx context.Context, symbol string, fromDate *time.Time) ([]model.DividendEvent, error) {
	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("from", fromDate.Format("2006-01-02"))
	}

	var payload []primaryDividend
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "dividends", symbol, func(ctx context.Context) (*resty.Response, error) {
		return req.SetResult(&payload).Get(fmt.Sprintf("/dividends/%s", symbol))
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "dividends", symbol, func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.DividendEvent, 0, len(payload))
	for _, p := range payload {
		exDate, perr := time.Parse("2006-01-02", p.ExDate)
		if perr != nil {
			continue
		}
		out = append(out, model.DividendEvent{
			Symbol:          symbol,
			ExDate:          exDate,
			DeclarationDate: parseOptionalDate(p.DeclarationDate),
			RecordDate:      parseOptionalDate(p.RecordDate),
			PaymentDate:     parseOptionalDate(p.PaymentDate),
			Amount:          p.Amount,
			Currency:        p.Currency,
		})
	}
	return out, nil
}

// FetchFutureDividends implements DividendFetcher.
func (c *PrimaryClient) FetchFutureDividends(ctx context.Context, start, end time.Time) ([]model.DividendEvent, error) {
	var payload []struct {
		primaryDividend
		Symbol string `json:"symbol"`
	}

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "future-dividends", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).
			SetQueryParam("from", start.Format("2006-01-02")).
			SetQueryParam("to", end.Format("2006-01-02")).
			SetResult(&payload).
			Get("/dividends/calendar")
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "future-dividends", "", func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.DividendEvent, 0, len(payload))
	for _, p := range payload {
		exDate, perr := time.Parse("2006-01-02", p.ExDate)
		if perr != nil {
			continue
		}
		out = append(out, model.DividendEvent{
			Symbol:      p.Symbol,
			ExDate:      exDate,
			PaymentDate: parseOptionalDate(p.PaymentDate),
			Amount:      p.Amount,
			Currency:    p.Currency,
		})
	}
	return out, nil
}

type primarySplit struct {
	SplitDate   string  `json:"splitDate"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
}

// FetchSplits implements SplitFetcher.
func (c *PrimaryClient) FetchSplits(ctx context.Context, symbol string, fromDate *time.Time) ([]model.CorporateSplit, error) {
	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("from", fromDate.Format("2006-01-02"))
	}

	var payload []primarySplit
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "splits", symbol, func(ctx context.Context) (*resty.Response, error) {
		return req.SetResult(&payload).Get(fmt.Sprintf("/splits/%s", symbol))
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "splits", symbol, func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.CorporateSplit, 0, len(payload))
	for _, p := range payload {
		d, perr := time.Parse("2006-01-02", p.SplitDate)
		if perr != nil || p.Denominator == 0 {
			continue
		}
		out = append(out, model.CorporateSplit{
			Symbol: symbol, SplitDate: d, Numerator: p.Numerator, Denominator: p.Denominator,
			Ratio: p.Numerator / p.Denominator,
		})
	}
	return out, nil
}

// primaryBatchEodRow is the CSV row shape of PRIMARY's daily grouped-EOD
// file, the other CSV endpoint in the capability matrix alongside the
// symbol listing.
type primaryBatchEodRow struct {
	Symbol   string  `csv:"symbol"`
	Open     float64 `csv:"open"`
	High     float64 `csv:"high"`
	Low      float64 `csv:"low"`
	Close    float64 `csv:"close"`
	AdjClose float64 `csv:"adjClose"`
	Volume   int64   `csv:"volume"`
}

// FetchBatchEod implements BatchEODFetcher: one round trip returning every
// symbol's bar for a single date, the Price Processor's backfill
// optimization.
func (c *PrimaryClient) FetchBatchEod(ctx context.Context, date time.Time) (map[string]model.PriceBar, error) {
	var rows []primaryBatchEodRow

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "batch-eod", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).
			SetQueryParam("date", date.Format("2006-01-02")).
			Get("/eod/grouped.csv")
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "batch-eod", "", func() error {
		rows = nil
		return gocsv.Unmarshal(bytes.NewReader(resp.Body()), &rows)
	}); err != nil {
		return nil, err
	}

	out := make(map[string]model.PriceBar, len(rows))
	for _, p := range rows {
		out[p.Symbol] = model.PriceBar{
			Symbol: p.Symbol, Date: date, Open: p.Open, High: p.High, Low: p.Low,
			Close: p.Close, AdjClose: p.AdjClose, Volume: p.Volume,
		}
	}
	return out, nil
}

type primaryCompany struct {
	Name        string  `json:"name"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
	MarketCap   float64 `json:"marketCap"`
	Description string  `json:"description"`
}

// FetchCompany implements CompanyFetcher.
func (c *PrimaryClient) FetchCompany(ctx context.Context, symbol string) (model.CompanyInfo, error) {
	var payload primaryCompany
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "company", symbol, func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get(fmt.Sprintf("/reference/company/%s", symbol))
	})
	if err != nil {
		return model.CompanyInfo{}, err
	}
	if err := retryParse(ctx, string(c.Name()), "company", symbol, func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return model.CompanyInfo{}, err
	}

	mc := payload.MarketCap
	return model.CompanyInfo{
		Symbol: symbol, Name: payload.Name, Sector: payload.Sector, Industry: payload.Industry,
		MarketCap: &mc, Description: payload.Description, RefreshedAt: time.Now(),
	}, nil
}

// FetchHoldings implements HoldingsFetcher.
func (c *PrimaryClient) FetchHoldings(ctx context.Context, etfSymbol string) ([]model.Holding, error) {
	var payload []struct {
		Symbol string  `json:"symbol"`
		Weight float64 `json:"weight"`
		Shares float64 `json:"shares"`
	}
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "holdings", etfSymbol, func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get(fmt.Sprintf("/etf/%s/holdings", etfSymbol))
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "holdings", etfSymbol, func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.Holding, 0, len(payload))
	for _, p := range payload {
		out = append(out, model.Holding{ETFSymbol: etfSymbol, Symbol: p.Symbol, Weight: p.Weight, Shares: p.Shares})
	}
	return out, nil
}

var (
	_ SymbolLister      = (*PrimaryClient)(nil)
	_ PriceFetcher      = (*PrimaryClient)(nil)
	_ DividendFetcher   = (*PrimaryClient)(nil)
	_ SplitFetcher      = (*PrimaryClient)(nil)
	_ BatchEODFetcher   = (*PrimaryClient)(nil)
	_ CompanyFetcher    = (*PrimaryClient)(nil)
	_ HoldingsFetcher   = (*PrimaryClient)(nil)
)
