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
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/ratelimit"
)

// SecondaryClient implements List/Discovery, per-symbol prices,
// dividends, and company/ETF info (consulted for fund_family and
// expense_ratio that PRIMARY doesn't return), per the §4.3 matrix. It
// does not implement splits or any batch capability.
type SecondaryClient struct {
	statCounters
	client  *resty.Client
	limiter *ratelimit.Limiter
}

func NewSecondaryClient(apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *SecondaryClient {
	client := resty.New().
		SetBaseURL("https://api.secondary-market-data.example").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetTimeout(timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &SecondaryClient{client: client, limiter: limiter}
}

func (c *SecondaryClient) Name() Name   { return Secondary }
func (c *SecondaryClient) Stats() Stats { return c.snapshot() }

func (c *SecondaryClient) ListSymbols(ctx context.Context, cursor string, limit int) ([]model.Symbol, string, error) {
	var page struct {
		Data []struct {
			Ticker   string `json:"ticker"`
			Exchange string `json:"exchange"`
			Type     string `json:"type"`
		} `json:"data"`
		NextCursor string `json:"nextCursor"`
	}

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "list-symbols", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).
			SetQueryParam("cursor", cursor).
			SetQueryParam("limit", fmt.Sprintf("%d", limit)).
			SetResult(&page).
			Get("/v1/symbols")
	})
	if err != nil {
		return nil, "", err
	}
	if err := retryParse(ctx, string(c.Name()), "list-symbols", "", func() error {
		return json.Unmarshal(resp.Body(), &page)
	}); err != nil {
		return nil, "", err
	}

	out := make([]model.Symbol, 0, len(page.Data))
	for _, s := range page.Data {
		out = append(out, model.Symbol{Identifier: s.Ticker, Exchange: s.Exchange, Type: model.InstrumentType(s.Type)})
	}
	return out, page.NextCursor, nil
}

func (c *SecondaryClient) ListEtfs(ctx context.Context) ([]model.Symbol, error) {
	var payload []struct {
		Ticker   string `json:"ticker"`
		Exchange string `json:"exchange"`
	}
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "list-etfs", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get("/v1/etfs")
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
		out = append(out, model.Symbol{Identifier: s.Ticker, Exchange: s.Exchange, Type: model.InstrumentETF})
	}
	return out, nil
}

func (c *SecondaryClient) ListDividendCandidates(ctx context.Context) ([]model.Symbol, error) {
	var payload []struct {
		Ticker string `json:"ticker"`
	}
	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "list-dividend-candidates", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get("/v1/dividend-payers")
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
		out = append(out, model.Symbol{Identifier: s.Ticker})
	}
	return out, nil
}

func (c *SecondaryClient) FetchPrices(ctx context.Context, symbol string, fromDate *time.Time) ([]model.PriceBar, error) {
	var payload []struct {
		Date     string  `json:"date"`
		Open     float64 `json:"open"`
		High     float64 `json:"high"`
		Low      float64 `json:"low"`
		Close    float64 `json:"close"`
		AdjClose float64 `json:"adjClose"`
		Volume   int64   `json:"volume"`
	}

	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("from", fromDate.Format("2006-01-02"))
	}

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "prices", symbol, func(ctx context.Context) (*resty.Response, error) {
		return req.SetResult(&payload).Get(fmt.Sprintf("/v1/eod/%s", symbol))
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "prices", symbol, func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make([]model.PriceBar, 0, len(payload))
	for _, b := range payload {
		d, perr := time.Parse("2006-01-02", b.Date)
		if perr != nil {
			continue
		}
		out = append(out, model.PriceBar{Symbol: symbol, Date: d, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, AdjClose: b.AdjClose, Volume: b.Volume})
	}
	return out, nil
}

func (c *SecondaryClient) FetchDividends(ctx context.Context, symbol string, fromDate *time.Time) ([]model.DividendEvent, error) {
	var payload []struct {
		ExDate      string  `json:"exDate"`
		PaymentDate string  `json:"paymentDate"`
		Amount      float64 `json:"amount"`
		Currency    string  `json:"currency"`
	}

	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("from", fromDate.Format("2006-01-02"))
	}

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "dividends", symbol, func(ctx context.Context) (*resty.Response, error) {
		return req.SetResult(&payload).Get(fmt.Sprintf("/v1/dividends/%s", symbol))
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
			Symbol: symbol, ExDate: exDate, PaymentDate: parseOptionalDate(p.PaymentDate),
			Amount: p.Amount, Currency: p.Currency,
		})
	}
	return out, nil
}

// FetchFutureDividends is not offered by SECONDARY in the matrix but the
// interface requires it; SECONDARY is never asked for future dividends by
// the Dividend Processor so this always returns NotFoundError.
func (c *SecondaryClient) FetchFutureDividends(ctx context.Context, start, end time.Time) ([]model.DividendEvent, error) {
	return nil, model.NewProviderError(model.KindNotFound, string(c.Name()), "future-dividends", "", nil)
}

// FetchCompany implements CompanyFetcher; the Company Processor calls
// this specifically for ETF-specific fields PRIMARY omits.
func (c *SecondaryClient) FetchCompany(ctx context.Context, symbol string) (model.CompanyInfo, error) {
	var payload struct {
		Name         string  `json:"name"`
		Sector       string  `json:"sector"`
		FundFamily   string  `json:"fundFamily"`
		ExpenseRatio float64 `json:"expenseRatio"`
		Description  string  `json:"description"`
	}

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "company", symbol, func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).SetResult(&payload).Get(fmt.Sprintf("/v1/company/%s", symbol))
	})
	if err != nil {
		return model.CompanyInfo{}, err
	}
	if err := retryParse(ctx, string(c.Name()), "company", symbol, func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return model.CompanyInfo{}, err
	}

	er := payload.ExpenseRatio
	return model.CompanyInfo{
		Symbol: symbol, Name: payload.Name, Sector: payload.Sector, FundFamily: payload.FundFamily,
		ExpenseRatio: &er, Description: payload.Description, RefreshedAt: time.Now(),
	}, nil
}

var (
	_ SymbolLister    = (*SecondaryClient)(nil)
	_ PriceFetcher    = (*SecondaryClient)(nil)
	_ DividendFetcher = (*SecondaryClient)(nil)
	_ CompanyFetcher  = (*SecondaryClient)(nil)
)
