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

// TertiaryClient is the lightweight fallback: per-symbol prices,
// dividends, and splits only. No discovery, no batch, no company info.
type TertiaryClient struct {
	statCounters
	client  *resty.Client
	limiter *ratelimit.Limiter
}

func NewTertiaryClient(apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *TertiaryClient {
	client := resty.New().
		SetBaseURL("https://api.tertiary-market-data.example").
		SetQueryParam("token", apiKey).
		SetTimeout(timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &TertiaryClient{client: client, limiter: limiter}
}

func (c *TertiaryClient) Name() Name   { return Tertiary }
func (c *TertiaryClient) Stats() Stats { return c.snapshot() }

func (c *TertiaryClient) FetchPrices(ctx context.Context, symbol string, fromDate *time.Time) ([]model.PriceBar, error) {
	var payload []struct {
		T        string  `json:"t"`
		O        float64 `json:"o"`
		H        float64 `json:"h"`
		L        float64 `json:"l"`
		C        float64 `json:"c"`
		AdjClose float64 `json:"ac"`
		V        int64   `json:"v"`
	}

	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("start", fromDate.Format("2006-01-02"))
	}

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "prices", symbol, func(ctx context.Context) (*resty.Response, error) {
		return req.SetResult(&payload).Get(fmt.Sprintf("/daily/%s", symbol))
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
		d, perr := time.Parse("2006-01-02", b.T)
		if perr != nil {
			continue
		}
		out = append(out, model.PriceBar{Symbol: symbol, Date: d, Open: b.O, High: b.H, Low: b.L, Close: b.C, AdjClose: b.AdjClose, Volume: b.V})
	}
	return out, nil
}

func (c *TertiaryClient) FetchDividends(ctx context.Context, symbol string, fromDate *time.Time) ([]model.DividendEvent, error) {
	var payload []struct {
		ExDate string  `json:"exDate"`
		Amount float64 `json:"amount"`
	}

	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("start", fromDate.Format("2006-01-02"))
	}

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
		out = append(out, model.DividendEvent{Symbol: symbol, ExDate: exDate, Amount: p.Amount, Currency: "USD"})
	}
	return out, nil
}

// FetchFutureDividends satisfies DividendFetcher; TERTIARY is never asked
// for future dividends by the Dividend Processor (only PRIMARY is).
func (c *TertiaryClient) FetchFutureDividends(ctx context.Context, start, end time.Time) ([]model.DividendEvent, error) {
	return nil, model.NewProviderError(model.KindNotFound, string(c.Name()), "future-dividends", "", nil)
}

func (c *TertiaryClient) FetchSplits(ctx context.Context, symbol string, fromDate *time.Time) ([]model.CorporateSplit, error) {
	var payload []struct {
		Date  string  `json:"date"`
		Ratio float64 `json:"ratio"`
	}

	req := c.client.R().SetContext(ctx)
	if fromDate != nil {
		req.SetQueryParam("start", fromDate.Format("2006-01-02"))
	}

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
		d, perr := time.Parse("2006-01-02", p.Date)
		if perr != nil || p.Ratio <= 0 {
			continue
		}
		out = append(out, model.CorporateSplit{Symbol: symbol, SplitDate: d, Numerator: p.Ratio, Denominator: 1, Ratio: p.Ratio})
	}
	return out, nil
}

var (
	_ PriceFetcher    = (*TertiaryClient)(nil)
	_ DividendFetcher = (*TertiaryClient)(nil)
	_ SplitFetcher    = (*TertiaryClient)(nil)
)
