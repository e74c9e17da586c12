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
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/ratelimit"
)

// batchQuoteChunkSize is the §4.9 partition size for FetchBatchQuote
// calls (<= 500 symbols per request).
const batchQuoteChunkSize = 500

// BatchQuoteClient implements only BatchQuoteFetcher: a real-time quote
// delta for many symbols in one round trip, used by the Price
// Processor's batch-quote skip optimization.
type BatchQuoteClient struct {
	statCounters
	client  *resty.Client
	limiter *ratelimit.Limiter
}

func NewBatchQuoteClient(apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *BatchQuoteClient {
	client := resty.New().
		SetBaseURL("https://api.quote-data.example").
		SetQueryParam("apikey", apiKey).
		SetTimeout(timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	return &BatchQuoteClient{client: client, limiter: limiter}
}

func (c *BatchQuoteClient) Name() Name   { return BatchQuote }
func (c *BatchQuoteClient) Stats() Stats { return c.snapshot() }

// FetchBatchQuote accepts up to batchQuoteChunkSize symbols per call;
// callers (the Price Processor) are responsible for chunking larger work
// lists, matching §4.9 step 1's "partition into chunks of <= 500".
func (c *BatchQuoteClient) FetchBatchQuote(ctx context.Context, symbols []string) (map[string]model.QuoteDelta, error) {
	var payload []model.QuoteDelta

	resp, err := retryDo(ctx, c.limiter, &c.statCounters, string(c.Name()), "batch-quote", "", func(ctx context.Context) (*resty.Response, error) {
		return c.client.R().SetContext(ctx).
			SetResult(&payload).
			Get("/quote/" + strings.Join(symbols, ","))
	})
	if err != nil {
		return nil, err
	}
	if err := retryParse(ctx, string(c.Name()), "batch-quote", "", func() error {
		return json.Unmarshal(resp.Body(), &payload)
	}); err != nil {
		return nil, err
	}

	out := make(map[string]model.QuoteDelta, len(payload))
	for _, q := range payload {
		out[q.Symbol] = q
	}
	return out, nil
}

var _ BatchQuoteFetcher = (*BatchQuoteClient)(nil)
