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
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/ratelimit"
)

const (
	retryBase   = 500 * time.Millisecond
	retryFactor = 2
	retryCap    = 30 * time.Second
	retryMax    = 5
)

// statCounters backs Stats() for a concrete client. Embedded by value so
// each client gets its own zeroed set.
type statCounters struct {
	attempts  int64
	successes int64
	status4xx int64
	status5xx int64
	timeouts  int64
}

func (c *statCounters) snapshot() Stats {
	return Stats{
		Attempts:  atomic.LoadInt64(&c.attempts),
		Successes: atomic.LoadInt64(&c.successes),
		Status4xx: atomic.LoadInt64(&c.status4xx),
		Status5xx: atomic.LoadInt64(&c.status5xx),
		Timeouts:  atomic.LoadInt64(&c.timeouts),
	}
}

// requestFn issues one HTTP attempt and returns the parsed response or a
// classification error. A nil error with non-nil resp means "parse and
// return"; callers handle parse failures separately via retryParse.
type requestFn func(ctx context.Context) (*resty.Response, error)

// retryDo implements the §4.3 retry policy shared by every HTTP-backed
// client: acquire a limiter slot, issue the request, classify the
// response, retry on 429/5xx with jittered exponential backoff, and
// report outcomes to the limiter on every attempt. endpoint/symbol are
// only used to build a ProviderError on exhaustion.
func retryDo(ctx context.Context, limiter *ratelimit.Limiter, counters *statCounters, providerName, endpoint, symbol string, fn requestFn) (*resty.Response, error) {
	logger := zerolog.Ctx(ctx).With().Str("provider", providerName).Str("endpoint", endpoint).Str("symbol", symbol).Logger()

	var lastErr error

	for attempt := 0; attempt < retryMax; attempt++ {
		release, err := limiter.AcquireScoped(ctx)
		if err != nil {
			return nil, model.NewProviderError(model.KindTransport, providerName, endpoint, symbol, err)
		}

		atomic.AddInt64(&counters.attempts, 1)
		resp, rerr := fn(ctx)
		release()

		if rerr != nil {
			limiter.ReportThrottle()
			if ctx.Err() != nil {
				return nil, model.NewProviderError(model.KindTransport, providerName, endpoint, symbol, ctx.Err())
			}
			atomic.AddInt64(&counters.timeouts, 1)
			lastErr = rerr
			logger.Warn().Err(rerr).Int("attempt", attempt+1).Msg("transport error, retrying")
			sleepBackoff(ctx, attempt)
			continue
		}

		status := resp.StatusCode()
		switch {
		case status == http.StatusNotFound:
			limiter.ReportSuccess()
			return resp, model.NewProviderError(model.KindNotFound, providerName, endpoint, symbol, nil)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			limiter.ReportSuccess()
			atomic.AddInt64(&counters.status4xx, 1)
			return resp, model.NewProviderError(model.KindAuth, providerName, endpoint, symbol, nil)
		case status == http.StatusTooManyRequests:
			limiter.ReportThrottle()
			atomic.AddInt64(&counters.status4xx, 1)
			lastErr = model.NewProviderError(model.KindThrottled, providerName, endpoint, symbol, nil)
			logger.Warn().Int("attempt", attempt+1).Msg("throttled, retrying")
			sleepBackoff(ctx, attempt)
			continue
		case status >= 500:
			limiter.ReportThrottle()
			atomic.AddInt64(&counters.status5xx, 1)
			lastErr = model.NewProviderError(model.KindTransport, providerName, endpoint, symbol, nil)
			logger.Warn().Int("status", status).Int("attempt", attempt+1).Msg("server error, retrying")
			sleepBackoff(ctx, attempt)
			continue
		case status >= 400:
			limiter.ReportSuccess()
			atomic.AddInt64(&counters.status4xx, 1)
			return resp, model.NewProviderError(model.KindTransport, providerName, endpoint, symbol, nil)
		default:
			limiter.ReportSuccess()
			atomic.AddInt64(&counters.successes, 1)
			return resp, nil
		}
	}

	return nil, model.NewProviderError(model.KindTransport, providerName, endpoint, symbol, lastErr)
}

// retryParse wraps a JSON/CSV decode so a single parse failure is retried
// once before being reported, per §4.3.
func retryParse(ctx context.Context, providerName, endpoint, symbol string, parse func() error) error {
	logger := zerolog.Ctx(ctx)
	if err := parse(); err != nil {
		logger.Warn().Err(err).Str("provider", providerName).Str("endpoint", endpoint).Msg("parse failed, retrying once")
		if err2 := parse(); err2 != nil {
			return model.NewProviderError(model.KindParse, providerName, endpoint, symbol, err2)
		}
	}
	return nil
}

func sleepBackoff(ctx context.Context, attempt int) {
	d := retryBase * time.Duration(1<<uint(attempt))
	if d > retryCap {
		d = retryCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	d = d/2 + jitter

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
