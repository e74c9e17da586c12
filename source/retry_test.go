// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/ratelimit"
)

func TestRetryDoSucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	limiter := ratelimit.New(2, 1)
	var counters statCounters
	client := resty.New()

	resp, err := retryDo(context.Background(), limiter, &counters, "primary", "test", "AAPL", func(ctx context.Context) (*resty.Response, error) {
		return client.R().SetContext(ctx).Get(srv.URL)
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.EqualValues(t, 1, counters.snapshot().Successes)
}

func TestRetryDoTerminalNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	limiter := ratelimit.New(2, 1)
	var counters statCounters
	client := resty.New()

	_, err := retryDo(context.Background(), limiter, &counters, "primary", "test", "GHOST", func(ctx context.Context) (*resty.Response, error) {
		return client.R().SetContext(ctx).Get(srv.URL)
	})

	require.Error(t, err)
	perr, ok := err.(*model.ProviderError)
	require.True(t, ok)
	assert.Equal(t, model.KindNotFound, perr.Kind)
	assert.True(t, perr.Terminal())
}

func TestRetryDoAuthErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	limiter := ratelimit.New(2, 1)
	var counters statCounters
	client := resty.New()

	_, err := retryDo(context.Background(), limiter, &counters, "primary", "test", "AAPL", func(ctx context.Context) (*resty.Response, error) {
		return client.R().SetContext(ctx).Get(srv.URL)
	})

	require.Error(t, err)
	perr, ok := err.(*model.ProviderError)
	require.True(t, ok)
	assert.Equal(t, model.KindAuth, perr.Kind)
}

func TestRetryDoRetriesOn429ThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := ratelimit.New(2, 1)
	var counters statCounters
	client := resty.New()

	_, err := retryDo(context.Background(), limiter, &counters, "primary", "test", "AAPL", func(ctx context.Context) (*resty.Response, error) {
		return client.R().SetContext(ctx).Get(srv.URL)
	})

	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestRetryParseRetriesOnceThenReports(t *testing.T) {
	attempts := 0
	err := retryParse(context.Background(), "primary", "prices", "AAPL", func() error {
		attempts++
		return assert.AnError
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	perr, ok := err.(*model.ProviderError)
	require.True(t, ok)
	assert.Equal(t, model.KindParse, perr.Kind)
}
