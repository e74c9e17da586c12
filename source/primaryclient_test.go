// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/ratelimit"
)

func newTestPrimaryClient(baseURL string) *PrimaryClient {
	return &PrimaryClient{
		client:  resty.New().SetBaseURL(baseURL),
		limiter: ratelimit.New(2, 1),
	}
}

func TestPrimaryClientListSymbolsParsesCSVAndCursorHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reference/symbols.csv", r.URL.Path)
		w.Header().Set("X-Next-Cursor", "page-2")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("symbol,exchange,type,name\nAAPL,XNAS,equity,Apple Inc\nMSFT,XNAS,equity,Microsoft Corp\n"))
	}))
	defer srv.Close()

	c := newTestPrimaryClient(srv.URL)
	symbols, next, err := c.ListSymbols(context.Background(), "", 100)

	require.NoError(t, err)
	assert.Equal(t, "page-2", next)
	require.Len(t, symbols, 2)
	assert.Equal(t, "AAPL", symbols[0].Identifier)
	assert.Equal(t, "XNAS", symbols[0].Exchange)
	assert.Equal(t, "Microsoft Corp", symbols[1].Name)
}

func TestPrimaryClientFetchBatchEodParsesCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eod/grouped.csv", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("symbol,open,high,low,close,adjClose,volume\nAAPL,100,105,99,104,104,1000000\n"))
	}))
	defer srv.Close()

	c := newTestPrimaryClient(srv.URL)
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars, err := c.FetchBatchEod(context.Background(), date)

	require.NoError(t, err)
	require.Contains(t, bars, "AAPL")
	assert.Equal(t, 104.0, bars["AAPL"].Close)
	assert.Equal(t, date, bars["AAPL"].Date)
}
