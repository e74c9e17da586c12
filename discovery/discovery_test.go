// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

type fakeLister struct {
	name      source.Name
	symbols   []model.Symbol
	etfs      []model.Symbol
	dividends []model.Symbol
}

func (f *fakeLister) Name() source.Name   { return f.name }
func (f *fakeLister) Stats() source.Stats { return source.Stats{} }
func (f *fakeLister) ListSymbols(ctx context.Context, cursor string, limit int) ([]model.Symbol, string, error) {
	return f.symbols, "", nil
}
func (f *fakeLister) ListEtfs(ctx context.Context) ([]model.Symbol, error) { return f.etfs, nil }
func (f *fakeLister) ListDividendCandidates(ctx context.Context) ([]model.Symbol, error) {
	return f.dividends, nil
}

func TestDiscoverDedupesAcrossProviders(t *testing.T) {
	a := &fakeLister{name: source.Primary, symbols: []model.Symbol{
		{Identifier: "AAPL", Type: model.InstrumentStock, Exchange: "XNAS"},
	}}
	b := &fakeLister{name: source.Secondary, symbols: []model.Symbol{
		{Identifier: "aapl", Type: model.InstrumentStock, Exchange: "XNAS"},
		{Identifier: "MSFT", Type: model.InstrumentStock, Exchange: "XNAS"},
	}}

	d := New([]source.SymbolLister{a, b}, Config{
		Allowed: map[string]bool{"XNAS": true},
	})

	out, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDiscoverDropsBlockedSuffix(t *testing.T) {
	a := &fakeLister{symbols: []model.Symbol{
		{Identifier: "0700.HK", Type: model.InstrumentStock, Exchange: "XNAS"},
		{Identifier: "AAPL", Type: model.InstrumentStock, Exchange: "XNAS"},
	}}
	d := New([]source.SymbolLister{a}, Config{
		Allowed:         map[string]bool{"XNAS": true},
		BlockedSuffixes: model.BlockedSuffixes,
	})

	out, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "AAPL", out[0].Identifier)
}

func TestDiscoverDropsDisallowedExchange(t *testing.T) {
	a := &fakeLister{symbols: []model.Symbol{
		{Identifier: "SHEL", Type: model.InstrumentStock, Exchange: "XLON"},
	}}
	d := New([]source.SymbolLister{a}, Config{Allowed: map[string]bool{"XNAS": true}})

	out, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDiscoverDropsUnknownInstrumentType(t *testing.T) {
	a := &fakeLister{symbols: []model.Symbol{
		{Identifier: "FUT1", Type: "future", Exchange: "XNAS"},
	}}
	d := New([]source.SymbolLister{a}, Config{Allowed: map[string]bool{"XNAS": true}})

	out, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
}
