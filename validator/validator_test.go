// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
)

type fakeRepo struct {
	excluded        map[string]bool
	recentPrices    map[string]bool
	recentDividends map[string]bool
	marked          map[string]string
}

func (f *fakeRepo) RecentPriceSymbols(ctx context.Context, since time.Time) (map[string]bool, error) {
	return f.recentPrices, nil
}

func (f *fakeRepo) RecentDividendSymbols(ctx context.Context, since time.Time) (map[string]bool, error) {
	return f.recentDividends, nil
}

func (f *fakeRepo) ExcludedSymbols(ctx context.Context) (map[string]bool, error) {
	return f.excluded, nil
}

func (f *fakeRepo) MarkExcluded(ctx context.Context, symbol, reason string, auto bool) error {
	if f.marked == nil {
		f.marked = map[string]string{}
	}
	f.marked[symbol] = reason
	return nil
}

func TestValidateAllKeepsSymbolWithRecentPrice(t *testing.T) {
	repo := &fakeRepo{
		excluded:        map[string]bool{},
		recentPrices:    map[string]bool{"AAPL": true},
		recentDividends: map[string]bool{},
	}
	v := New(repo)

	out, err := v.ValidateAll(context.Background(), []model.Symbol{{Identifier: "AAPL"}}, time.Now())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Empty(t, repo.marked)
}

func TestValidateAllExcludesSymbolWithNoRecentActivity(t *testing.T) {
	repo := &fakeRepo{
		excluded:        map[string]bool{},
		recentPrices:    map[string]bool{},
		recentDividends: map[string]bool{},
	}
	v := New(repo)

	out, err := v.ValidateAll(context.Background(), []model.Symbol{{Identifier: "GHOST"}}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, model.ReasonNoData, repo.marked["GHOST"])
}

func TestValidateAllSkipsAlreadyExcluded(t *testing.T) {
	repo := &fakeRepo{
		excluded:        map[string]bool{"GHOST": true},
		recentPrices:    map[string]bool{},
		recentDividends: map[string]bool{},
	}
	v := New(repo)

	out, err := v.ValidateAll(context.Background(), []model.Symbol{{Identifier: "GHOST"}}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, repo.marked)
}
