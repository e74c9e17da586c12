// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package companyproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

type fakeCompanyFetcher struct {
	name source.Name
	info map[string]model.CompanyInfo
	err  error
}

func (f *fakeCompanyFetcher) Name() source.Name   { return f.name }
func (f *fakeCompanyFetcher) Stats() source.Stats { return source.Stats{} }
func (f *fakeCompanyFetcher) FetchCompany(ctx context.Context, symbol string) (model.CompanyInfo, error) {
	if f.err != nil {
		return model.CompanyInfo{}, f.err
	}
	return f.info[symbol], nil
}

type fakeRepo struct {
	fresh    map[string]bool
	upserted [][]model.CompanyInfo
}

func (f *fakeRepo) CompanyRefreshedSince(ctx context.Context, cutoff time.Time) (map[string]bool, error) {
	return f.fresh, nil
}
func (f *fakeRepo) UpsertCompany(ctx context.Context, batch []model.CompanyInfo) error {
	f.upserted = append(f.upserted, batch)
	return nil
}

func TestRunSkipsSymbolsWithFreshCache(t *testing.T) {
	primary := &fakeCompanyFetcher{name: source.Primary, info: map[string]model.CompanyInfo{
		"AAPL": {Name: "Apple"},
	}}
	repo := &fakeRepo{fresh: map[string]bool{"AAPL": true}}

	p := New(primary, nil, repo, Config{CacheCompanyData: true, CompanyCacheDays: 90})
	summary, err := p.Run(context.Background(), []string{"AAPL"}, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedStaleness)
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, repo.upserted)
}

func TestRunFillsEtfFieldsFromSecondary(t *testing.T) {
	primary := &fakeCompanyFetcher{name: source.Primary, info: map[string]model.CompanyInfo{
		"SPY": {Name: "SPDR S&P 500"},
	}}
	ratio := 0.0945
	secondary := &fakeCompanyFetcher{name: source.Secondary, info: map[string]model.CompanyInfo{
		"SPY": {FundFamily: "State Street", ExpenseRatio: &ratio},
	}}
	repo := &fakeRepo{fresh: map[string]bool{}}

	p := New(primary, secondary, repo, Config{CacheCompanyData: true, CompanyCacheDays: 90})
	summary, err := p.Run(context.Background(), []string{"SPY"}, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, "State Street", repo.upserted[0][0].FundFamily)
	assert.Equal(t, &ratio, repo.upserted[0][0].ExpenseRatio)
}
