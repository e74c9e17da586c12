// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package dividendproc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

type fakeDividendFetcher struct {
	name        source.Name
	events      map[string][]model.DividendEvent
	future      []model.DividendEvent
	futureStart time.Time
	futureEnd   time.Time
}

func (f *fakeDividendFetcher) Name() source.Name   { return f.name }
func (f *fakeDividendFetcher) Stats() source.Stats { return source.Stats{} }
func (f *fakeDividendFetcher) FetchDividends(ctx context.Context, symbol string, fromDate *time.Time) ([]model.DividendEvent, error) {
	return f.events[symbol], nil
}
func (f *fakeDividendFetcher) FetchFutureDividends(ctx context.Context, start, end time.Time) ([]model.DividendEvent, error) {
	f.futureStart, f.futureEnd = start, end
	return f.future, nil
}

type fakeRepo struct {
	payers      map[string]bool
	payersErr   error
	upserted    [][]model.DividendEvent
	upsertedFut [][]model.DividendEvent
}

func (f *fakeRepo) UpsertDividends(ctx context.Context, batch []model.DividendEvent) error {
	f.upserted = append(f.upserted, batch)
	return nil
}
func (f *fakeRepo) UpsertFutureDividends(ctx context.Context, batch []model.DividendEvent) error {
	f.upsertedFut = append(f.upsertedFut, batch)
	return nil
}
func (f *fakeRepo) UpsertSplits(ctx context.Context, batch []model.CorporateSplit) error {
	return nil
}
func (f *fakeRepo) DividendPayers(ctx context.Context) (map[string]bool, error) {
	if f.payersErr != nil {
		return nil, f.payersErr
	}
	return f.payers, nil
}

type fakeLedger struct{}

func (fakeLedger) Record(ctx context.Context, symbol, dataType string, src source.Name, hasData bool, note string) error {
	return nil
}
func (fakeLedger) KnownLacking(ctx context.Context, symbol, dataType string, src source.Name) bool {
	return false
}
func (fakeLedger) PreferredSource(ctx context.Context, symbol, dataType string) (source.Name, bool, error) {
	return "", false, nil
}

func TestRunFiltersToPayersOnly(t *testing.T) {
	primary := &fakeDividendFetcher{name: source.Primary, events: map[string][]model.DividendEvent{
		"AAPL": {{Symbol: "AAPL", Amount: 0.5}},
	}}
	repo := &fakeRepo{payers: map[string]bool{"AAPL": true}}

	p := New(primary, nil, nil, repo, fakeLedger{}, Config{FilterDividendSymbols: true, Concurrency: 1})

	plan := &model.Plan{
		Entries: []model.PlanEntry{{Symbol: "AAPL"}, {Symbol: "NODIV"}},
		Skipped: map[string]string{},
	}
	summary, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, repo.upserted, 1)
}

func TestRunDegradesToUnfilteredOnDividendPayersError(t *testing.T) {
	primary := &fakeDividendFetcher{name: source.Primary, events: map[string][]model.DividendEvent{
		"AAPL": {{Symbol: "AAPL", Amount: 0.5}},
	}}
	repo := &fakeRepo{payersErr: errors.New("connection reset")}

	p := New(primary, nil, nil, repo, fakeLedger{}, Config{FilterDividendSymbols: true, Concurrency: 1})

	plan := &model.Plan{
		Entries: []model.PlanEntry{{Symbol: "AAPL"}},
		Skipped: map[string]string{},
	}
	summary, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	require.Len(t, repo.upserted, 1)
}

func TestRunDropsEventsFailingValidation(t *testing.T) {
	primary := &fakeDividendFetcher{name: source.Primary, events: map[string][]model.DividendEvent{
		"AAPL": {{Symbol: "AAPL", Amount: -1}},
	}}
	repo := &fakeRepo{}

	p := New(primary, nil, nil, repo, fakeLedger{}, Config{Concurrency: 1})

	plan := &model.Plan{Entries: []model.PlanEntry{{Symbol: "AAPL"}}, Skipped: map[string]string{}}
	summary, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, repo.upserted)
}

func TestRunFetchesFutureDividendsOncePerRun(t *testing.T) {
	primary := &fakeDividendFetcher{
		name:   source.Primary,
		events: map[string][]model.DividendEvent{},
		future: []model.DividendEvent{{Symbol: "AAPL", Amount: 0.5}},
	}
	repo := &fakeRepo{payers: map[string]bool{}}

	p := New(primary, nil, nil, repo, fakeLedger{}, Config{Concurrency: 1})

	plan := &model.Plan{Entries: nil, Skipped: map[string]string{}}
	_, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, repo.upsertedFut, 1)
	assert.Equal(t, "AAPL", repo.upsertedFut[0][0].Symbol)
}

func TestFetchFutureDividendsStandaloneUsesGivenWindow(t *testing.T) {
	primary := &fakeDividendFetcher{
		name:   source.Primary,
		future: []model.DividendEvent{{Symbol: "MSFT", Amount: 0.25}},
	}
	repo := &fakeRepo{}

	p := New(primary, nil, nil, repo, fakeLedger{}, Config{Concurrency: 1})
	summary, err := p.FetchFutureDividends(context.Background(), time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), 30)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), primary.futureStart)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), primary.futureEnd)
	require.Len(t, repo.upsertedFut, 1)
	assert.Equal(t, "MSFT", repo.upsertedFut[0][0].Symbol)
}
