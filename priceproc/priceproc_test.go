// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package priceproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

type fakePriceFetcher struct {
	name  source.Name
	bars  map[string][]model.PriceBar
	err   error
}

func (f *fakePriceFetcher) Name() source.Name   { return f.name }
func (f *fakePriceFetcher) Stats() source.Stats { return source.Stats{} }
func (f *fakePriceFetcher) FetchPrices(ctx context.Context, symbol string, fromDate *time.Time) ([]model.PriceBar, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bars[symbol], nil
}

type fakeRepo struct {
	upserted [][]model.PriceBar
	streaks  map[string]int
	excluded map[string]string
}

func (f *fakeRepo) UpsertPrices(ctx context.Context, batch []model.PriceBar) error {
	f.upserted = append(f.upserted, batch)
	return nil
}
func (f *fakeRepo) ConsecutiveEmptyRuns(ctx context.Context, symbol string) (int, error) {
	return f.streaks[symbol], nil
}
func (f *fakeRepo) RecordEmptyRun(ctx context.Context, symbol string, empty bool) error { return nil }
func (f *fakeRepo) MarkExcluded(ctx context.Context, symbol, reason string, auto bool) error {
	if f.excluded == nil {
		f.excluded = map[string]string{}
	}
	f.excluded[symbol] = reason
	return nil
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

func TestChunkStringsPartitions(t *testing.T) {
	chunks := chunkStrings([]string{"A", "B", "C"}, 2)
	assert.Equal(t, [][]string{{"A", "B"}, {"C"}}, chunks)
}

func TestLastBusinessDaysSkipsWeekends(t *testing.T) {
	// 2026-07-30 is a Thursday; the last 3 calendar days before it are
	// Wed, Tue, Mon (no weekend days).
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	days := lastBusinessDays(now, 3)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestRunFallsBackToTertiaryOnPrimaryEmpty(t *testing.T) {
	primary := &fakePriceFetcher{name: source.Primary, bars: map[string][]model.PriceBar{}}
	tertiary := &fakePriceFetcher{name: source.Tertiary, bars: map[string][]model.PriceBar{
		"AAPL": {{Symbol: "AAPL", Close: 100}},
	}}
	repo := &fakeRepo{streaks: map[string]int{}}

	p := New(primary, nil, tertiary, nil, nil, repo, fakeLedger{}, Config{Concurrency: 1})

	plan := &model.Plan{Entries: []model.PlanEntry{{Symbol: "AAPL", FromDate: time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)}}, Skipped: map[string]string{}}
	summary, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, "AAPL", repo.upserted[0][0].Symbol)
}

func TestRunDropsBarsFailingValidation(t *testing.T) {
	primary := &fakePriceFetcher{name: source.Primary, bars: map[string][]model.PriceBar{
		"AAPL": {{Symbol: "AAPL", Close: -5}},
	}}
	repo := &fakeRepo{streaks: map[string]int{}}

	p := New(primary, nil, nil, nil, nil, repo, fakeLedger{}, Config{Concurrency: 1})

	plan := &model.Plan{Entries: []model.PlanEntry{{Symbol: "AAPL", FromDate: time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)}}, Skipped: map[string]string{}}
	summary, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Failures, 1)
	assert.Empty(t, repo.upserted)
}

func TestRunTracksEmptyStreakTowardAutoExclusion(t *testing.T) {
	primary := &fakePriceFetcher{name: source.Primary, bars: map[string][]model.PriceBar{}}
	repo := &fakeRepo{streaks: map[string]int{"GHOST": 5}}

	p := New(primary, nil, nil, nil, nil, repo, fakeLedger{}, Config{Concurrency: 1, AutoExcludeAfter: 5})

	plan := &model.Plan{Entries: []model.PlanEntry{{Symbol: "GHOST", FromDate: time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)}}, Skipped: map[string]string{}}
	_, err := p.Run(context.Background(), plan, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, model.ReasonNoPriceData, repo.excluded["GHOST"])
}
