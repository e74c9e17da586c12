// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/markethours"
	"github.com/marketraw/ingestd/model"
)

type fakeSymbolSource struct{ symbols []model.Symbol }

func (f *fakeSymbolSource) AllSymbols(ctx context.Context) ([]model.Symbol, error) {
	return f.symbols, nil
}

type fakePlanSource struct{}

func (f *fakePlanSource) Plan(ctx context.Context, symbols []string, dataType string, now time.Time, force bool) (*model.Plan, error) {
	return &model.Plan{DataType: dataType, Skipped: map[string]string{}}, nil
}

type fakePriceRunner struct {
	summary *model.PhaseSummary
	err     error
}

func (f *fakePriceRunner) Run(ctx context.Context, plan *model.Plan, now time.Time) (*model.PhaseSummary, error) {
	return f.summary, f.err
}

type fakeDividendRunner struct {
	summary *model.PhaseSummary
	err     error
}

func (f *fakeDividendRunner) Run(ctx context.Context, plan *model.Plan, now time.Time) (*model.PhaseSummary, error) {
	return f.summary, f.err
}

type fakeCompanyRunner struct{ summary *model.PhaseSummary }

func (f *fakeCompanyRunner) Run(ctx context.Context, symbols []string, now time.Time) (*model.PhaseSummary, error) {
	return f.summary, nil
}

func TestRunUpdateSkipsOnMarketHoursGate(t *testing.T) {
	o := &Orchestrator{Gate: markethours.New("us-eastern")}
	// 2026-08-01 is a Saturday.
	report, err := o.RunUpdate(context.Background(), RunOptions{}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, "weekend", report.SkipReason)
}

func TestRunUpdateForceBypassesGateAndRunsPhases(t *testing.T) {
	o := &Orchestrator{
		Gate:      markethours.New("us-eastern"),
		Repo:      &fakeSymbolSource{symbols: []model.Symbol{{Identifier: "AAPL"}}},
		Planner:   &fakePlanSource{},
		PriceProc: &fakePriceRunner{summary: &model.PhaseSummary{Phase: "price", Processed: 1, Succeeded: 1}},
		DivProc:   &fakeDividendRunner{summary: &model.PhaseSummary{Phase: "dividend", Processed: 1, Succeeded: 1}},
		CoProc:    &fakeCompanyRunner{summary: &model.PhaseSummary{Phase: "company", Processed: 1, Succeeded: 1}},
	}
	report, err := o.RunUpdate(context.Background(), RunOptions{Force: true}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.False(t, report.Skipped)
	require.Len(t, report.Phases, 3)
	assert.False(t, report.Degraded)
}

func TestRunUpdateSiblingPhaseFailureDoesNotDropCompletedSummary(t *testing.T) {
	priceSummary := &model.PhaseSummary{Phase: "price", Processed: 1, Succeeded: 1}
	o := &Orchestrator{
		Repo:      &fakeSymbolSource{symbols: []model.Symbol{{Identifier: "AAPL"}}},
		Planner:   &fakePlanSource{},
		PriceProc: &fakePriceRunner{summary: priceSummary},
		DivProc:   &fakeDividendRunner{err: &model.ProviderError{Kind: model.KindPersistence, Provider: "test", Endpoint: "dividend-payers", Err: errors.New("db down")}},
	}
	report, err := o.RunUpdate(context.Background(), RunOptions{Force: true}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	require.Error(t, err)
	require.Len(t, report.Phases, 1)
	assert.Equal(t, "price", report.Phases[0].Phase)
	assert.NotEmpty(t, report.FatalErr)
	assert.Equal(t, model.KindPersistence, report.FatalKind)
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunUpdateAuthFatalExitsTwo(t *testing.T) {
	o := &Orchestrator{
		Repo:      &fakeSymbolSource{symbols: []model.Symbol{{Identifier: "AAPL"}}},
		Planner:   &fakePlanSource{},
		PriceProc: &fakePriceRunner{summary: &model.PhaseSummary{Phase: "price"}},
		DivProc:   &fakeDividendRunner{err: &model.ProviderError{Kind: model.KindAuth, Provider: "test", Endpoint: "dividends", Err: errors.New("401")}},
	}
	report, err := o.RunUpdate(context.Background(), RunOptions{Force: true}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	require.Error(t, err)
	assert.Equal(t, model.KindAuth, report.FatalKind)
	assert.Equal(t, 2, report.ExitCode())
}

func TestRunUpdateFromDateOverrideAppliesToEveryEntry(t *testing.T) {
	plan := &model.Plan{
		Entries: []model.PlanEntry{{Symbol: "AAPL", FromDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}},
	}
	override := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	applyFromDateOverride(plan, override)
	assert.Equal(t, override, plan.Entries[0].FromDate)
}

func TestRunUpdateDryRunSkipsWrites(t *testing.T) {
	o := &Orchestrator{
		Repo:    &fakeSymbolSource{symbols: []model.Symbol{{Identifier: "AAPL"}}},
		Planner: &fakePlanSource{},
	}
	report, err := o.RunUpdate(context.Background(), RunOptions{Force: true, DryRun: true}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Empty(t, report.Phases)
}
