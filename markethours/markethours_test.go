// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRunFalseOnWeekend(t *testing.T) {
	g := New("us-eastern")
	// 2026-08-01 is a Saturday.
	ok, reason := g.ShouldRun(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Equal(t, "weekend", reason)
}

func TestShouldRunFalseOnNewYearsDay(t *testing.T) {
	g := New("us-eastern")
	ok, reason := g.ShouldRun(time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Equal(t, "holiday", reason)
}

func TestShouldRunFalseDuringMarketHours(t *testing.T) {
	g := New("us-eastern")
	// 2026-07-30 is a Thursday, 10:00 local.
	loc, _ := time.LoadLocation("America/New_York")
	ok, reason := g.ShouldRun(time.Date(2026, 7, 30, 10, 0, 0, 0, loc))
	assert.False(t, ok)
	assert.Equal(t, "market-hours", reason)
}

func TestShouldRunOptimalWindowInEvening(t *testing.T) {
	g := New("us-eastern")
	loc, _ := time.LoadLocation("America/New_York")
	ok, reason := g.ShouldRun(time.Date(2026, 7, 30, 19, 0, 0, 0, loc))
	assert.True(t, ok)
	assert.Equal(t, "optimal-window", reason)
}

func TestShouldRunAcceptableOvernight(t *testing.T) {
	g := New("us-eastern")
	loc, _ := time.LoadLocation("America/New_York")
	ok, reason := g.ShouldRun(time.Date(2026, 7, 30, 3, 0, 0, 0, loc))
	assert.True(t, ok)
	assert.Equal(t, "acceptable", reason)
}

func TestNthWeekdayComputesThanksgiving(t *testing.T) {
	thanksgiving := nthWeekday(2026, time.November, time.Thursday, 4)
	assert.Equal(t, time.Date(2026, 11, 26, 0, 0, 0, 0, time.UTC), thanksgiving)
}

func TestLastWeekdayComputesMemorialDay(t *testing.T) {
	memorial := lastWeekday(2026, time.May, time.Monday)
	assert.Equal(t, time.Date(2026, 5, 25, 0, 0, 0, 0, time.UTC), memorial)
}
