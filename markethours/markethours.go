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

// Package markethours implements the Market-Hours Gate (C13): a pure
// function of the current time and a built-in US exchange holiday
// calendar, deciding whether an update run should proceed now.
package markethours

import (
	"time"
)

// Gate evaluates ShouldRun against a named holiday calendar. Only
// "us-eastern" is built in; an unrecognized name falls back to it.
type Gate struct {
	calendar   string
	location   *time.Location
}

func New(calendarName string) *Gate {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &Gate{calendar: calendarName, location: loc}
}

// ShouldRun implements the §4.13 decision table: weekend and holiday
// checks first, then the exchange-local time-of-day windows.
func (g *Gate) ShouldRun(now time.Time) (bool, string) {
	local := now.In(g.location)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, "weekend"
	}

	if isHoliday(local) {
		return false, "holiday"
	}

	minutes := local.Hour()*60 + local.Minute()
	switch {
	case minutes >= 18*60 && minutes <= 23*60:
		return true, "optimal-window"
	case minutes >= 0 && minutes <= 9*60:
		return true, "acceptable"
	case minutes >= 9*60+30 && minutes <= 16*60:
		return false, "market-hours"
	default:
		return true, "acceptable"
	}
}

// isHoliday reports whether d falls on a US federal market holiday,
// combining fixed-date and nth-weekday-of-month computed holidays.
func isHoliday(d time.Time) bool {
	y, m, day := d.Date()
	for _, h := range fixedHolidays(y) {
		hy, hm, hd := h.Date()
		if hy == y && hm == m && hd == day {
			return true
		}
	}
	for _, h := range computedHolidays(y) {
		hy, hm, hd := h.Date()
		if hy == y && hm == m && hd == day {
			return true
		}
	}
	return false
}

func fixedHolidays(year int) []time.Time {
	return []time.Time{
		date(year, time.January, 1),    // New Year's Day
		date(year, time.June, 19),      // Juneteenth
		date(year, time.July, 4),       // Independence Day
		date(year, time.November, 11),  // Veterans Day
		date(year, time.December, 25),  // Christmas Day
	}
}

func computedHolidays(year int) []time.Time {
	return []time.Time{
		nthWeekday(year, time.January, time.Monday, 3),    // MLK Day
		nthWeekday(year, time.February, time.Monday, 3),   // Presidents' Day
		lastWeekday(year, time.May, time.Monday),          // Memorial Day
		nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(year, time.October, time.Monday, 2),    // Columbus Day
		nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// nthWeekday returns the nth occurrence of weekday in month (1-indexed).
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	d = d.AddDate(0, 0, offset+7*(n-1))
	return d
}

// lastWeekday returns the last occurrence of weekday in month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}
