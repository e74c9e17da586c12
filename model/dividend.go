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
package model

import (
	"math"
	"time"
)

// DividendEvent is keyed by (symbol, ex_date). Historical events are
// immutable; future events may have PaymentDate/Amount refreshed until
// ExDate passes.
type DividendEvent struct {
	Symbol          string     `db:"symbol" json:"symbol"`
	ExDate          time.Time  `db:"ex_date" json:"ex_date"`
	DeclarationDate *time.Time `db:"declaration_date" json:"declaration_date,omitempty"`
	RecordDate      *time.Time `db:"record_date" json:"record_date,omitempty"`
	PaymentDate     *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	Amount          float64    `db:"amount" json:"amount"`
	Currency        string     `db:"currency" json:"currency"`
	Frequency       string     `db:"frequency" json:"frequency,omitempty"`
}

// Validate enforces amount >= 0, the only quantified invariant §3 assigns
// to DividendEvent beyond key uniqueness (enforced at the database).
func (d *DividendEvent) Validate() error {
	if d.Amount < 0 {
		return &DataInvariantError{Table: "raw_dividends", Symbol: d.Symbol, Reason: "amount must be >= 0"}
	}
	return nil
}

// Historical reports whether ex_date has already passed as of now. A
// historical event is immutable; only events that are not yet historical
// may have PaymentDate/Amount refreshed.
func (d *DividendEvent) Historical(now time.Time) bool {
	return d.ExDate.Before(now)
}

// CorporateSplit is keyed by (symbol, split_date).
type CorporateSplit struct {
	Symbol      string    `db:"symbol" json:"symbol"`
	SplitDate   time.Time `db:"split_date" json:"split_date"`
	Numerator   float64   `db:"numerator" json:"numerator"`
	Denominator float64   `db:"denominator" json:"denominator"`
	Ratio       float64   `db:"ratio" json:"ratio"`
}

// Validate enforces numerator/denominator > 0 and ratio consistency.
func (c *CorporateSplit) Validate() error {
	if c.Numerator <= 0 || c.Denominator <= 0 {
		return &DataInvariantError{Table: "raw_stock_splits", Symbol: c.Symbol, Reason: "numerator and denominator must be > 0"}
	}
	if math.Abs(c.Ratio-c.Numerator/c.Denominator) > 1e-9 {
		return &DataInvariantError{Table: "raw_stock_splits", Symbol: c.Symbol, Reason: "ratio must equal numerator/denominator"}
	}
	return nil
}
