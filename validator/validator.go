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

// Package validator implements the symbol liveness check (C8): a
// candidate is valid iff it has a recent PriceBar or a recent
// DividendEvent. Symbols that fail are recorded as excluded.
package validator

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/model"
)

const (
	priceRecencyWindow    = 7 * 24 * time.Hour
	dividendRecencyWindow = 365 * 24 * time.Hour
)

// repo is satisfied by repository.Repository.
type repo interface {
	RecentPriceSymbols(ctx context.Context, since time.Time) (map[string]bool, error)
	RecentDividendSymbols(ctx context.Context, since time.Time) (map[string]bool, error)
	ExcludedSymbols(ctx context.Context) (map[string]bool, error)
	MarkExcluded(ctx context.Context, symbol, reason string, auto bool) error
}

type Validator struct {
	repo repo
}

func New(repo repo) *Validator {
	return &Validator{repo: repo}
}

// ValidateAll checks every candidate, marking excluded ones in the
// repository, and returns only the survivors.
func (v *Validator) ValidateAll(ctx context.Context, candidates []model.Symbol, now time.Time) ([]model.Symbol, error) {
	alreadyExcluded, err := v.repo.ExcludedSymbols(ctx)
	if err != nil {
		return nil, err
	}

	recentPrices, err := v.repo.RecentPriceSymbols(ctx, now.Add(-priceRecencyWindow))
	if err != nil {
		return nil, err
	}

	recentDividends, err := v.repo.RecentDividendSymbols(ctx, now.Add(-dividendRecencyWindow))
	if err != nil {
		return nil, err
	}

	var survivors []model.Symbol
	for _, c := range candidates {
		if alreadyExcluded[c.Identifier] {
			continue
		}

		result := v.validate(c.Identifier, recentPrices, recentDividends)
		if result.Valid {
			survivors = append(survivors, c)
			continue
		}

		if err := v.repo.MarkExcluded(ctx, c.Identifier, result.Reason, true); err != nil {
			log.Error().Err(err).Str("symbol", c.Identifier).Msg("failed to record excluded symbol")
			return nil, err
		}
	}

	return survivors, nil
}

func (v *Validator) validate(identifier string, recentPrices, recentDividends map[string]bool) model.ValidationResult {
	if recentPrices[identifier] || recentDividends[identifier] {
		return model.ValidationResult{Valid: true}
	}
	return model.ValidationResult{Valid: false, Reason: model.ReasonNoData}
}
