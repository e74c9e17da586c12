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

// Package companyproc implements the Company Processor (C11): a
// TTL-cached refresh of company/ETF metadata, PRIMARY with SECONDARY
// consulted only for ETF-specific fields.
package companyproc

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

type repo interface {
	CompanyRefreshedSince(ctx context.Context, cutoff time.Time) (map[string]bool, error)
	UpsertCompany(ctx context.Context, batch []model.CompanyInfo) error
}

type Config struct {
	CacheCompanyData bool
	CompanyCacheDays int
}

type Processor struct {
	primary   source.CompanyFetcher
	secondary source.CompanyFetcher
	repo      repo
	cfg       Config
}

func New(primary, secondary source.CompanyFetcher, repo repo, cfg Config) *Processor {
	return &Processor{primary: primary, secondary: secondary, repo: repo, cfg: cfg}
}

func (p *Processor) Run(ctx context.Context, symbols []string, now time.Time) (*model.PhaseSummary, error) {
	start := time.Now()
	summary := &model.PhaseSummary{Phase: "company", Inputs: len(symbols)}

	candidates := append([]string{}, symbols...)
	sort.Strings(candidates)

	if p.cfg.CacheCompanyData {
		cutoff := now.AddDate(0, 0, -p.cfg.CompanyCacheDays)
		fresh, err := p.repo.CompanyRefreshedSince(ctx, cutoff)
		if err != nil {
			return nil, err
		}

		var stale []string
		for _, s := range candidates {
			if fresh[s] {
				summary.SkippedStaleness++
				continue
			}
			stale = append(stale, s)
		}
		candidates = stale
	}

	summary.Processed = len(candidates)

	var batch []model.CompanyInfo
	for _, symbol := range candidates {
		info, ok := p.fetchOne(ctx, symbol, now)
		if !ok {
			summary.Failed++
			continue
		}
		batch = append(batch, info)
		summary.Succeeded++
	}

	if len(batch) > 0 {
		if err := p.repo.UpsertCompany(ctx, batch); err != nil {
			log.Error().Err(err).Msg("company upsert failed")
			return nil, err
		}
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// fetchOne calls PRIMARY for the base record, then SECONDARY for
// ETF-specific fields (fund_family, expense_ratio) if PRIMARY left
// them empty.
func (p *Processor) fetchOne(ctx context.Context, symbol string, now time.Time) (model.CompanyInfo, bool) {
	if p.primary == nil {
		return model.CompanyInfo{}, false
	}

	info, err := p.primary.FetchCompany(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("PRIMARY company fetch failed")
		return model.CompanyInfo{}, false
	}

	if p.secondary != nil && (info.FundFamily == "" || info.ExpenseRatio == nil) {
		if secInfo, err := p.secondary.FetchCompany(ctx, symbol); err == nil {
			if info.FundFamily == "" {
				info.FundFamily = secInfo.FundFamily
			}
			if info.ExpenseRatio == nil {
				info.ExpenseRatio = secInfo.ExpenseRatio
			}
		}
	}

	info.Symbol = symbol
	info.RefreshedAt = now
	return info, true
}
