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

// Package discovery enumerates the tradable universe across every
// SymbolLister-capable provider, deduplicates on identifier, and runs
// the allowed-exchange / blocked-suffix / instrument-type filters
// named in §4.7.
package discovery

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/source"
)

// predicate is one filter stage in the pipeline; it reports whether a
// candidate survives.
type predicate func(model.Symbol) bool

// Config carries the subset of config.Exchange discovery needs,
// avoiding an import of the config package to keep this a leaf.
type Config struct {
	Allowed         map[string]bool
	BlockedSuffixes []string
}

type Discovery struct {
	providers []source.SymbolLister
	cfg       Config
}

func New(providers []source.SymbolLister, cfg Config) *Discovery {
	return &Discovery{providers: providers, cfg: cfg}
}

// Discover enumerates every provider's symbol lists, dedupes on
// identifier via a hash set, then applies the filter pipeline.
func (d *Discovery) Discover(ctx context.Context) ([]model.Symbol, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	var candidates []model.Symbol

	for _, p := range d.providers {
		for _, batch := range [][]model.Symbol{mustList(ctx, p), mustListEtfs(ctx, p), mustListDividendCandidates(ctx, p)} {
			for _, sym := range batch {
				sym.Normalize()
				if !model.ValidIdentifier(sym.Identifier) {
					continue
				}
				if seen.Contains(sym.Identifier) {
					continue
				}
				seen.Add(sym.Identifier)
				candidates = append(candidates, sym)
			}
		}
	}

	pipeline := []predicate{
		d.allowedExchange,
		d.notBlockedSuffix,
		validInstrumentType,
	}

	var out []model.Symbol
	for _, c := range candidates {
		keep := true
		for _, pred := range pipeline {
			if !pred(c) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}

	log.Info().Int("candidates", len(candidates)).Int("surviving", len(out)).Msg("discovery filter pipeline complete")
	return out, nil
}

func (d *Discovery) allowedExchange(s model.Symbol) bool {
	if len(d.cfg.Allowed) == 0 {
		return true
	}
	return d.cfg.Allowed[s.Exchange]
}

func (d *Discovery) notBlockedSuffix(s model.Symbol) bool {
	for _, suf := range d.cfg.BlockedSuffixes {
		if hasSuffix(s.Identifier, suf) {
			return false
		}
	}
	return true
}

func validInstrumentType(s model.Symbol) bool {
	switch s.Type {
	case model.InstrumentStock, model.InstrumentETF, model.InstrumentTrust:
		return true
	default:
		return false
	}
}

func hasSuffix(id, suffix string) bool {
	if len(suffix) > len(id) {
		return false
	}
	return id[len(id)-len(suffix):] == suffix
}

// mustList/mustListEtfs/mustListDividendCandidates degrade to an empty
// slice and a logged warning on provider error: discovery is
// best-effort across providers, not all-or-nothing.
func mustList(ctx context.Context, p source.SymbolLister) []model.Symbol {
	var out []model.Symbol
	cursor := ""
	for {
		page, next, err := p.ListSymbols(ctx, cursor, 1000)
		if err != nil {
			log.Warn().Err(err).Str("provider", string(p.Name())).Msg("ListSymbols failed; discovery continues with what it has")
			return out
		}
		out = append(out, page...)
		if next == "" {
			return out
		}
		cursor = next
	}
}

func mustListEtfs(ctx context.Context, p source.SymbolLister) []model.Symbol {
	out, err := p.ListEtfs(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(p.Name())).Msg("ListEtfs failed; discovery continues with what it has")
		return nil
	}
	return out
}

func mustListDividendCandidates(ctx context.Context, p source.SymbolLister) []model.Symbol {
	out, err := p.ListDividendCandidates(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(p.Name())).Msg("ListDividendCandidates failed; discovery continues with what it has")
		return nil
	}
	return out
}
