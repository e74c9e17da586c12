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

// Package ledger implements the Source-Tracking Ledger (C5): a monotonic
// record of which (symbol, data_type, source) tuples are known to carry
// data, backed by raw_data_source_tracking. PreferredSource answers are
// held in an in-process lock-free cache so a run doesn't re-query the
// database every time a processor asks for a symbol's preferred source;
// KnownLacking is not cached and queries the table on every call.
package ledger

import (
	"context"

	"github.com/alphadose/haxmap"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/source"
)

// entry is the cached PreferredSource answer for one (symbol, data_type).
type entry struct {
	source source.Name
	found  bool
}

type Ledger struct {
	pool     *pgxpool.Pool
	cache    *haxmap.Map[string, entry]
	priority []source.Name
}

// New builds a Ledger whose PreferredSource walks priority in order.
func New(pool *pgxpool.Pool, priority []source.Name) *Ledger {
	return &Ledger{pool: pool, cache: haxmap.New[string, entry](), priority: priority}
}

func cacheKey(symbol, dataType string) string {
	return symbol + ":" + dataType
}

// Record upserts the (symbol, data_type, source) tuple: increments
// attempts, updates last_checked_at, and sets last_success_at when
// hasData is true. Every call invalidates the in-process
// PreferredSource cache for (symbol, data_type) so the next lookup
// reflects the new observation.
func (l *Ledger) Record(ctx context.Context, symbol, dataType string, src source.Name, hasData bool, note string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO raw_data_source_tracking (symbol, data_type, source, has_data, last_checked_at, last_success_at, attempts, note)
		VALUES ($1, $2, $3, $4, now(), CASE WHEN $4 THEN now() ELSE NULL END, 1, $5)
		ON CONFLICT (symbol, data_type, source) DO UPDATE SET
			has_data = EXCLUDED.has_data,
			last_checked_at = now(),
			last_success_at = CASE WHEN EXCLUDED.has_data THEN now() ELSE raw_data_source_tracking.last_success_at END,
			attempts = raw_data_source_tracking.attempts + 1,
			note = EXCLUDED.note`,
		symbol, dataType, string(src), hasData, note)
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Str("dataType", dataType).Str("source", string(src)).Msg("failed to record ledger observation")
		return err
	}

	l.cache.Del(cacheKey(symbol, dataType))
	return nil
}

// PreferredSource returns the highest-priority source whose last
// observation for (symbol, data_type) has has_data=true, checking the
// in-process cache before the database.
func (l *Ledger) PreferredSource(ctx context.Context, symbol, dataType string) (source.Name, bool, error) {
	key := cacheKey(symbol, dataType)
	if cached, ok := l.cache.Get(key); ok {
		return cached.source, cached.found, nil
	}

	for _, src := range l.priority {
		var hasData bool
		r := l.pool.QueryRow(ctx, `SELECT has_data FROM raw_data_source_tracking WHERE symbol = $1 AND data_type = $2 AND source = $3`, symbol, dataType, string(src))
		err := r.Scan(&hasData)
		if err != nil {
			continue // no observation yet for this source; try the next
		}
		if hasData {
			l.cache.Set(key, entry{source: src, found: true})
			return src, true, nil
		}
	}

	l.cache.Set(key, entry{found: false})
	return "", false, nil
}

// KnownLacking reports whether src is already recorded as not having
// dataType for symbol, letting processors skip a doomed fetch.
func (l *Ledger) KnownLacking(ctx context.Context, symbol, dataType string, src source.Name) bool {
	var hasData bool
	r := l.pool.QueryRow(ctx, `SELECT has_data FROM raw_data_source_tracking WHERE symbol = $1 AND data_type = $2 AND source = $3`, symbol, dataType, string(src))
	if err := r.Scan(&hasData); err != nil {
		return false
	}
	return !hasData
}

// Data type constants recorded in raw_data_source_tracking.data_type.
const (
	DataTypePrices    = "prices"
	DataTypeDividends = "dividends"
	DataTypeSplits    = "splits"
	DataTypeCompany   = "company"
)
