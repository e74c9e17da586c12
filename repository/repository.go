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

// Package repository is the sole writer of raw_stocks, raw_stock_prices,
// raw_dividends, raw_stock_splits, raw_future_dividends, and
// raw_excluded_symbols. Every bulk write is chunked and each chunk commits
// in its own transaction so a failed chunk never rolls back prior
// successful ones (§4.4 "best-effort ingest").
package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/marketraw/ingestd/model"
	"github.com/marketraw/ingestd/ratelimit"
)

type Repository struct {
	pool            *pgxpool.Pool
	writeLimiter    *ratelimit.Limiter
	upsertBatchSize int
}

// New wraps an already-connected pool. writeLimiter bounds concurrent
// writers per §5 ("Repository connection pool: bounded").
func New(pool *pgxpool.Pool, writeLimiter *ratelimit.Limiter, upsertBatchSize int) *Repository {
	if upsertBatchSize <= 0 {
		upsertBatchSize = 500
	}
	return &Repository{pool: pool, writeLimiter: writeLimiter, upsertBatchSize: upsertBatchSize}
}

// Connect builds a pgxpool.Pool from a connection string, the teacher's
// library.Connect idiom.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dbURL)
}

func (r *Repository) chunks(n int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += r.upsertBatchSize {
		end := start + r.upsertBatchSize
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// classify maps a pgx error to the §7 PersistenceError/DataInvariantError
// split: constraint violations become a DataInvariantError; anything else
// (connection loss, timeout) is a PersistenceError carrying the chunk
// index and row count. Either way the chunk's transaction is rolled back,
// so no row of that chunk is written.
func classify(table string, chunkIdx, rowCount int, err error) error {
	var pgErr *pgconn.PgError
	if asPgError(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation:
			return &model.DataInvariantError{Table: table, Reason: pgErr.Message}
		}
	}
	return &model.PersistenceError{Table: table, ChunkIndex: chunkIdx, RowCount: rowCount, Err: err}
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pe, ok := err.(*pgconn.PgError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// withWriteSlot acquires the write-target rate limiter around a unit of
// work, mirroring the Acquire -> work -> Report* -> Release contract
// every other limiter consumer follows.
func (r *Repository) withWriteSlot(ctx context.Context, fn func() error) error {
	if r.writeLimiter == nil {
		return fn()
	}
	release, err := r.writeLimiter.AcquireScoped(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = fn()
	if err != nil {
		r.writeLimiter.ReportThrottle()
	} else {
		r.writeLimiter.ReportSuccess()
	}
	return err
}

// UpsertSymbols writes the Symbol table, keyed on identifier.
func (r *Repository) UpsertSymbols(ctx context.Context, batch []model.Symbol) error {
	var result error
	for _, bounds := range r.chunks(len(batch)) {
		chunk := batch[bounds[0]:bounds[1]]
		err := r.withWriteSlot(ctx, func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				for _, s := range chunk {
					_, err := tx.Exec(ctx, `
						INSERT INTO raw_stocks (symbol, type, exchange, name, sector, industry,
							currency, country, dividend_yield, market_cap, expense_ratio, description,
							refreshed_at, updated_at)
						VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
						ON CONFLICT (symbol) DO UPDATE SET
							type = EXCLUDED.type, exchange = EXCLUDED.exchange, name = EXCLUDED.name,
							sector = EXCLUDED.sector, industry = EXCLUDED.industry,
							currency = EXCLUDED.currency, country = EXCLUDED.country,
							dividend_yield = EXCLUDED.dividend_yield, market_cap = EXCLUDED.market_cap,
							expense_ratio = EXCLUDED.expense_ratio, description = EXCLUDED.description,
							refreshed_at = EXCLUDED.refreshed_at, updated_at = now()`,
						s.Identifier, s.Type, s.Exchange, s.Name, s.Sector, s.Industry, s.Currency,
						s.Country, s.DividendYield, s.MarketCap, s.ExpenseRatio, s.Description, s.RefreshedAt)
					if err != nil {
						return classify("raw_stocks", bounds[0], len(chunk), err)
					}
				}
				return nil
			})
		})
		if err != nil {
			log.Error().Err(err).Int("chunk", bounds[0]).Msg("upsert symbols chunk failed")
			result = multierror.Append(result, err)
		}
	}
	return result
}

// UpsertPrices writes raw_stock_prices, keyed on (symbol, date). On
// conflict the incoming row replaces the stored one whichever provider
// it came from, except that a null aum/iv keeps the stored value; there
// is no preference for PRIMARY's rows.
func (r *Repository) UpsertPrices(ctx context.Context, batch []model.PriceBar) error {
	var result error
	for _, bounds := range r.chunks(len(batch)) {
		chunk := batch[bounds[0]:bounds[1]]
		err := r.withWriteSlot(ctx, func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				for _, p := range chunk {
					_, err := tx.Exec(ctx, `
						INSERT INTO raw_stock_prices (symbol, date, open, high, low, close, adj_close, volume, aum, iv)
						VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
						ON CONFLICT (symbol, date) DO UPDATE SET
							open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
							close = EXCLUDED.close, adj_close = EXCLUDED.adj_close,
							volume = EXCLUDED.volume,
							aum = COALESCE(EXCLUDED.aum, raw_stock_prices.aum),
							iv = COALESCE(EXCLUDED.iv, raw_stock_prices.iv)`,
						p.Symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.AdjClose, p.Volume, p.AUM, p.IV)
					if err != nil {
						return classify("raw_stock_prices", bounds[0], len(chunk), err)
					}
				}
				_, err := tx.Exec(ctx, `UPDATE raw_stocks SET updated_at = now() WHERE symbol = ANY($1)`, symbolsOf(chunk))
				return err
			})
		})
		if err != nil {
			log.Error().Err(err).Int("chunk", bounds[0]).Msg("upsert prices chunk failed")
			result = multierror.Append(result, err)
		}
	}
	return result
}

func symbolsOf(bars []model.PriceBar) []string {
	seen := make(map[string]bool, len(bars))
	out := make([]string, 0, len(bars))
	for _, b := range bars {
		if !seen[b.Symbol] {
			seen[b.Symbol] = true
			out = append(out, b.Symbol)
		}
	}
	return out
}

// UpsertDividends writes raw_dividends, keyed on (symbol, ex_date). A
// stored event whose ex_date is before today is historical and left
// unchanged; for the others payment_date and amount are refreshed.
func (r *Repository) UpsertDividends(ctx context.Context, batch []model.DividendEvent) error {
	var result error
	for _, bounds := range r.chunks(len(batch)) {
		chunk := batch[bounds[0]:bounds[1]]
		err := r.withWriteSlot(ctx, func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				for _, d := range chunk {
					_, err := tx.Exec(ctx, `
						INSERT INTO raw_dividends (symbol, ex_date, declaration_date, record_date, payment_date, amount, currency)
						VALUES ($1,$2,$3,$4,$5,$6,$7)
						ON CONFLICT (symbol, ex_date) DO UPDATE SET
							payment_date = EXCLUDED.payment_date,
							amount = EXCLUDED.amount
						WHERE raw_dividends.ex_date >= CURRENT_DATE`,
						d.Symbol, d.ExDate, d.DeclarationDate, d.RecordDate, d.PaymentDate, d.Amount, d.Currency)
					if err != nil {
						return classify("raw_dividends", bounds[0], len(chunk), err)
					}
				}
				return nil
			})
		})
		if err != nil {
			log.Error().Err(err).Int("chunk", bounds[0]).Msg("upsert dividends chunk failed")
			result = multierror.Append(result, err)
		}
	}
	return result
}

// UpsertFutureDividends writes raw_future_dividends, same key semantics
// as raw_dividends.
func (r *Repository) UpsertFutureDividends(ctx context.Context, batch []model.DividendEvent) error {
	var result error
	for _, bounds := range r.chunks(len(batch)) {
		chunk := batch[bounds[0]:bounds[1]]
		err := r.withWriteSlot(ctx, func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				for _, d := range chunk {
					_, err := tx.Exec(ctx, `
						INSERT INTO raw_future_dividends (symbol, ex_date, declaration_date, record_date, payment_date, amount, currency)
						VALUES ($1,$2,$3,$4,$5,$6,$7)
						ON CONFLICT (symbol, ex_date) DO UPDATE SET
							payment_date = EXCLUDED.payment_date,
							amount = EXCLUDED.amount`,
						d.Symbol, d.ExDate, d.DeclarationDate, d.RecordDate, d.PaymentDate, d.Amount, d.Currency)
					if err != nil {
						return classify("raw_future_dividends", bounds[0], len(chunk), err)
					}
				}
				return nil
			})
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// UpsertSplits writes raw_stock_splits, keyed on (symbol, split_date).
func (r *Repository) UpsertSplits(ctx context.Context, batch []model.CorporateSplit) error {
	var result error
	for _, bounds := range r.chunks(len(batch)) {
		chunk := batch[bounds[0]:bounds[1]]
		err := r.withWriteSlot(ctx, func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				for _, s := range chunk {
					_, err := tx.Exec(ctx, `
						INSERT INTO raw_stock_splits (symbol, split_date, numerator, denominator, ratio)
						VALUES ($1,$2,$3,$4,$5)
						ON CONFLICT (symbol, split_date) DO UPDATE SET
							numerator = EXCLUDED.numerator, denominator = EXCLUDED.denominator, ratio = EXCLUDED.ratio`,
						s.Symbol, s.SplitDate, s.Numerator, s.Denominator, s.Ratio)
					if err != nil {
						return classify("raw_stock_splits", bounds[0], len(chunk), err)
					}
				}
				return nil
			})
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// UpsertCompany writes raw_stocks' company-metadata columns, keyed on symbol.
func (r *Repository) UpsertCompany(ctx context.Context, batch []model.CompanyInfo) error {
	var result error
	for _, bounds := range r.chunks(len(batch)) {
		chunk := batch[bounds[0]:bounds[1]]
		err := r.withWriteSlot(ctx, func() error {
			return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
				for _, c := range chunk {
					_, err := tx.Exec(ctx, `
						INSERT INTO raw_stocks (symbol, name, sector, industry, market_cap, expense_ratio, description, refreshed_at, updated_at)
						VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
						ON CONFLICT (symbol) DO UPDATE SET
							name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE raw_stocks.name END,
							sector = CASE WHEN EXCLUDED.sector <> '' THEN EXCLUDED.sector ELSE raw_stocks.sector END,
							industry = CASE WHEN EXCLUDED.industry <> '' THEN EXCLUDED.industry ELSE raw_stocks.industry END,
							market_cap = COALESCE(EXCLUDED.market_cap, raw_stocks.market_cap),
							expense_ratio = COALESCE(EXCLUDED.expense_ratio, raw_stocks.expense_ratio),
							description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE raw_stocks.description END,
							refreshed_at = EXCLUDED.refreshed_at,
							updated_at = now()`,
						c.Symbol, c.Name, c.Sector, c.Industry, c.MarketCap, c.ExpenseRatio, c.Description, c.RefreshedAt)
					if err != nil {
						return classify("raw_stocks", bounds[0], len(chunk), err)
					}
				}
				return nil
			})
		})
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// MarkExcluded is an idempotent insert into raw_excluded_symbols.
func (r *Repository) MarkExcluded(ctx context.Context, symbol, reason string, auto bool) error {
	return r.withWriteSlot(ctx, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO raw_excluded_symbols (symbol, reason, auto_excluded, recorded_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (symbol) DO UPDATE SET reason = EXCLUDED.reason, auto_excluded = EXCLUDED.auto_excluded, recorded_at = now()`,
			symbol, reason, auto)
		return err
	})
}

// ExcludedSymbols returns the current set of auto-excluded identifiers.
// The Validator consults it to skip already-excluded candidates; the
// Orchestrator and the update processors do not read it.
func (r *Repository) ExcludedSymbols(ctx context.Context) (map[string]bool, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT symbol FROM raw_excluded_symbols WHERE auto_excluded = true`); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Symbol] = true
	}
	return out, nil
}

// BulkLatestDates returns the maximum date per symbol in one query,
// grounded on the teacher's filterAssetsByLastUpdated pattern. When
// symbols is empty every known symbol in the table is returned.
func (r *Repository) BulkLatestDates(ctx context.Context, table, dateColumn string, symbols []string) (map[string]time.Time, error) {
	var rows []struct {
		Symbol string    `db:"symbol"`
		Max    time.Time `db:"max"`
	}

	query := `SELECT symbol, max(` + dateColumn + `) as max FROM ` + table
	args := []interface{}{}
	if len(symbols) > 0 {
		query += ` WHERE symbol = ANY($1)`
		args = append(args, symbols)
	}
	query += ` GROUP BY symbol`

	if err := pgxscan.Select(ctx, r.pool, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.Symbol] = row.Max
	}
	return out, nil
}

// DistinctSymbolsWith returns the set of symbols holding any row in table.
func (r *Repository) DistinctSymbolsWith(ctx context.Context, table string) (map[string]bool, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT DISTINCT symbol FROM `+table); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Symbol] = true
	}
	return out, nil
}

// SymbolUpdatedAt returns the Symbol table's updated_at per symbol,
// consulted by the Planner's staleness skip.
func (r *Repository) SymbolUpdatedAt(ctx context.Context, symbols []string) (map[string]time.Time, error) {
	var rows []struct {
		Symbol    string    `db:"symbol"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT symbol, updated_at FROM raw_stocks WHERE symbol = ANY($1)`, symbols); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.Symbol] = row.UpdatedAt
	}
	return out, nil
}

// RecentPriceSymbols returns symbols with a PriceBar within the given
// window, used by the Validator's liveness check.
func (r *Repository) RecentPriceSymbols(ctx context.Context, since time.Time) (map[string]bool, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT DISTINCT symbol FROM raw_stock_prices WHERE date >= $1`, since); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Symbol] = true
	}
	return out, nil
}

// RecentDividendSymbols returns symbols with a DividendEvent within the
// given window, the Validator's second liveness condition.
func (r *Repository) RecentDividendSymbols(ctx context.Context, since time.Time) (map[string]bool, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT DISTINCT symbol FROM raw_dividends WHERE ex_date >= $1`, since); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Symbol] = true
	}
	return out, nil
}

// CompanyRefreshedSince returns the set of symbols whose CompanyInfo was
// refreshed at or after cutoff, the Company Processor's TTL cache hit set.
func (r *Repository) CompanyRefreshedSince(ctx context.Context, cutoff time.Time) (map[string]bool, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT symbol FROM raw_stocks WHERE refreshed_at >= $1`, cutoff); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Symbol] = true
	}
	return out, nil
}

// DividendPayers returns symbols whose dividend_yield is non-null, the
// "known payers" set used to restrict the Dividend Processor's work list
// when fetch.filter_dividend_symbols is enabled.
func (r *Repository) DividendPayers(ctx context.Context) (map[string]bool, error) {
	var rows []struct {
		Symbol string `db:"symbol"`
	}
	if err := pgxscan.Select(ctx, r.pool, &rows, `SELECT symbol FROM raw_stocks WHERE dividend_yield IS NOT NULL`); err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		out[row.Symbol] = true
	}
	return out, nil
}

// AllSymbols loads the currently discovered universe, the Orchestrator's
// starting point for update runs.
func (r *Repository) AllSymbols(ctx context.Context) ([]model.Symbol, error) {
	var symbols []model.Symbol
	err := pgxscan.Select(ctx, r.pool, &symbols, `
		SELECT symbol, type, exchange, name, sector, industry, currency, country,
			dividend_yield, market_cap, expense_ratio, description, refreshed_at, updated_at
		FROM raw_stocks`)
	return symbols, err
}

// Summary is the aggregate view `cmd info` renders: counts feeding a
// quick at-a-glance health check of the raw layer.
type Summary struct {
	TotalSymbols    int
	ExcludedSymbols int
	TotalPriceBars  int
	TotalDividends  int
	LatestPriceDate time.Time
}

// Summarize gathers the counts behind Summary in a handful of cheap
// aggregate queries.
func (r *Repository) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM raw_stocks`).Scan(&s.TotalSymbols); err != nil {
		return s, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM raw_excluded_symbols`).Scan(&s.ExcludedSymbols); err != nil {
		return s, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM raw_stock_prices`).Scan(&s.TotalPriceBars); err != nil {
		return s, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM raw_dividends`).Scan(&s.TotalDividends); err != nil {
		return s, err
	}
	var latest *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT max(date) FROM raw_stock_prices`).Scan(&latest); err != nil {
		return s, err
	}
	if latest != nil {
		s.LatestPriceDate = *latest
	}
	return s, nil
}

// SymbolsMissingName returns up to limit identifiers whose raw_stocks row
// has never been filled in by the Company Processor, the refresh-companies
// subcommand's target set. limit <= 0 means no cap.
func (r *Repository) SymbolsMissingName(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT symbol FROM raw_stocks WHERE name = '' ORDER BY symbol`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	var symbols []string
	err := pgxscan.Select(ctx, r.pool, &symbols, query, args...)
	return symbols, err
}

// ConsecutiveEmptyRuns tracks, per symbol, how many update runs in a row
// have produced zero new price bars. It is backed by the same ledger
// table the Source-Tracking Ledger owns (data_type "price_empty_streak")
// so no new raw table is required for the auto-exclude-after-N feature.
func (r *Repository) ConsecutiveEmptyRuns(ctx context.Context, symbol string) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `
		SELECT attempts FROM raw_data_source_tracking
		WHERE symbol = $1 AND data_type = 'price_empty_streak' AND source = 'engine'`, symbol).Scan(&attempts)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return attempts, err
}

// RecordEmptyRun increments or resets the empty-run streak for a symbol.
func (r *Repository) RecordEmptyRun(ctx context.Context, symbol string, empty bool) error {
	if !empty {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO raw_data_source_tracking (symbol, data_type, source, has_data, last_checked_at, attempts)
			VALUES ($1, 'price_empty_streak', 'engine', true, now(), 0)
			ON CONFLICT (symbol, data_type, source) DO UPDATE SET attempts = 0, last_checked_at = now()`,
			symbol)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO raw_data_source_tracking (symbol, data_type, source, has_data, last_checked_at, attempts)
		VALUES ($1, 'price_empty_streak', 'engine', false, now(), 1)
		ON CONFLICT (symbol, data_type, source) DO UPDATE SET
			attempts = raw_data_source_tracking.attempts + 1, last_checked_at = now()`,
		symbol)
	return err
}
