// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
)

func TestChunksPartitionsEvenly(t *testing.T) {
	r := &Repository{upsertBatchSize: 3}
	bounds := r.chunks(7)
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, bounds)
}

func TestChunksEmpty(t *testing.T) {
	r := &Repository{upsertBatchSize: 3}
	assert.Empty(t, r.chunks(0))
}

func TestClassifyConstraintViolationIsInvariant(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key"}
	err := classify("raw_stock_prices", 0, 10, pgErr)

	var invariant *model.DataInvariantError
	require.True(t, errors.As(err, &invariant))
}

func TestClassifyConnectionErrorIsPersistence(t *testing.T) {
	err := classify("raw_stock_prices", 2, 10, errors.New("connection reset"))

	var persist *model.PersistenceError
	require.True(t, errors.As(err, &persist))
	assert.Equal(t, 2, persist.ChunkIndex)
	assert.Equal(t, 10, persist.RowCount)
}

func TestSymbolsOfDeduplicates(t *testing.T) {
	bars := []model.PriceBar{{Symbol: "AAPL"}, {Symbol: "MSFT"}, {Symbol: "AAPL"}}
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbolsOf(bars))
}
