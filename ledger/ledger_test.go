// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyCombinesSymbolAndDataType(t *testing.T) {
	assert.Equal(t, "AAPL:prices", cacheKey("AAPL", "prices"))
	assert.NotEqual(t, cacheKey("AAPL", "prices"), cacheKey("AA", "PL:prices"))
}
