// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	v := viper.New()
	v.Set("api.primary_key", "key")
	v.Set("db.url", "postgres://localhost/pvdata")
	return FromViper(v)
}

func TestValidateFailsOnMissingCredential(t *testing.T) {
	v := viper.New()
	v.Set("db.url", "postgres://localhost/pvdata")
	cfg := FromViper(v)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.primary_key")
}

func TestValidateFailsOnOutOfRangeNumeric(t *testing.T) {
	v := viper.New()
	v.Set("api.primary_key", "key")
	v.Set("db.url", "postgres://localhost/pvdata")
	v.Set("db.upsert_batch_size", 0)
	cfg := FromViper(v)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.upsert_batch_size")
}

func TestValidateSucceedsWithDefaults(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 500, cfg.DB.UpsertBatchSize)
	assert.Equal(t, 8, cfg.DB.WriteConcurrency)
	assert.Equal(t, 60, cfg.API.PrimaryConcurrency)
}

func TestValidateFailsOnOutOfRangeWriteConcurrency(t *testing.T) {
	v := viper.New()
	v.Set("api.primary_key", "key")
	v.Set("db.url", "postgres://localhost/pvdata")
	v.Set("db.write_concurrency", 0)
	cfg := FromViper(v)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.write_concurrency")
}

func TestLedgerPriorityOrder(t *testing.T) {
	cfg := validConfig()
	order := cfg.LedgerPriorityOrder()
	require.Len(t, order, 3)
	assert.Equal(t, "primary", string(order[0]))
	assert.Equal(t, "tertiary", string(order[1]))
	assert.Equal(t, "secondary", string(order[2]))
}
