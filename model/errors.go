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
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets recognized by
// processors and the orchestrator. Kinds drive retry, fallback, and exit
// code decisions; they are not Go types, just a tag on ProviderError.
type Kind string

const (
	KindConfig      Kind = "config"
	KindTransport   Kind = "transport"
	KindThrottled   Kind = "throttled"
	KindNotFound    Kind = "not_found"
	KindAuth        Kind = "auth"
	KindParse       Kind = "parse"
	KindPersistence Kind = "persistence"
	KindInvariant   Kind = "invariant"
)

var (
	ErrProviderNotFound  = errors.New("model: provider not found")
	ErrCapabilityUnknown = errors.New("model: provider does not implement requested capability")
	ErrCanceled          = errors.New("model: operation canceled")
)

// ProviderError is the single error type returned across source-client
// boundaries. Fields identify exactly what failed so a caller can decide
// fallback without re-parsing a message string.
type ProviderError struct {
	Kind     Kind
	Provider string
	Endpoint string
	Symbol   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s: %s %s(%s): %v", e.Kind, e.Provider, e.Endpoint, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Provider, e.Endpoint, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Terminal reports whether this error should stop retry/fallback attempts
// against the issuing client rather than propagate to the next source.
func (e *ProviderError) Terminal() bool {
	switch e.Kind {
	case KindNotFound, KindAuth, KindConfig:
		return true
	default:
		return false
	}
}

func NewProviderError(kind Kind, provider, endpoint, symbol string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Endpoint: endpoint, Symbol: symbol, Err: err}
}

// PersistenceError wraps a repository failure scoped to one upsert chunk.
// It never unwinds a phase; the phase records it and continues.
type PersistenceError struct {
	Table      string
	ChunkIndex int
	RowCount   int
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s chunk %d (%d rows): %v", e.Table, e.ChunkIndex, e.RowCount, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// DataInvariantError marks a single row dropped by pre-insert validation.
// The row is logged and skipped; the phase continues.
type DataInvariantError struct {
	Table  string
	Symbol string
	Reason string
}

func (e *DataInvariantError) Error() string {
	return fmt.Sprintf("invariant: %s %s: %s", e.Table, e.Symbol, e.Reason)
}

// ConfigError is fatal at startup; callers should exit 2.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}
