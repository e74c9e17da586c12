// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package healthcheck

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPingerNoopOnEmptyURL(t *testing.T) {
	p := New("")
	require.NoError(t, p.Start())
	require.NoError(t, p.Success())
	require.NoError(t, p.Fail("boom"))
}

func TestPingerHitsStartSuccessFailPaths(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL)
	require.NoError(t, p.Start())
	require.NoError(t, p.Success())
	require.NoError(t, p.Fail("boom"))

	assert.Equal(t, []string{"/start", "/", "/fail"}, hits)
}

func TestPingerErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(srv.URL)
	err := p.Start()
	assert.ErrorIs(t, err, ErrStatus)
}
