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

// Package healthcheck pings a healthchecks.io-style check URL at run
// start, success, and failure so an external monitor can page on a
// missed or failed ingestion run.
package healthcheck

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var ErrStatus = errors.New("healthcheck: unexpected status code")

// Pinger posts run lifecycle events to a configured check URL. A zero
// value Pinger (empty baseURL) is a no-op, so wiring it into the
// Orchestrator is optional.
type Pinger struct {
	baseURL string
	client  *resty.Client
}

func New(checkURL string) *Pinger {
	return &Pinger{baseURL: strings.TrimRight(checkURL, "/"), client: resty.New()}
}

// Start pings the /start endpoint, signaling the run has begun.
func (p *Pinger) Start() error { return p.ping("/start") }

// Success pings the bare check URL with no suffix, the healthchecks.io
// convention for "completed without error".
func (p *Pinger) Success() error { return p.ping("") }

// Fail pings the /fail endpoint with reason as the request body.
func (p *Pinger) Fail(reason string) error { return p.pingWithBody("/fail", reason) }

func (p *Pinger) ping(suffix string) error {
	return p.pingWithBody(suffix, "")
}

func (p *Pinger) pingWithBody(suffix, body string) error {
	if p.baseURL == "" {
		return nil
	}

	resp, err := p.client.R().SetBody(body).Post(p.baseURL + suffix)
	if err != nil {
		log.Warn().Err(err).Str("url", p.baseURL+suffix).Msg("healthcheck ping failed")
		return err
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}
	return nil
}
