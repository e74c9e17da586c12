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

// Package ratelimit implements the adaptive per-provider concurrency
// limiter: a weighted semaphore whose ceiling widens on sustained success
// and halves (with an exponential cooldown) on throttle, paced by a
// token-bucket so the ceiling also bounds steady-state request rate, the
// way every provider client in the teacher stack paced its own calls
// through a golang.org/x/time/rate.Limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	cooldownBase   = 1 * time.Second
	cooldownFactor = 2
	cooldownCap    = 5 * time.Minute
)

// Limiter bounds concurrent in-flight requests to one provider (or the
// Repository write target) and adapts the ceiling to observed success and
// throttle signals. The Acquire -> request -> Report* -> Release sequence
// is mandatory on every call path; AcquireScoped returns a release func
// bound with defer so no caller can forget it.
type Limiter struct {
	mu sync.Mutex

	sem     *semaphore.Weighted
	pace    *rate.Limiter
	ceiling int64
	floor   int64
	max     int64

	consecutiveThrottles int
	cooldownUntil        time.Time
}

// New builds a Limiter whose ceiling starts at max and never falls below
// floor (default 1 if floor <= 0). A token-bucket paces requests within
// that ceiling at one token per permit per second, so a caller that holds
// every concurrency slot still can't burst past the ceiling's steady-state
// request rate.
func New(max int, floor int) *Limiter {
	if floor <= 0 {
		floor = 1
	}
	if max < floor {
		max = floor
	}
	return &Limiter{
		sem:     semaphore.NewWeighted(int64(max)),
		pace:    rate.NewLimiter(rate.Limit(max), max),
		ceiling: int64(max),
		floor:   int64(floor),
		max:     int64(max),
	}
}

// Acquire blocks until a slot is free and the pacing bucket has a token,
// or ctx is canceled.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.pace.Wait(ctx); err != nil {
		return err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	return nil
}

// Release returns a slot.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// AcquireScoped acquires a slot and returns a release function meant to
// be deferred, guaranteeing Release runs on every exit path including
// panics and early returns.
func (l *Limiter) AcquireScoped(ctx context.Context) (func(), error) {
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(l.Release) }, nil
}

// ReportSuccess widens the permit ceiling toward max once any active
// cooldown has elapsed. Widening is additive by one permit per call to
// avoid oscillation.
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveThrottles = 0

	if !l.cooldownUntil.IsZero() && time.Now().Before(l.cooldownUntil) {
		return
	}
	if l.ceiling < l.max {
		l.sem.Release(1)
		l.ceiling++
		l.pace.SetLimit(rate.Limit(l.ceiling))
	}
}

// ReportThrottle halves the current ceiling (never below floor) and
// schedules a cooldown proportional to the consecutive-throttle streak,
// exponential with a cap.
func (l *Limiter) ReportThrottle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consecutiveThrottles++

	newCeiling := l.ceiling / 2
	if newCeiling < l.floor {
		newCeiling = l.floor
	}
	if newCeiling < l.ceiling {
		delta := l.ceiling - newCeiling
		// Best-effort: acquire the withdrawn permits without blocking so
		// outstanding holders simply return them normally later.
		l.sem.TryAcquire(delta)
		l.ceiling = newCeiling
		l.pace.SetLimit(rate.Limit(l.ceiling))
	}

	cooldown := cooldownBase * time.Duration(1<<uint(l.consecutiveThrottles-1))
	if cooldown > cooldownCap {
		cooldown = cooldownCap
	}
	l.cooldownUntil = time.Now().Add(cooldown)
}

// Ceiling returns the current permit ceiling, useful for sizing worker
// pools per §5 ("pool size is the corresponding provider's permit
// ceiling").
func (l *Limiter) Ceiling() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.ceiling)
}
