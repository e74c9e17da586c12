// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	l := New(2, 1)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block while ceiling is 2")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
	l.Release()
	l.Release()
}

func TestAcquireScopedReleasesOnlyOnce(t *testing.T) {
	l := New(1, 1)
	ctx := context.Background()

	release, err := l.AcquireScoped(ctx)
	require.NoError(t, err)
	release()
	release() // second call must be a no-op, not a double-release panic

	require.NoError(t, l.Acquire(ctx))
	l.Release()
}

func TestReportThrottleHalvesCeiling(t *testing.T) {
	l := New(8, 1)
	assert.Equal(t, 8, l.Ceiling())

	l.ReportThrottle()
	assert.Equal(t, 4, l.Ceiling())

	l.ReportThrottle()
	assert.Equal(t, 2, l.Ceiling())
}

func TestReportThrottleNeverGoesBelowFloor(t *testing.T) {
	l := New(2, 2)
	l.ReportThrottle()
	assert.Equal(t, 2, l.Ceiling())
}

func TestReportSuccessWidensTowardMax(t *testing.T) {
	l := New(4, 1)
	l.ReportThrottle() // ceiling -> 2, cooldown scheduled
	l.cooldownUntil = time.Now().Add(-time.Second) // force cooldown elapsed for the test

	l.ReportSuccess()
	assert.Equal(t, 3, l.Ceiling())
}

func TestCancelContextFailsAcquire(t *testing.T) {
	l := New(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx))
	cancel()

	err := l.Acquire(ctx)
	assert.Error(t, err)
	l.Release()
}
