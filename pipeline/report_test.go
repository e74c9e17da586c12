// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketraw/ingestd/model"
)

func TestRenderReportSkipped(t *testing.T) {
	report := &model.RunReport{RunID: "abc", Mode: "update", Skipped: true, SkipReason: "weekend"}
	out, err := RenderReport(report)
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped")
}

func TestRenderReportWithPhases(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	report := &model.RunReport{
		RunID: "xyz",
		Mode:  "update",
		Start: now.Add(-time.Minute),
		End:   now,
		Phases: []*model.PhaseSummary{
			{Phase: "price", Inputs: 100, Processed: 100, Succeeded: 95, Failed: 5, Elapsed: 2 * time.Second},
		},
	}
	out, err := RenderReport(report)
	require.NoError(t, err)
	assert.Contains(t, out, "Succeeded")
}
