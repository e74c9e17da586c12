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
package pipeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/xeonx/timeago"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/marketraw/ingestd/model"
)

var degradedBanner = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("203")).
	Render

// RenderReport builds the Markdown summary for report and renders it
// for a terminal via glamour, the ambient-stack carry from the
// teacher's library.Summary.
func RenderReport(report *model.RunReport) (string, error) {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", report.RunID)
	fmt.Fprintf(&b, "Mode: %s\n\n", report.Mode)

	if report.Skipped {
		fmt.Fprintf(&b, "**Skipped**: %s\n", report.SkipReason)
		return glamour.Render(b.String(), "dark")
	}
	if report.FatalErr != "" {
		fmt.Fprintf(&b, "**Fatal error**: %s\n", report.FatalErr)
		return glamour.Render(b.String(), "dark")
	}

	age := timeago.English.Format(report.End)
	b.WriteString(p.Sprintf("Finished %s, elapsed %s\n\n", age, report.Elapsed().Round(1)))

	titleCase := cases.Title(language.English)

	b.WriteString("## Phases\n\n")
	for _, phase := range report.Phases {
		b.WriteString(p.Sprintf("### %s\n\n", titleCase.String(phase.Phase)))
		b.WriteString(p.Sprintf("  * Inputs: %d\n", phase.Inputs))
		b.WriteString(p.Sprintf("  * Skipped (staleness): %d\n", phase.SkippedStaleness))
		b.WriteString(p.Sprintf("  * Skipped (ledger): %d\n", phase.SkippedLedger))
		b.WriteString(p.Sprintf("  * Processed: %d\n", phase.Processed))
		b.WriteString(p.Sprintf("  * Succeeded: %d\n", phase.Succeeded))
		b.WriteString(p.Sprintf("  * Failed: %d (%.1f%%)\n", phase.Failed, phase.FailureRate()*100))
		b.WriteString(p.Sprintf("  * Elapsed: %s\n\n", phase.Elapsed.Round(1)))
	}

	rendered, err := glamour.Render(b.String(), "dark")
	if err != nil {
		return "", err
	}

	if report.Degraded {
		rendered += "\n" + degradedBanner("DEGRADED: at least one phase exceeded its failure-rate threshold")
	}

	return rendered, nil
}
