package handlers

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"blogwire/internal/pipeline"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	publishedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	skippedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// renderCycleReport prints one line per candidate followed by a summary box.
func renderCycleReport(w io.Writer, result *pipeline.CycleResult) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Publication cycle " + shortID(result.RunID)))
	b.WriteString("\n\n")

	if len(result.Outcomes) == 0 {
		b.WriteString(mutedStyle.Render("No candidates: nothing pending and no fallback keywords"))
		b.WriteString("\n")
	}
	for _, o := range result.Outcomes {
		b.WriteString(renderOutcome(&o))
		b.WriteString("\n")
	}

	summary := fmt.Sprintf("Published: %d  Skipped: %d", len(result.Published), result.Skipped())
	if result.Discovered > 0 {
		summary += fmt.Sprintf("  Discovered: %d", result.Discovered)
	}
	if reasons := formatSkipCounts(result.SkipCounts); reasons != "" {
		summary += "\n" + mutedStyle.Render(reasons)
	}
	if !result.FinishedAt.IsZero() {
		summary += "\n" + mutedStyle.Render("Took "+result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String())
	}
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(summary))
	b.WriteString("\n")

	fmt.Fprint(w, b.String())
}

func renderOutcome(o *pipeline.Outcome) string {
	if o.Success() {
		return publishedStyle.Render("✓ ") + o.Message()
	}
	return skippedStyle.Render("✗ ") + o.Message()
}

func formatSkipCounts(counts map[string]int) string {
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	parts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		parts = append(parts, fmt.Sprintf("%s=%d", r, counts[r]))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
