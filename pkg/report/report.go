// Package report renders batch and evaluation summaries for the terminal.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/evaluate"
	"github.com/phenomenon0/puntaiq/pkg/pipeline"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	goodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// MaxRows caps the prediction rows rendered per sport.
const MaxRows = 10

// Batch renders a batch: per-sport predictions, then the accumulator
// buckets, then the stage timings.
func Batch(b *pipeline.Batch) string {
	sections := []string{headerStyle.Render(fmt.Sprintf("Batch %s", shortID(b.ID)))}

	sports := make([]core.Sport, 0, len(b.Predictions))
	for s := range b.Predictions {
		sports = append(sports, s)
	}
	sort.Slice(sports, func(i, j int) bool { return sports[i] < sports[j] })
	for _, s := range sports {
		sections = append(sections, predictionsBox(s, b.Predictions[s]))
	}

	if b.Catalog != nil {
		sections = append(sections, accumulatorsBox(b))
	}
	sections = append(sections, stagesBox(b.Stages))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func predictionsBox(sport core.Sport, preds []predict.Prediction) string {
	var content strings.Builder
	for i, p := range preds {
		if i == MaxRows {
			content.WriteString(dimStyle.Render(fmt.Sprintf("... %d more", len(preds)-MaxRows)))
			content.WriteString("\n")
			break
		}
		line := fmt.Sprintf("%-40s %-4s %5.1f%%", truncate(p.HomeTeam+" vs "+p.AwayTeam, 40), p.PredictedOutcome, p.Confidence)
		switch {
		case p.Degraded:
			line = dimStyle.Render(line + " degraded")
		case p.IsPremium:
			line = goodStyle.Render(line + " premium")
		}
		if p.ValueBet != nil {
			line += fmt.Sprintf(" value %s @ %.2f", p.ValueBet.Tier, p.ValueBet.Odds)
		}
		content.WriteString(line)
		content.WriteString("\n")
	}
	if len(preds) == 0 {
		content.WriteString(dimStyle.Render("no fixtures"))
	}

	title := titleStyle.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(string(sport)), len(preds)))
	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.TrimRight(content.String(), "\n")))
}

func accumulatorsBox(b *pipeline.Batch) string {
	buckets := b.Catalog.Buckets()
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)

	var content strings.Builder
	for _, name := range names {
		accs := buckets[name]
		if len(accs) == 0 {
			continue
		}
		best := accs[0]
		fmt.Fprintf(&content, "%-14s %3d  best %5.2fx @ %4.1f%%\n", name, len(accs), best.TotalOdds, best.Confidence)
	}
	if content.Len() == 0 {
		content.WriteString(dimStyle.Render("no accumulators"))
	}

	title := titleStyle.Render(fmt.Sprintf("ACCUMULATORS (%d)", b.Catalog.Count()))
	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.TrimRight(content.String(), "\n")))
}

func stagesBox(stages []pipeline.StageResult) string {
	var content strings.Builder
	for _, st := range stages {
		status := goodStyle.Render("OK")
		if !st.Success {
			status = badStyle.Render("FAILED")
		}
		fmt.Fprintf(&content, "%-11s %s %8.2fms", st.Stage, status, float64(st.Duration.Microseconds())/1000)
		if st.Error != "" {
			content.WriteString(" " + dimStyle.Render(st.Error))
		}
		content.WriteString("\n")
	}
	return borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("STAGES"), strings.TrimRight(content.String(), "\n")))
}

// Evaluation renders a settled evaluation report.
func Evaluation(r *evaluate.Report) string {
	var summary strings.Builder
	fmt.Fprintf(&summary, "Predictions: %d\n", r.Predictions)
	fmt.Fprintf(&summary, "Settled:     %d\n", r.Settled)
	fmt.Fprintf(&summary, "Unmatched:   %d\n", r.Unmatched)
	fmt.Fprintf(&summary, "Staked:      %s\n", r.Staked.StringFixed(2))
	fmt.Fprintf(&summary, "Returned:    %s\n", r.Returned.StringFixed(2))
	pl := fmt.Sprintf("P/L:         %s (ROI %s%%)", r.ProfitLoss.StringFixed(2), r.ROI.StringFixed(1))
	if r.ProfitLoss.IsNegative() {
		summary.WriteString(badStyle.Render(pl))
	} else {
		summary.WriteString(goodStyle.Render(pl))
	}

	sections := []string{
		headerStyle.Render("Evaluation"),
		borderStyle.Render(summary.String()),
	}

	if len(r.Markets) > 0 {
		var markets strings.Builder
		for _, ms := range r.Markets {
			fmt.Fprintf(&markets, "%-11s %-20s %4d/%-4d %5.1f%%", ms.Sport, ms.Market, ms.Hits, ms.Total, ms.HitRate*100)
			if ms.Voids > 0 {
				markets.WriteString(dimStyle.Render(fmt.Sprintf(" (%d void)", ms.Voids)))
			}
			markets.WriteString("\n")
		}
		sections = append(sections, borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("MARKETS"), strings.TrimRight(markets.String(), "\n"))))
	}

	if len(r.Accumulators) > 0 {
		accs := fmt.Sprintf("won %d  lost %d  pending %d",
			r.Accumulators[evaluate.AccumulatorWon],
			r.Accumulators[evaluate.AccumulatorLost],
			r.Accumulators[evaluate.AccumulatorPending])
		sections = append(sections, borderStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("ACCUMULATORS"), accs)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
