package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jeffconboy/StatEdge/internal/models"
)

// maxRenderedIssues bounds the issue list printed to the terminal; the file keeps all of them
const maxRenderedIssues = 10

// Render prints a summary of the report
func (r *Report) Render(w io.Writer) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle(fmt.Sprintf("Season %d validation (%s..%s)", r.Season, r.DateRange.Start, r.DateRange.End))
	summary.AppendRows([]table.Row{
		{"Status", r.Status},
		{"Stored pitches", r.StoreTotals.Records},
		{"Games", r.StoreTotals.Games},
		{"Batters / pitchers", fmt.Sprintf("%d / %d", r.StoreTotals.Batters, r.StoreTotals.Pitchers)},
		{"Dates with data", r.StoreTotals.DatesWithData},
		{"Sample completeness", fmt.Sprintf("%.1f%% (threshold %.1f%%)", r.SampleCompleteness, r.Thresholds.Date)},
		{"Entity completeness", fmt.Sprintf("%.1f%% (threshold %.1f%%)", r.EntityCompleteness, r.Thresholds.Entity)},
	})
	if c := r.Collection; c != nil {
		summary.AppendRows([]table.Row{
			{"Dates committed / failed", fmt.Sprintf("%d / %d", c.Committed, c.Failed)},
			{"Records upserted", c.RecordsUpserted},
			{"Records dropped", len(c.Dropped)},
		})
	}
	summary.Render()

	if len(r.DateValidation)+len(r.EntityValidation) > 0 {
		results := table.NewWriter()
		results.SetOutputMirror(w)
		results.AppendHeader(table.Row{"Kind", "Subject", "Expected", "Actual", "Completeness", "Status"})
		for _, res := range r.DateValidation {
			results.AppendRow(resultRow(res))
		}
		for _, res := range r.EntityValidation {
			results.AppendRow(resultRow(res))
		}
		results.Render()
	}

	if len(r.Issues) > 0 {
		fmt.Fprintf(w, "%d issues:\n", len(r.Issues))
		for i, issue := range r.Issues {
			if i == maxRenderedIssues {
				fmt.Fprintf(w, "  ... and %d more\n", len(r.Issues)-maxRenderedIssues)
				break
			}
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	}
}

func resultRow(res models.ValidationResult) table.Row {
	subject := res.SubjectKey
	if res.SubjectName != "" {
		subject = res.SubjectName
	}
	return table.Row{res.Kind, subject, res.ExpectedCount, res.ActualCount, fmt.Sprintf("%.1f%%", res.CompletenessPct), res.Status}
}
