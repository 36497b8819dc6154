// Package report assembles the validation report, the one artifact a run
// leaves behind for downstream consumers.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jeffconboy/StatEdge/internal/checkpoint"
	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/models"
	"github.com/jeffconboy/StatEdge/internal/validation"
)

// Status is the overall verdict of a run
type Status string

const (
	StatusComplete   Status = "COMPLETE"
	StatusIncomplete Status = "INCOMPLETE"
)

// DateRange is the season window that was collected and validated
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Report is the validation report written at the end of every run
type Report struct {
	RunID              string                    `json:"runId"`
	Season             int                       `json:"season"`
	GeneratedAt        time.Time                 `json:"generatedAt"`
	DateRange          DateRange                 `json:"dateRange"`
	Status             Status                    `json:"status"`
	StoreTotals        models.StoreTotals        `json:"storeTotals"`
	Collection         *models.RunStats          `json:"collection,omitempty"`
	SampleCompleteness float64                   `json:"sampleCompleteness"`
	EntityCompleteness float64                   `json:"entityCompleteness"`
	Thresholds         validation.Thresholds     `json:"thresholds"`
	DateValidation     []models.ValidationResult `json:"dateValidation"`
	EntityValidation   []models.ValidationResult `json:"entityValidation"`
	Issues             []string                  `json:"issues"`
}

// Input carries everything a report is built from. Collection is nil for
// validate-only runs.
type Input struct {
	Season      int
	Start, End  time.Time
	Totals      models.StoreTotals
	Collection  *models.RunStats
	Dates       []models.ValidationResult
	Entities    []models.ValidationResult
	Thresholds  validation.Thresholds
	GeneratedAt time.Time
}

// Build computes pass rates, the overall status and the issue list
func Build(in Input) *Report {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}

	samplePct := validation.PassRate(in.Dates)
	entityPct := validation.PassRate(in.Entities)

	r := &Report{
		RunID:       uuid.NewString(),
		Season:      in.Season,
		GeneratedAt: in.GeneratedAt,
		DateRange: DateRange{
			Start: daterange.Key(in.Start),
			End:   daterange.Key(in.End),
		},
		StoreTotals:        in.Totals,
		Collection:         in.Collection,
		SampleCompleteness: round1(samplePct),
		EntityCompleteness: round1(entityPct),
		Thresholds:         in.Thresholds,
		DateValidation:     nonNil(in.Dates),
		EntityValidation:   nonNil(in.Entities),
		Issues:             []string{},
	}

	for _, res := range in.Dates {
		if !res.Status.Passed() {
			r.Issues = append(r.Issues, fmt.Sprintf("Date %s: %s", res.SubjectKey, describe(res)))
		}
	}
	for _, res := range in.Entities {
		if !res.Status.Passed() {
			r.Issues = append(r.Issues, fmt.Sprintf("Batter %s (%s): %s", res.SubjectName, res.SubjectKey, describe(res)))
		}
	}

	collectionFailed := false
	if c := in.Collection; c != nil {
		for _, d := range c.FailedDates {
			r.Issues = append(r.Issues, fmt.Sprintf("Collection failed for %s", d))
		}
		for _, d := range c.Dropped {
			r.Issues = append(r.Issues, fmt.Sprintf("Dropped record %d on %s: %s", d.Index, d.Date, d.Reason))
		}
		if c.Cancelled {
			r.Issues = append(r.Issues, fmt.Sprintf("Collection interrupted: %d dates left for the next run", c.Interrupted))
		}
		collectionFailed = len(c.FailedDates) > 0
	}

	r.Status = StatusIncomplete
	if samplePct >= in.Thresholds.Date &&
		entityPct >= in.Thresholds.Entity &&
		!collectionFailed {
		r.Status = StatusComplete
	}

	return r
}

// FileName returns the report file name for a season
func FileName(season int) string {
	return fmt.Sprintf("season_%d_validation_report.json", season)
}

// Write stores the report as JSON in dir, replacing any earlier report for the season
func (r *Report) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	path := filepath.Join(dir, FileName(r.Season))
	if err := checkpoint.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ExitCode maps the status onto the process exit status
func (r *Report) ExitCode() int {
	if r.Status == StatusComplete {
		return 0
	}
	return 1
}

func describe(res models.ValidationResult) string {
	switch {
	case res.Error != "":
		return "error: " + res.Error
	case res.Message != "":
		return res.Message
	default:
		return string(res.Status)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func nonNil(results []models.ValidationResult) []models.ValidationResult {
	if results == nil {
		return []models.ValidationResult{}
	}
	return results
}
