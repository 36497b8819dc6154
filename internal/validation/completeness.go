package validation

import (
	"math/rand"
	"sort"
	"time"

	"github.com/jeffconboy/StatEdge/internal/daterange"
	"github.com/jeffconboy/StatEdge/internal/models"
)

// Thresholds are the minimum completeness percentages that count as complete
type Thresholds struct {
	Date   float64 `json:"date"`
	Entity float64 `json:"entity"`
}

// DefaultThresholds returns 99.5 for dates and 95.0 for entities.
// Entity counts are filtered client-side and are noisier than date totals.
func DefaultThresholds() Thresholds {
	return Thresholds{Date: 99.5, Entity: 95.0}
}

// Completeness returns actual/expected as a percentage, 100 when nothing was expected
func Completeness(actual, expected int) float64 {
	if expected == 0 {
		return 100.0
	}
	return float64(actual) * 100.0 / float64(expected)
}

// Classify returns the completeness percentage and status for a comparison
func Classify(actual, expected int, threshold float64) (float64, models.ValidationStatus) {
	pct := Completeness(actual, expected)
	switch {
	case expected == 0:
		return pct, models.ValidationNoData
	case actual == 0:
		return pct, models.ValidationMissing
	case pct >= threshold:
		return pct, models.ValidationComplete
	default:
		return pct, models.ValidationIncomplete
	}
}

// PassRate returns the share of results that are complete or no-data, 100 for no results
func PassRate(results []models.ValidationResult) float64 {
	if len(results) == 0 {
		return 100.0
	}
	passed := 0
	for _, r := range results {
		if r.Status.Passed() {
			passed++
		}
	}
	return float64(passed) * 100.0 / float64(len(results))
}

// SampleDates picks up to n distinct dates from [start, end], returned ascending.
// When the range holds n dates or fewer, all of them are returned.
func SampleDates(rng *rand.Rand, start, end time.Time, n int) []time.Time {
	all := daterange.All(start, end)
	if n <= 0 {
		return nil
	}
	if n >= len(all) {
		return all
	}

	picked := rng.Perm(len(all))[:n]
	sort.Ints(picked)

	out := make([]time.Time, n)
	for i, idx := range picked {
		out[i] = all[idx]
	}
	return out
}
