// Package daterange computes which calendar dates of a season still need collecting.
package daterange

import (
	"time"

	"github.com/jeffconboy/StatEdge/internal/models"
	"github.com/jeffconboy/StatEdge/internal/normalize"
)

// Default season window: spring training through the end of the postseason
const (
	openMonth  = time.March
	openDay    = 15
	closeMonth = time.November
	closeDay   = 15
)

// SeasonBounds returns the default first and last calendar dates of a season
func SeasonBounds(season int) (start, end time.Time) {
	start = time.Date(season, openMonth, openDay, 0, 0, 0, 0, time.UTC)
	end = time.Date(season, closeMonth, closeDay, 0, 0, 0, 0, time.UTC)
	return start, end
}

// CurrentSeason returns the season in play on today. Before this year's
// season opens, that is still last year's season.
func CurrentSeason(today time.Time) int {
	year := today.Year()
	if open, _ := SeasonBounds(year); normalize.Day(today).Before(open) {
		return year - 1
	}
	return year
}

// Key formats a date the way checkpoints and reports store it
func Key(t time.Time) string {
	return t.Format(models.DateLayout)
}

// Cap returns the earlier of end and today, both truncated to calendar dates
func Cap(end, today time.Time) time.Time {
	end, today = normalize.Day(end), normalize.Day(today)
	if today.Before(end) {
		return today
	}
	return end
}

// Remaining lists every date from start through min(end, today) in ascending
// order, skipping dates whose key is in completed. Failed dates are not in
// completed and are therefore scheduled again.
func Remaining(start, end, today time.Time, completed map[string]bool) []time.Time {
	start = normalize.Day(start)
	last := Cap(end, today)

	dates := []time.Time{}
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		if completed[Key(d)] {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// All lists every date from start through end inclusive
func All(start, end time.Time) []time.Time {
	return Remaining(start, end, end, nil)
}

// Batches splits dates into consecutive groups of at most size dates
func Batches(dates []time.Time, size int) [][]time.Time {
	if size < 1 {
		size = 1
	}
	batches := make([][]time.Time, 0, (len(dates)+size-1)/size)
	for len(dates) > 0 {
		n := size
		if n > len(dates) {
			n = len(dates)
		}
		batches = append(batches, dates[:n:n])
		dates = dates[n:]
	}
	return batches
}
