package client

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeffconboy/StatEdge/internal/metrics"
	"github.com/jeffconboy/StatEdge/internal/models"
)

const searchEndpoint = "statcast_search/csv"

var (
	// ErrTransient marks failures worth retrying: timeouts, network errors,
	// rate limiting, server errors and truncated responses
	ErrTransient = errors.New("transient upstream failure")

	// ErrUnavailable marks failures that will not resolve by retrying
	ErrUnavailable = errors.New("upstream unavailable")
)

// IsRetryable reports whether err is a transient upstream failure
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// SavantClient is the Baseball Savant Statcast search client.
// Each call makes exactly one request; retry policy belongs to the caller.
type SavantClient struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	rateLimiter chan struct{} // Rate limiting semaphore
}

// NewSavantClient creates a client allowing at most maxConcurrent requests in flight
func NewSavantClient(baseURL, userAgent string, timeout time.Duration, maxConcurrent int) *SavantClient {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	rateLimiter := make(chan struct{}, maxConcurrent)
	for i := 0; i < maxConcurrent; i++ {
		rateLimiter <- struct{}{}
	}

	return &SavantClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		userAgent:   userAgent,
		rateLimiter: rateLimiter,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: maxConcurrent,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchEventsForDate returns every pitch Savant has for one calendar date.
// An off day (empty or header-only CSV) returns nil, nil.
func (c *SavantClient) FetchEventsForDate(ctx context.Context, date time.Time) ([]models.RawRecord, error) {
	day := date.Format(models.DateLayout)

	body, err := c.get(ctx, searchEndpoint, searchParams(day))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch statcast for %s: %w", day, err)
	}

	records, err := parseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse statcast for %s: %w", day, err)
	}

	log.Debug().
		Str("date", day).
		Int("records", len(records)).
		Msg("Fetched statcast records")

	return records, nil
}

// searchParams mirrors the query the Savant search page issues for a
// pitch-level export of a single day
func searchParams(day string) map[string]string {
	return map[string]string{
		"all":               "true",
		"type":              "details",
		"player_type":       "pitcher",
		"hfGT":              "R|PO|S|",
		"hfSea":             "",
		"game_date_gt":      day,
		"game_date_lt":      day,
		"min_pitches":       "0",
		"min_results":       "0",
		"min_abs":           "0",
		"group_by":          "name",
		"sort_col":          "pitches",
		"sort_order":        "desc",
		"player_event_sort": "api_p_release_speed",
	}
}

// get performs one GET request with rate limiting and classifies the outcome
func (c *SavantClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, path)

	// Rate limiting: acquire semaphore
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.rateLimiter:
		defer func() { c.rateLimiter <- struct{}{} }()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUnavailable, err)
	}

	req.Header.Set("Accept", "text/csv")
	req.Header.Set("User-Agent", c.userAgent)

	if len(params) > 0 {
		q := req.URL.Query()
		for key, value := range params {
			q.Add(key, value)
		}
		req.URL.RawQuery = q.Encode()
	}

	log.Debug().
		Str("url", url).
		Str("date", params["game_date_gt"]).
		Msg("Making API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall(path, "error", time.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: API request failed: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(path, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if looksLikeHTML(resp.Header.Get("Content-Type"), body) {
			return nil, fmt.Errorf("%w: expected CSV, got %s", ErrUnavailable, resp.Header.Get("Content-Type"))
		}
		log.Debug().
			Str("url", url).
			Int("status", resp.StatusCode).
			Int("size", len(body)).
			Msg("API request successful")
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		log.Warn().
			Str("url", url).
			Int("status", resp.StatusCode).
			Msg("Received retryable status")
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrTransient, resp.StatusCode, snippet(body))

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: API access denied (status %d): %s", ErrUnavailable, resp.StatusCode, snippet(body))

	default:
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrUnavailable, resp.StatusCode, snippet(body))
	}
}

// parseCSV maps each data row onto the header. A malformed or truncated body
// is transient: Savant cuts long exports off mid-row under load.
func parseCSV(body []byte) ([]models.RawRecord, error) {
	body = bytes.TrimPrefix(body, []byte("\ufeff"))
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bad CSV header: %v", ErrTransient, err)
	}
	columns := uniqueColumns(header)

	var records []models.RawRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: bad CSV row %d: %v", ErrTransient, len(records)+1, err)
		}

		rec := make(models.RawRecord, len(columns))
		for i, col := range columns {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

// uniqueColumns trims header names and suffixes repeats (the export lists
// "pitcher" and "fielder_2" twice) so no column overwrites another
func uniqueColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if n := seen[name]; n > 0 {
			columns[i] = fmt.Sprintf("%s.%d", name, n)
		} else {
			columns[i] = name
		}
		seen[name]++
	}
	return columns
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
