package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoPitches = "\ufeffpitch_type,game_date,release_speed,batter,pitcher,events,game_pk,pitcher,at_bat_number,pitch_number,inning\n" +
	"FF,2025-04-02,96.4,592450,669203,home_run,778123,669203,17,3,4\n" +
	"SL,2025-04-02,86.1,545361,669203,,778123,669203,18,1,4\n"

var april2 = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.HandlerFunc) *SavantClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewSavantClient(srv.URL, "StatEdge-Test/1.0", 5*time.Second, 2)
}

func TestFetchEventsForDate_ParsesRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/statcast_search/csv", r.URL.Path)
		assert.Equal(t, "2025-04-02", r.URL.Query().Get("game_date_gt"))
		assert.Equal(t, "2025-04-02", r.URL.Query().Get("game_date_lt"))
		assert.Equal(t, "details", r.URL.Query().Get("type"))
		assert.Equal(t, "true", r.URL.Query().Get("all"))
		assert.Equal(t, "StatEdge-Test/1.0", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(twoPitches))
	})

	records, err := c.FetchEventsForDate(context.Background(), april2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "FF", first["pitch_type"], "BOM must be stripped from the first header")
	assert.Equal(t, "592450", first["batter"])
	assert.Equal(t, "669203", first["pitcher.1"], "repeated columns are kept under a suffix")
	assert.Equal(t, "", records[1]["events"])
}

func TestFetchEventsForDate_OffDay(t *testing.T) {
	for name, body := range map[string]string{
		"empty":       "",
		"header only": "pitch_type,game_date,batter\n",
		"bom only":    "\ufeff",
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			records, err := c.FetchEventsForDate(context.Background(), april2)
			require.NoError(t, err)
			assert.Nil(t, records)
		})
	}
}

func TestFetchEventsForDate_Classification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		ctype     string
		body      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, "text/plain", "slow down", true},
		{"server error", http.StatusInternalServerError, "text/plain", "oops", true},
		{"bad gateway", http.StatusBadGateway, "text/plain", "", true},
		{"truncated csv", http.StatusOK, "text/csv", "a,b,c\n1,2,3\n4,5\n", true},
		{"forbidden", http.StatusForbidden, "text/plain", "no", false},
		{"bad request", http.StatusBadRequest, "text/plain", "bad", false},
		{"html page", http.StatusOK, "text/html; charset=utf-8", "<html>maintenance</html>", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.ctype)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.FetchEventsForDate(context.Background(), april2)
			require.Error(t, err)
			assert.Equal(t, tc.retryable, IsRetryable(err))
			if !tc.retryable {
				assert.ErrorIs(t, err, ErrUnavailable)
			}
		})
	}
}

func TestFetchEventsForDate_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewSavantClient(url, "t", time.Second, 1)
	_, err := c.FetchEventsForDate(context.Background(), april2)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestFetchEventsForDate_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoPitches))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchEventsForDate(ctx, april2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsRetryable(err))
}

func TestFetchEventsForDate_LimitsConcurrency(t *testing.T) {
	var inFlight, peak int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = c.FetchEventsForDate(context.Background(), april2)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
