package scraper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connecta/ingest-service/internal/scraper"
)

func fastFetcher(attempts int) *scraper.Fetcher {
	return scraper.NewFetcher(scraper.FetcherOptions{
		Timeout:     time.Second,
		MaxAttempts: attempts,
		RetryDelay:  time.Millisecond,
	})
}

func TestFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	body, err := fastFetcher(1).Get(context.Background(), srv.URL, "text/html")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(body))
}

func TestFetcher_RetriesTemporaryStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := fastFetcher(3).Get(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_DoesNotRetryPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fastFetcher(3).Get(context.Background(), srv.URL, "")
	var te *scraper.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.ErrorIs(t, err, scraper.ErrUnexpectedStatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetcher_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := fastFetcher(2).Get(context.Background(), srv.URL, "")
	var te *scraper.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := scraper.NewFetcher(scraper.FetcherOptions{MaxAttempts: 5, RetryDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx, srv.URL, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetcher_InvalidURL(t *testing.T) {
	_, err := fastFetcher(1).Get(context.Background(), "://nope", "")
	var te *scraper.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestFetcher_RejectsOversizedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(strings.Repeat("x", 65)))
	}))
	defer srv.Close()

	f := scraper.NewFetcher(scraper.FetcherOptions{Timeout: time.Second, MaxAttempts: 3, RetryDelay: time.Millisecond, MaxBodyBytes: 64})
	_, err := f.Get(context.Background(), srv.URL, "text/html")

	var te *scraper.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, scraper.ErrBodyTooLarge)
	assert.Equal(t, http.StatusOK, te.StatusCode)
	assert.Equal(t, int32(1), calls.Load(), "an oversized page is not retried")
}

func TestFetcher_BodyAtLimitIsAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := scraper.NewFetcher(scraper.FetcherOptions{Timeout: time.Second, MaxAttempts: 1, MaxBodyBytes: 64})
	body, err := f.Get(context.Background(), srv.URL, "text/html")
	require.NoError(t, err)
	assert.Len(t, body, 64)
}
