package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 4 << 20
	userAgent           = "Mozilla/5.0 (compatible; ConnectaGigBot/1.0; +https://connecta.app/bot)"
)

// FetcherOptions configures a Fetcher. Zero values select defaults.
type FetcherOptions struct {
	Timeout           time.Duration // per request
	RequestsPerSecond float64       // per host
	MaxAttempts       int
	RetryDelay        time.Duration // doubled after each failed attempt
	MaxBodyBytes      int64
}

// Fetcher is an HTTP client with per-host rate limiting and retries.
type Fetcher struct {
	client       *http.Client
	limit        rate.Limit
	maxAttempts  int
	retryDelay   time.Duration
	maxBodyBytes int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher constructs a Fetcher with a shared HTTP client.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Fetcher{
		client:       &http.Client{Timeout: opts.Timeout},
		limit:        limit,
		maxAttempts:  opts.MaxAttempts,
		retryDelay:   opts.RetryDelay,
		maxBodyBytes: opts.MaxBodyBytes,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// Get fetches rawURL and returns the body of a 200 response. Transport
// failures and 408/429/503/504 responses are retried with exponential
// backoff; every failure is returned as a *TransportError.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}
	limiter := f.limiterFor(u.Host)

	var lastErr *TransportError
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.retryDelay << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, &TransportError{URL: rawURL, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, &TransportError{URL: rawURL, Err: err}
		}

		body, status, err := f.do(ctx, rawURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = &TransportError{URL: rawURL, StatusCode: status, Err: err}

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if status != 0 && !isRetryableStatus(status) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (f *Fetcher) do(ctx context.Context, rawURL, accept string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, resp.StatusCode, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.maxBodyBytes)
	}
	return body, resp.StatusCode, nil
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.limit, 1)
		f.limiters[host] = l
	}
	return l
}

// isRetryableStatus reports temporary failures worth another attempt.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
