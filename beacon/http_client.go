package beacon

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for report fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxReportBytes limits the response body to 16 MB.
	maxReportBytes = 16 << 20
)

// FetchOption configures FetchReportFromAPI behavior.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout:     DefaultFetchTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.maxRetries = n }
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.baseBackoff = d }
}

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// FetchReportFromAPI fetches a scanner's report text from its HTTP endpoint
// and parses the single expected block. Transient failures (network errors
// and 5xx responses) are retried with exponential backoff; 4xx responses and
// parse failures are not.
func FetchReportFromAPI(url string, opts ...FetchOption) (*Scanner, error) {
	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, float64(attempt-1)))
			time.Sleep(backoff)
		}

		scanner, retryable, err := fetchOnce(client, url, cfg.timeout)
		if err == nil {
			return scanner, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("fetching report after %d attempts: %w", cfg.maxRetries+1, lastErr)
}

func fetchOnce(client *http.Client, url string, timeout time.Duration) (*Scanner, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, true, fmt.Errorf("server error %d from %s", resp.StatusCode, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxReportBytes {
		return nil, false, fmt.Errorf("report exceeds %d bytes", maxReportBytes)
	}

	scanner, err := ParseSingleReport(string(body))
	if err != nil {
		return nil, false, err
	}
	return scanner, false, nil
}
