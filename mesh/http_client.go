package mesh

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultFetchTimeout is the default HTTP request timeout for map fetches.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts.
	DefaultMaxRetries = 3

	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps response bodies and inflated payloads at 50 MB.
	maxResponseBytes = 50 << 20
)

// FetchOption configures FetchMap.
type FetchOption func(*fetcher)

type fetcher struct {
	timeout     time.Duration
	attempts    int
	baseBackoff time.Duration
	client      *http.Client
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(f *fetcher) { f.timeout = d }
}

// WithMaxRetries sets the number of attempts.
func WithMaxRetries(n int) FetchOption {
	return func(f *fetcher) { f.attempts = n }
}

// WithBaseBackoff sets the first retry delay. Later delays double.
func WithBaseBackoff(d time.Duration) FetchOption {
	return func(f *fetcher) { f.baseBackoff = d }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) FetchOption {
	return func(f *fetcher) { f.client = client }
}

// FetchMap downloads a map from a Valetudo API endpoint such as
// http://robot.local/api/v2/robot/state/map. Transport errors and non-200
// responses are retried with exponential backoff; decode errors are not.
func FetchMap(ctx context.Context, apiURL string, opts ...FetchOption) (*ValetudoMap, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("fetch map: API URL is empty")
	}

	f := fetcher{
		timeout:     DefaultFetchTimeout,
		attempts:    DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(&f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	if f.attempts < 1 {
		f.attempts = 1
	}

	var lastErr error
	delay := f.baseBackoff
	for attempt := 0; attempt < f.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch map: %w", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		body, err := f.get(ctx, apiURL)
		if err != nil {
			lastErr = err
			continue
		}
		m, err := DecodeMapData(body)
		if err != nil {
			return nil, fmt.Errorf("fetch map: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("fetch map: all %d attempts failed: %w", f.attempts, lastErr)
}

func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}
