package objectstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	rhttp "github.com/hashicorp/go-retryablehttp"
)

// HTTPRangeReader reads ranges from objects served over plain HTTP,
// composing baseURL and key into a single GET with a Range header. It
// does not issue multi-range requests: only one [offset, offset+length)
// span is fetched per call, matching the single-range contract every
// other RangeReader implementation follows.
type HTTPRangeReader struct {
	client  *rhttp.Client
	baseURL string
}

// HTTPRangeReaderConfig tunes the underlying retryable client. Zero
// values fall back to sane defaults.
type HTTPRangeReaderConfig struct {
	MaxRetries  int
	MinWait     time.Duration
	MaxWait     time.Duration
	DialTimeout time.Duration
	Timeout     time.Duration
}

// NewHTTPRangeReader builds an HTTPRangeReader against baseURL (keys
// are joined onto it as-is, so baseURL should end in "/" when keys are
// relative paths).
func NewHTTPRangeReader(baseURL string, cfg HTTPRangeReaderConfig) *HTTPRangeReader {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = 500 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	client := rhttp.NewClient()
	client.Logger = nil
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = cfg.MinWait
	client.RetryWaitMax = cfg.MaxWait
	client.CheckRetry = checkRetryRangeRequest
	client.HTTPClient.Timeout = cfg.Timeout
	if t, ok := client.HTTPClient.Transport.(*http.Transport); ok {
		t.DialContext = (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext
		t.ForceAttemptHTTP2 = true
	}

	return &HTTPRangeReader{client: client, baseURL: strings.TrimSuffix(baseURL, "/") + "/"}
}

// checkRetryRangeRequest extends retryablehttp's default policy with
// the range-fetch classification from §4.B: a 200 on a ranged request
// means the server ignored Range and must be retried as if transient
// (the body is the whole object, not the slice asked for); 404 is
// terminal and must not retry; everything DefaultRetryPolicy already
// retries (429, 5xx, connection errors) keeps retrying.
func checkRetryRangeRequest(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return false, nil
		case http.StatusOK:
			return true, nil
		}
	}
	return rhttp.DefaultRetryPolicy(ctx, resp, err)
}

// ReadRange implements RangeReader.
func (r *HTTPRangeReader) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	url := r.baseURL + strings.TrimPrefix(key, "/")
	req, err := rhttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: building request: %w", err)
	}
	req.Header.Set("Range", rangeHeader(offset, length))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &StatusError{Key: key, Status: 0, Err: err}
	}
	defer resp.Body.Close()

	if retry, terminal := classifyHTTPStatus(resp.StatusCode); terminal || retry {
		return nil, &StatusError{Key: key, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return io.ReadAll(resp.Body)
}
