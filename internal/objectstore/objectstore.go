// Package objectstore provides a single RangeReader abstraction for
// reading a byte span out of a large remote object, backed by either
// anonymous S3 GetObject calls or plain HTTP range GETs. RangeFetcher
// (internal/fetch) and IndexResolver's range downloads are both built
// against this interface so the backend can be swapped per archive
// mirror without touching the retry/worker-pool plumbing.
package objectstore

import (
	"context"
	"fmt"
	"net/http"
)

// RangeReader fetches the byte span [offset, offset+length) of a named
// object and returns its raw bytes.
type RangeReader interface {
	ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error)
}

// StatusError carries the HTTP (or HTTP-equivalent S3) status code of
// a failed range request, so callers can apply the classification
// table from the retry policy without re-parsing error strings.
type StatusError struct {
	Key    string
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("objectstore: %s: status %d: %v", e.Key, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// rangeHeader formats the standard single-range Range header value.
func rangeHeader(offset, length int64) string {
	return fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
}

// classifyHTTPStatus maps a response status code to whether the
// request should be retried, per §4.B: 206 is success, 404 is a
// terminal "not found" (no retry), 200 on a ranged request is treated
// as a transient failure (the server ignored the Range header and
// would resend the whole object), everything else retries with
// backoff up to the configured attempt limit.
func classifyHTTPStatus(status int) (retry bool, terminal bool) {
	switch status {
	case http.StatusPartialContent:
		return false, false
	case http.StatusNotFound:
		return false, true
	case http.StatusOK:
		return true, false
	default:
		return true, false
	}
}
