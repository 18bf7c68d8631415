// Package pairer implements RecordPairer (§4.D): joining a stream of
// downloaded records back to the IndexEntry that requested them, in
// index order. Grounded directly in the forward-pass matching
// described for the original per-shard WARC/index alignment step;
// there is no teacher analogue for this exact join, so the pass itself
// is written from the documented contract (driver stream, advance on
// mismatch, fail after three).
package pairer

import (
	"errors"
	"fmt"
	"net/url"
)

// Record is a downloaded response: its URL (as carried by the record's
// own headers) and its raw bytes.
type Record struct {
	URL   string
	Bytes []byte
}

// Pair is one successfully joined (IndexEntry, RecordBytes) tuple.
type Pair[E any] struct {
	Entry  E
	Record Record
}

// PairingFailed is raised once three consecutive records fail to match
// the index entry being paired, or once the record stream ends before
// an entry is matched.
type PairingFailed struct {
	Shard      string
	Mismatches []Mismatch
}

// Mismatch records one failed match attempt for diagnostics.
type Mismatch struct {
	ExpectedURL string
	GotURL      string
}

func (e *PairingFailed) Error() string {
	return fmt.Sprintf("pairer: pairing failed for shard %s after %d mismatches", e.Shard, len(e.Mismatches))
}

// maxMismatches is the number of consecutive non-matching records
// tolerated before a shard's pairing is abandoned (§4.D: "after three
// mismatches").
const maxMismatches = 3

// URLGetter extracts the URL from an index entry or record, as decided by
// the caller-supplied accessors; this keeps the package free of a
// dependency on any specific IndexEntry type.
type URLGetter[T any] func(T) string

// Pair performs the single forward pass: entries is the driver stream,
// records is advanced until a URL match is found or the mismatch
// threshold is hit. Matching is on URL after percent-decoding both
// sides. next is called to pull the next record; it returns
// (zero, false) when the record stream is exhausted.
func Pair[E any](
	shard string,
	entries []E,
	entryURL URLGetter[E],
	next func() (Record, bool),
	emit func(Pair[E]),
) error {
	var mismatches []Mismatch
	pending, hasPending := next()

	for _, e := range entries {
		wantURL, err := url.QueryUnescape(entryURL(e))
		if err != nil {
			wantURL = entryURL(e)
		}

		for {
			if !hasPending {
				return &PairingFailed{Shard: shard, Mismatches: append(mismatches, Mismatch{ExpectedURL: wantURL, GotURL: ""})}
			}
			gotURL, err := url.QueryUnescape(pending.URL)
			if err != nil {
				gotURL = pending.URL
			}
			if gotURL == wantURL {
				emit(Pair[E]{Entry: e, Record: pending})
				pending, hasPending = next()
				mismatches = nil
				break
			}
			mismatches = append(mismatches, Mismatch{ExpectedURL: wantURL, GotURL: gotURL})
			if len(mismatches) >= maxMismatches {
				return &PairingFailed{Shard: shard, Mismatches: mismatches}
			}
			pending, hasPending = next()
		}
	}
	return nil
}

// IsPairingFailed reports whether err is (or wraps) a *PairingFailed.
func IsPairingFailed(err error) bool {
	var pf *PairingFailed
	return errors.As(err, &pf)
}
