// Package records splits a fetched archive byte range, which may
// contain several records coalesced back to back by RangesFromClusters
// the way adjacent index clusters are coalesced in internal/index, into
// the individual records RecordPairer joins against index entries. The
// header/payload split itself reuses the convention
// internal/extract.splitHeaderPayload already applies to a single
// record; WARC-Target-URI is the same field internal/corpus.Repr
// recovers a document's URL from when no url attribute survived.
package records

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/DavidNemeskey/cc-corpus-go/internal/pairer"
)

// headerField scans a raw header block for "Key: value", case
// insensitively, returning the first match.
func headerField(header []byte, key string) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(header))
	prefix := key + ":"
	for sc.Scan() {
		line := sc.Text()
		if len(line) > len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", false
}

// Split walks raw, a concatenation of one or more archive records, and
// returns one pairer.Record per entry found. Each record's header block
// (up to the first "\r\n\r\n") must carry a Content-Length field giving
// its payload size and a WARC-Target-URI field giving its URL; a record
// missing either terminates the scan with an error, since there is no
// way to locate the next record's boundary without it.
func Split(raw []byte) ([]pairer.Record, error) {
	var out []pairer.Record
	remaining := raw
	for len(remaining) > 0 {
		sep := bytes.Index(remaining, []byte("\r\n\r\n"))
		if sep < 0 {
			return nil, fmt.Errorf("records: no header/payload separator in remaining %d bytes", len(remaining))
		}
		header := remaining[:sep]
		bodyStart := sep + 4

		lengthStr, ok := headerField(header, "Content-Length")
		if !ok {
			return nil, fmt.Errorf("records: record missing Content-Length")
		}
		length, err := strconv.Atoi(strings.TrimSpace(lengthStr))
		if err != nil || length < 0 {
			return nil, fmt.Errorf("records: bad Content-Length %q: %w", lengthStr, err)
		}
		if bodyStart+length > len(remaining) {
			return nil, fmt.Errorf("records: Content-Length %d overruns remaining %d bytes", length, len(remaining)-bodyStart)
		}

		url, ok := headerField(header, "WARC-Target-URI")
		if !ok {
			return nil, fmt.Errorf("records: record missing WARC-Target-URI")
		}

		recEnd := bodyStart + length
		out = append(out, pairer.Record{URL: url, Bytes: remaining[:recEnd]})

		remaining = remaining[recEnd:]
		// A trailing separator between records, mirroring WARC's own
		// blank-line record terminator, is consumed if present.
		remaining = bytes.TrimPrefix(remaining, []byte("\r\n\r\n"))
	}
	return out, nil
}
