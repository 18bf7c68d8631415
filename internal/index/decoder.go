package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// IndexEntry is one URL record inside a per-dump index page: the SURT
// key and timestamp carried by the index line itself, plus whatever
// fields the embedded JSON document exposes.
type IndexEntry struct {
	SURT      string
	Timestamp string
	URL       string
	WARCFile  string
	Offset    int64
	Length    int64
	Status    int
	MIME      string
}

// indexJSON mirrors the JSON object that follows the SURT/timestamp
// pair on every index line.
type indexJSON struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Offset   string `json:"offset"`
	Length   string `json:"length"`
	Status   string `json:"status"`
	MIME     string `json:"mime"`
}

// ParseIndexLine parses one decompressed index line of the form
// "surt timestamp {json...}" into an IndexEntry.
func ParseIndexLine(line string) (IndexEntry, error) {
	first := strings.IndexByte(line, ' ')
	if first < 0 {
		return IndexEntry{}, fmt.Errorf("index: malformed index line: %q", line)
	}
	rest := line[first+1:]
	second := strings.IndexByte(rest, ' ')
	if second < 0 {
		return IndexEntry{}, fmt.Errorf("index: malformed index line: %q", line)
	}
	surt := line[:first]
	ts := rest[:second]
	var doc indexJSON
	if err := json.Unmarshal([]byte(rest[second+1:]), &doc); err != nil {
		return IndexEntry{}, fmt.Errorf("index: bad index JSON: %w", err)
	}
	e := IndexEntry{SURT: surt, Timestamp: ts, URL: doc.URL, WARCFile: doc.Filename, MIME: doc.MIME}
	fmt.Sscanf(doc.Offset, "%d", &e.Offset)
	fmt.Sscanf(doc.Length, "%d", &e.Length)
	fmt.Sscanf(doc.Status, "%d", &e.Status)
	return e, nil
}

// FormatIndexLine reconstructs the "surt timestamp {json}" text form
// of e, the inverse of ParseIndexLine. It is lossy only in field
// formatting (numbers are re-rendered as decimal strings), never in
// value, so a round trip through ParseIndexLine recovers e exactly.
func FormatIndexLine(e IndexEntry) string {
	doc := indexJSON{
		URL:      e.URL,
		Filename: e.WARCFile,
		Offset:   fmt.Sprintf("%d", e.Offset),
		Length:   fmt.Sprintf("%d", e.Length),
		Status:   fmt.Sprintf("%d", e.Status),
		MIME:     e.MIME,
	}
	b, _ := json.Marshal(doc)
	return fmt.Sprintf("%s %s %s", e.SURT, e.Timestamp, b)
}

// DecodeRange decompresses a raw range fetched for a FileRange: the
// payload is a sequence of independently framed zlib streams
// concatenated back to back (one per cluster coalesced into the
// range). Each stream is inflated in turn; the decoder re-synchronizes
// on whatever tail bytes the previous inflater left unconsumed, exactly
// as many times as there are streams.
func DecodeRange(raw []byte, fn func(IndexEntry) error) error {
	return DecompressConcatenated(raw, func(stream []byte) error {
		return scanIndexLines(stream, fn)
	})
}

// DecompressConcatenated inflates a sequence of independently framed
// zlib streams concatenated back to back, calling fn once per stream
// with its decompressed bytes. Archive content ranges use the same
// framing as per-index-file ranges (§6), so this is the shared
// primitive both DecodeRange and the content-fetch path decompress
// through.
func DecompressConcatenated(raw []byte, fn func([]byte) error) error {
	remaining := raw
	for len(remaining) > 0 {
		// bytes.Reader implements io.ByteReader, so the flate decompressor
		// underlying zlib.Reader reads directly from it instead of wrapping
		// it in a bufio.Reader that would over-read into the next stream.
		// That lets br.Len() after Close tell us exactly where this stream
		// ended, mirroring decompressobj().unused_data in the original.
		br := bytes.NewReader(remaining)
		zr, err := zlib.NewReader(br)
		if err != nil {
			return fmt.Errorf("index: zlib stream: %w", err)
		}
		var buf bytes.Buffer
		_, copyErr := io.Copy(&buf, zr)
		_ = zr.Close()
		if copyErr != nil {
			return fmt.Errorf("index: zlib decode: %w", copyErr)
		}
		consumed := int64(len(remaining)) - int64(br.Len())
		if consumed <= 0 || consumed > int64(len(remaining)) {
			return fmt.Errorf("index: could not determine zlib stream boundary")
		}
		if err := fn(buf.Bytes()); err != nil {
			return err
		}
		remaining = remaining[consumed:]
	}
	return nil
}

func scanIndexLines(b []byte, fn func(IndexEntry) error) error {
	s := bufio.NewScanner(bytes.NewReader(b))
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := ParseIndexLine(line)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return s.Err()
}
