package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// splitHeaderPayload splits a raw archive record into its header block
// and payload on the first blank line, mirroring content_conversion.py's
// warc.payload.read().split(b'\r\n\r\n', maxsplit=1).
func splitHeaderPayload(raw []byte) (header, payload []byte, err error) {
	sep := []byte("\r\n\r\n")
	i := bytes.Index(raw, sep)
	if i < 0 {
		// Some archives normalize line endings; fall back to a bare
		// double newline before giving up.
		sep = []byte("\n\n")
		i = bytes.Index(raw, sep)
		if i < 0 {
			return nil, nil, fmt.Errorf("extract: no header/payload separator found")
		}
	}
	return raw[:i], raw[i+len(sep):], nil
}

// convertContent dispatches on the record's identified payload type and
// returns the list of text chunks to run boilerplate removal over.
// Atom and RSS feeds are flattened into one chunk per meaningful entry;
// anything else passes through as a single chunk holding the raw
// payload.
func convertContent(payloadType string, payload []byte) ([][]byte, error) {
	switch payloadType {
	case "application/atom+xml":
		chunks, err := convertAtom(payload)
		if err != nil {
			return nil, fmt.Errorf("extract: atom conversion: %w", err)
		}
		return chunks, nil
	case "application/rss+xml":
		chunks, err := convertRSS(payload)
		if err != nil {
			return nil, fmt.Errorf("extract: rss conversion: %w", err)
		}
		return chunks, nil
	default:
		return [][]byte{payload}, nil
	}
}

func notEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

// convertAtom turns an Atom feed into one chunk per entry that carries
// both a summary and a content body, composed as title/summary/content
// paragraphs. Entries with no meaningful text are dropped.
func convertAtom(text []byte) ([][]byte, error) {
	feed, err := gofeed.NewParser().ParseString(string(text))
	if err != nil {
		return nil, err
	}
	var chunks [][]byte
	for _, e := range feed.Items {
		if !notEmpty(e.Description) || !notEmpty(e.Content) {
			continue
		}
		var pieces []string
		if notEmpty(e.Title) {
			pieces = append(pieces, fmt.Sprintf("<p>%s</p>", e.Title))
		}
		pieces = append(pieces, e.Description, e.Content)
		chunks = append(chunks, []byte(strings.Join(pieces, "\n\n")))
	}
	return chunks, nil
}

// convertRSS turns an RSS feed into at most two chunks: one holding the
// feed's own title/description, and one holding a paragraph pair for
// every item that has both a non-empty title and description (omitted
// when no item qualifies). A feed with no qualifying item and no
// description yields no chunks.
func convertRSS(text []byte) ([][]byte, error) {
	feed, err := gofeed.NewParser().ParseString(string(text))
	if err != nil {
		return nil, err
	}
	composeChunk := func(pieces ...string) string {
		var wrapped []string
		for _, p := range pieces {
			if notEmpty(p) {
				wrapped = append(wrapped, fmt.Sprintf("<p>%s</p>", p))
			}
		}
		return strings.Join(wrapped, "\n\n")
	}

	var items []string
	for _, it := range feed.Items {
		if notEmpty(it.Title) && notEmpty(it.Description) {
			items = append(items, composeChunk(it.Title, it.Description))
		}
	}
	itemChunk := strings.Join(items, "\n\n")

	if len(items) == 0 && !notEmpty(feed.Description) {
		return nil, nil
	}
	chunks := [][]byte{[]byte(composeChunk(feed.Title, feed.Description))}
	if itemChunk != "" {
		chunks = append(chunks, []byte(itemChunk))
	}
	return chunks, nil
}
