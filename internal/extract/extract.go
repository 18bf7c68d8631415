// Package extract implements BoilerplateExtractor (§4.E): converting a
// downloaded archive record into a corpus Document, or dropping it.
// Grounded in remove_boilerplate.py's IndexWarcReader.process_record
// and cc_corpus/content_conversion.py, generalized from WARC's nested
// header/HTTP-header split to this project's single header/payload
// archive record.
package extract

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/DavidNemeskey/cc-corpus-go/internal/corpus"
	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
)

// Config controls one Extractor.
type Config struct {
	Remover BoilerplateRemover
	// MinTotalBytes is the minimum length (in bytes, after escaping)
	// the concatenated surviving paragraphs must reach; shorter
	// output is dropped outright. Zero means the §4.E default of 13.
	MinTotalBytes int
}

// Extractor runs the BoilerplateExtractor pipeline for one shard.
type Extractor struct {
	cfg Config
}

// NewExtractor validates cfg and fills in defaults.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.Remover == nil {
		return nil, fmt.Errorf("extract: Remover must not be nil")
	}
	if cfg.MinTotalBytes == 0 {
		cfg.MinTotalBytes = 13
	}
	return &Extractor{cfg: cfg}, nil
}

// Extract runs the full pipeline on one downloaded record. On success
// it returns a Document and an empty drop reason. On any non-fatal
// failure — malformed record, unknown MIME, boilerplate removal error,
// too little surviving text — it returns (nil, reason); the caller
// logs the reason and moves on to the next record.
func (ex *Extractor) Extract(raw []byte, entry index.IndexEntry, seq int) (*corpus.Document, string) {
	header, payload, err := splitHeaderPayload(raw)
	if err != nil {
		return nil, err.Error()
	}

	payloadType := headerField(header, "WARC-Identified-Payload-Type")
	chunks, err := convertContent(payloadType, payload)
	if err != nil {
		return nil, err.Error()
	}
	if len(chunks) == 0 {
		return nil, "no content chunks produced by content conversion"
	}

	var htmlChunks [][]byte
	for _, c := range chunks {
		switch classifyMIME(c) {
		case mimeUnknown:
			continue
		case mimeText:
			htmlChunks = append(htmlChunks, toHTML(c, mimeText))
		case mimeHTML:
			htmlChunks = append(htmlChunks, c)
		}
	}
	if len(htmlChunks) == 0 {
		return nil, "all chunks dropped by mime normalization"
	}

	var paragraphs []string
	for _, c := range htmlChunks {
		ps, err := ex.cfg.Remover.Remove(c, entry.URL)
		if err != nil {
			return nil, fmt.Sprintf("boilerplate removal: %v", err)
		}
		paragraphs = append(paragraphs, ps...)
	}

	escaped := make([]string, len(paragraphs))
	total := 0
	for i, p := range paragraphs {
		escaped[i] = corpus.EscapeParagraph(p)
		total += len(escaped[i])
	}
	if total < ex.cfg.MinTotalBytes {
		return nil, fmt.Sprintf("only %d bytes left after boilerplate removal", total)
	}

	doc := &corpus.Document{
		Attrs: []corpus.KV{
			{Key: "domain", Value: domainOf(entry.URL)},
			{Key: "index", Value: strconv.Itoa(seq)},
			{Key: "url", Value: entry.URL},
			{Key: "warc-file", Value: entry.WARCFile},
			{Key: "offset", Value: strconv.FormatInt(entry.Offset, 10)},
			{Key: "length", Value: strconv.FormatInt(entry.Length, 10)},
			{Key: "response", Value: strconv.Itoa(entry.Status)},
			{Key: "mime-type", Value: entry.MIME},
		},
		Meta: []corpus.KV{
			{Key: "request", Value: syntheticRequest(entry.URL)},
			{Key: "response", Value: strings.TrimSpace(string(header))},
		},
		Paragraphs: escaped,
	}
	return doc, ""
}

// headerField scans a raw header block line by line for "Key: value",
// case-insensitively, and returns the first match.
func headerField(header []byte, key string) string {
	sc := bufio.NewScanner(bytes.NewReader(header))
	prefix := key + ":"
	for sc.Scan() {
		line := sc.Text()
		if len(line) > len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

// domainOf returns the hostname of rawURL, or rawURL itself if it does
// not parse, so a malformed URL never blocks a record from being
// written out.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

// syntheticRequest builds a minimal request header block. The archive
// records this pipeline consumes only carry a response header, not the
// original request, so a synthetic single-line request is recorded
// instead of leaving the <request> section empty.
func syntheticRequest(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := "/"
	host := rawURL
	if err == nil {
		if u.Path != "" {
			path = u.EscapedPath()
		}
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		if u.Host != "" {
			host = u.Host
		}
	}
	return fmt.Sprintf("GET %s HTTP/1.1\nHost: %s", path, host)
}
