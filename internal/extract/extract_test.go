package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/DavidNemeskey/cc-corpus-go/internal/corpus"
	"github.com/DavidNemeskey/cc-corpus-go/internal/index"
)

func TestSplitHeaderPayload(t *testing.T) {
	raw := []byte("WARC-Identified-Payload-Type: text/html\r\nContent-Length: 5\r\n\r\nhello")
	header, payload, err := splitHeaderPayload(raw)
	if err != nil {
		t.Fatalf("splitHeaderPayload: %v", err)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want %q", payload, "hello")
	}
	if headerField(header, "WARC-Identified-Payload-Type") != "text/html" {
		t.Fatalf("headerField = %q", headerField(header, "WARC-Identified-Payload-Type"))
	}
}

func TestSplitHeaderPayloadMissingSeparator(t *testing.T) {
	if _, _, err := splitHeaderPayload([]byte("no separator here")); err == nil {
		t.Fatal("expected error for missing separator")
	}
}

func TestConvertContentOtherPassesThrough(t *testing.T) {
	chunks, err := convertContent("text/plain", []byte("raw payload"))
	if err != nil {
		t.Fatalf("convertContent: %v", err)
	}
	if len(chunks) != 1 || string(chunks[0]) != "raw payload" {
		t.Fatalf("got %v", chunks)
	}
}

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Feed</title>
  <entry>
    <title>Entry One</title>
    <summary>Summary one</summary>
    <content>Content one</content>
  </entry>
  <entry>
    <title>Empty Entry</title>
  </entry>
</feed>`

func TestConvertAtomDropsEmptyEntries(t *testing.T) {
	chunks, err := convertContent("application/atom+xml", []byte(atomFeed))
	if err != nil {
		t.Fatalf("convertContent: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (the empty entry must be dropped)", len(chunks))
	}
	if !strings.Contains(string(chunks[0]), "Entry One") {
		t.Fatalf("chunk missing entry title: %s", chunks[0])
	}
	if !strings.Contains(string(chunks[0]), "Content one") {
		t.Fatalf("chunk missing entry content: %s", chunks[0])
	}
}

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<title>Channel Title</title>
<description>Channel Description</description>
<item>
<title>Item One</title>
<description>Item One Description</description>
</item>
<item>
<title>Item Two</title>
</item>
</channel>
</rss>`

func TestConvertRSSDropsEmptyItems(t *testing.T) {
	chunks, err := convertContent("application/rss+xml", []byte(rssFeed))
	if err != nil {
		t.Fatalf("convertContent: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2 (feed chunk + one item chunk)", len(chunks))
	}
	if !strings.Contains(string(chunks[0]), "Channel Title") {
		t.Fatalf("feed chunk missing channel title: %s", chunks[0])
	}
	if !strings.Contains(string(chunks[1]), "Item One") || strings.Contains(string(chunks[1]), "Item Two") {
		t.Fatalf("item chunk wrong: %s", chunks[1])
	}
}

func TestClassifyMIME(t *testing.T) {
	if got := classifyMIME([]byte("<html><body>hi</body></html>")); got != mimeHTML {
		t.Fatalf("html classified as %v", got)
	}
	if got := classifyMIME([]byte("just plain text here")); got != mimeText {
		t.Fatalf("plain text classified as %v", got)
	}
	if got := classifyMIME([]byte{0x00, 0x01, 0x02, 0x03}); got != mimeUnknown {
		t.Fatalf("binary classified as %v", got)
	}
}

// stubRemover returns a fixed set of paragraphs regardless of input.
type stubRemover struct {
	paragraphs []string
	err        error
}

func (s stubRemover) Remove(htmlBytes []byte, url string) ([]string, error) {
	return s.paragraphs, s.err
}

func testEntry() index.IndexEntry {
	return index.IndexEntry{
		URL:      "http://example.com/page",
		WARCFile: "CC-MAIN-20200101-00001.warc.gz",
		Offset:   100,
		Length:   200,
		Status:   200,
		MIME:     "text/html",
	}
}

func TestExtractDropsShortText(t *testing.T) {
	ex, err := NewExtractor(Config{Remover: stubRemover{paragraphs: []string{"hi"}}})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	raw := []byte("WARC-Identified-Payload-Type: text/html\r\n\r\n<html><body><p>hi</p></body></html>")
	doc, reason := ex.Extract(raw, testEntry(), 1)
	if doc != nil {
		t.Fatalf("expected drop, got document")
	}
	if reason == "" {
		t.Fatal("expected a drop reason")
	}
}

func TestExtractSuccess(t *testing.T) {
	long := strings.Repeat("this is a long sentence with real content. ", 3)
	ex, err := NewExtractor(Config{Remover: stubRemover{paragraphs: []string{long}}})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	raw := []byte("WARC-Identified-Payload-Type: text/html\r\n\r\n<html><body><p>" + long + "</p></body></html>")
	entry := testEntry()
	doc, reason := ex.Extract(raw, entry, 7)
	if reason != "" {
		t.Fatalf("unexpected drop: %s", reason)
	}
	if doc == nil {
		t.Fatal("expected a document")
	}
	if len(doc.Paragraphs) != 1 || doc.Paragraphs[0] != long {
		t.Fatalf("paragraphs = %v", doc.Paragraphs)
	}
	domain, ok := corpus.Get(doc.Attrs, "domain")
	if !ok || domain != "example.com" {
		t.Fatalf("domain attr = %q, %v", domain, ok)
	}
	idx, ok := corpus.Get(doc.Attrs, "index")
	if !ok || idx != "7" {
		t.Fatalf("index attr = %q, %v", idx, ok)
	}
}

func TestExtractBoilerplateErrorIsDropped(t *testing.T) {
	ex, err := NewExtractor(Config{Remover: stubRemover{err: errors.New("boom")}})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	raw := []byte("WARC-Identified-Payload-Type: text/html\r\n\r\n<html><body><p>hi</p></body></html>")
	doc, reason := ex.Extract(raw, testEntry(), 1)
	if doc != nil {
		t.Fatal("expected drop on remover error")
	}
	if !strings.Contains(reason, "boilerplate removal") {
		t.Fatalf("reason = %q", reason)
	}
}
