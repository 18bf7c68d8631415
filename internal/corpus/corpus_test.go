package corpus

import (
	"strings"
	"testing"
)

func TestDocumentWriteEscapesParagraphs(t *testing.T) {
	d := &Document{
		Attrs: []KV{{Key: "url", Value: "http://x/"}, {Key: "domain", Value: "x"}},
		Meta:  []KV{{Key: "request", Value: "GET /"}, {Key: "response", Value: "200 OK"}},
	}
	d.Paragraphs = append(d.Paragraphs, EscapeParagraph("hi <you>"))

	got := d.String()
	want := `<doc url="http://x/" domain="x">
<meta>
<request>
GET /
</request>
<response>
200 OK
</response>
</meta>
<p>
hi &lt;you&gt;
</p>

</doc>


`
	if got != want {
		t.Fatalf("serialized document mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	d := &Document{
		Attrs:      []KV{{Key: "url", Value: "http://example.com/a"}, {Key: "domain", Value: "example.com"}},
		Meta:       []KV{{Key: "request", Value: "GET /a HTTP/1.1"}, {Key: "response", Value: "HTTP/1.1 200 OK"}},
		Paragraphs: []string{"first paragraph", "second &amp; paragraph"},
	}
	text := d.String()

	docs, err := ParseAll(strings.NewReader(text), "")
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	got := docs[0]

	if len(got.Attrs) != len(d.Attrs) {
		t.Fatalf("attrs mismatch: got %v, want %v", got.Attrs, d.Attrs)
	}
	for i, kv := range d.Attrs {
		if got.Attrs[i] != kv {
			t.Fatalf("attr %d: got %v, want %v", i, got.Attrs[i], kv)
		}
	}
	if len(got.Meta) != len(d.Meta) {
		t.Fatalf("meta mismatch: got %v, want %v", got.Meta, d.Meta)
	}
	for i, kv := range d.Meta {
		if got.Meta[i] != kv {
			t.Fatalf("meta %d: got %v, want %v", i, got.Meta[i], kv)
		}
	}
	if len(got.Paragraphs) != len(d.Paragraphs) {
		t.Fatalf("paragraphs mismatch: got %v, want %v", got.Paragraphs, d.Paragraphs)
	}
	for i, p := range d.Paragraphs {
		if got.Paragraphs[i] != p {
			t.Fatalf("paragraph %d: got %q, want %q", i, got.Paragraphs[i], p)
		}
	}

	// Byte-identical round trip: serializing the parsed document again
	// must reproduce the original text exactly.
	if again := got.String(); again != text {
		t.Fatalf("round trip not byte-identical:\ngot:\n%s\nwant:\n%s", again, text)
	}
}

func TestParserMultipleDocuments(t *testing.T) {
	text := (&Document{Attrs: []KV{{Key: "url", Value: "a"}}, Paragraphs: []string{"one"}}).String() +
		(&Document{Attrs: []KV{{Key: "url", Value: "b"}}, Paragraphs: []string{"two"}}).String()

	docs, err := ParseAll(strings.NewReader(text), "")
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if u, _ := Get(docs[0].Attrs, "url"); u != "a" {
		t.Fatalf("doc 0 url = %q, want a", u)
	}
	if u, _ := Get(docs[1].Attrs, "url"); u != "b" {
		t.Fatalf("doc 1 url = %q, want b", u)
	}
}

func TestParserUnclosedTagIsError(t *testing.T) {
	_, err := ParseAll(strings.NewReader("<doc url=\"a\">\n<p>\nhi\n"), "stream")
	if err == nil {
		t.Fatal("expected error for unclosed tag, got nil")
	}
	var pe *ParseError
	if !asParseError(err, &pe) {
		t.Fatalf("expected *ParseError, got %T: %v", err, err)
	}
}

func asParseError(err error, target **ParseError) bool {
	pe, ok := err.(*ParseError)
	if ok {
		*target = pe
	}
	return ok
}

func TestRepr(t *testing.T) {
	d := &Document{Attrs: []KV{{Key: "url", Value: "http://x/"}}}
	if got, want := d.Repr(), "Document(url: http://x/)"; got != want {
		t.Fatalf("Repr() = %q, want %q", got, want)
	}
}
