package extract

import (
	"net/http"
	"strings"
)

// mimeClass is the simplified MIME classification used to decide how a
// chunk is handed to boilerplate removal.
type mimeClass int

const (
	mimeUnknown mimeClass = iota
	mimeHTML
	mimeText
)

const sniffLen = 2048

// classifyMIME inspects the first 2 KiB of chunk the way
// net/http.DetectContentType does and maps the result onto the three
// classes the extractor cares about: well-formed HTML, plain text that
// needs wrapping, or anything else, which is dropped.
func classifyMIME(chunk []byte) mimeClass {
	n := len(chunk)
	if n > sniffLen {
		n = sniffLen
	}
	sniffed := http.DetectContentType(chunk[:n])
	switch {
	case strings.HasPrefix(sniffed, "text/html"):
		return mimeHTML
	case strings.HasPrefix(sniffed, "text/plain"), strings.HasPrefix(sniffed, "text/xml"), strings.HasPrefix(sniffed, "application/xml"):
		return mimeText
	default:
		return mimeUnknown
	}
}

// toHTML normalizes a chunk to well-formed HTML bytes per its
// classification: HTML passes through untouched, plain text is wrapped
// in a minimal envelope so the boilerplate remover always sees a
// document, and unknown content has no representation (callers must
// check the class before calling toHTML).
func toHTML(chunk []byte, class mimeClass) []byte {
	if class == mimeHTML {
		return chunk
	}
	var b strings.Builder
	b.WriteString("<html><body><p>")
	b.Write(escapeForWrap(chunk))
	b.WriteString("</p></body></html>")
	return []byte(b.String())
}

var wrapReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeForWrap(b []byte) []byte {
	return []byte(wrapReplacer.Replace(string(b)))
}
