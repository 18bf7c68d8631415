package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ParseError is returned when a corpus stream does not conform to the
// semi-XML format: unpaired closing tags, or a stream that ends with
// tags still open.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("corpus: %s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("corpus: line %d: %s", e.Line, e.Msg)
}

var (
	openTagPattern  = regexp.MustCompile(`^<([^\s/>]+)((?:\s+[^\s=]+="[^"]*")*)\s*>$`)
	closeTagPattern = regexp.MustCompile(`^</([^\s>]+)>$`)
	attrPattern     = regexp.MustCompile(`([^\s=]+)="([^"]*)"`)
)

// frame tracks the body lines accumulated for one open tag.
type frame struct {
	tag  string
	body []string
}

// Parser is a pull-parser over the corpus semi-XML format (§6). Tags
// are recognized line-by-line; everything else is body content. Create
// one with NewParser and call Next repeatedly until io.EOF.
type Parser struct {
	scanner  *bufio.Scanner
	file     string
	lineNo   int
	stack    []frame
	doc      *Document
	finished bool
}

// NewParser returns a Parser reading corpus-format text from r. file is
// used only for error messages and may be empty.
func NewParser(r io.Reader, file string) *Parser {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &Parser{scanner: s, file: file}
}

// Next returns the next Document in the stream, io.EOF when the stream
// is exhausted cleanly, or a *ParseError on malformed input.
func (p *Parser) Next() (*Document, error) {
	if p.finished {
		return nil, io.EOF
	}
	for p.scanner.Scan() {
		p.lineNo++
		line := strings.TrimRight(p.scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)

		if m := closeTagPattern.FindStringSubmatch(trimmed); m != nil {
			doc, err := p.closeTag(m[1])
			if err != nil {
				return nil, err
			}
			if doc != nil {
				return doc, nil
			}
			continue
		}
		if m := openTagPattern.FindStringSubmatch(trimmed); m != nil {
			p.openTag(m[1], m[2])
			continue
		}
		if trimmed == "" {
			if len(p.stack) > 0 {
				p.appendBody("")
			}
			continue
		}
		p.appendBody(line)
	}
	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	p.finished = true
	if len(p.stack) > 0 {
		tags := make([]string, len(p.stack))
		for i, f := range p.stack {
			tags[i] = f.tag
		}
		return nil, &ParseError{File: p.file, Line: p.lineNo,
			Msg: fmt.Sprintf("stream ended with unclosed tags %s", strings.Join(tags, "/"))}
	}
	return nil, io.EOF
}

func (p *Parser) openTag(tag, attrsText string) {
	if tag == "doc" {
		p.doc = &Document{}
		for _, am := range attrPattern.FindAllStringSubmatch(attrsText, -1) {
			p.doc.Attrs = append(p.doc.Attrs, KV{Key: am[1], Value: am[2]})
		}
	}
	p.stack = append(p.stack, frame{tag: tag})
}

func (p *Parser) appendBody(line string) {
	top := &p.stack[len(p.stack)-1]
	top.body = append(top.body, line)
}

// closeTag pops the matching frame. It returns a non-nil Document when
// the closed tag is the outermost "doc" element.
func (p *Parser) closeTag(tag string) (*Document, error) {
	if len(p.stack) == 0 || p.stack[len(p.stack)-1].tag != tag {
		got := "nothing"
		if len(p.stack) > 0 {
			got = p.stack[len(p.stack)-1].tag
		}
		return nil, &ParseError{File: p.file, Line: p.lineNo,
			Msg: fmt.Sprintf("closed unpaired tag %s (open tag was %s)", tag, got)}
	}
	f := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	body := trimTrailingBlank(f.body)

	switch {
	case f.tag == "p":
		if len(p.stack) == 0 || p.doc == nil {
			return nil, &ParseError{File: p.file, Line: p.lineNo, Msg: "<p> outside of <doc>"}
		}
		p.doc.Paragraphs = append(p.doc.Paragraphs, strings.Join(body, "\n"))
	case f.tag == "meta" || f.tag == "doc":
		// structural tags carry no body of their own
	case len(p.stack) > 0 && p.stack[len(p.stack)-1].tag == "meta":
		if p.doc == nil {
			return nil, &ParseError{File: p.file, Line: p.lineNo, Msg: "meta field outside of <doc>"}
		}
		p.doc.Meta = append(p.doc.Meta, KV{Key: f.tag, Value: strings.Join(body, "\n")})
	}

	if f.tag == "doc" {
		doc := p.doc
		p.doc = nil
		if doc == nil {
			return nil, errors.New("corpus: internal error: nil document at </doc>")
		}
		return doc, nil
	}
	return nil, nil
}

func trimTrailingBlank(lines []string) []string {
	i := len(lines)
	for i > 0 && lines[i-1] == "" {
		i--
	}
	return lines[:i]
}

// ParseAll reads every Document out of r. Intended for tests and small
// files; large corpora should use Parser.Next directly to stream.
func ParseAll(r io.Reader, file string) ([]*Document, error) {
	p := NewParser(r, file)
	var docs []*Document
	for {
		doc, err := p.Next()
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
}
