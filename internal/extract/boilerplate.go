package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// BoilerplateRemover is the shared contract both removal algorithms
// implement: take a well-formed HTML document and the URL it came
// from (for diagnostics), and return the surviving content
// paragraphs in document order.
type BoilerplateRemover interface {
	Remove(htmlBytes []byte, url string) ([]string, error)
}

// blockTags are the elements treated as paragraph-level text
// containers. Text is attributed to the innermost enclosing block so
// that e.g. a <div> wrapping several <p> elements does not double
// count their content.
var blockTags = map[string]bool{
	"p": true, "li": true, "td": true, "th": true, "div": true,
	"article": true, "section": true, "blockquote": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// block is one candidate paragraph: its flattened text plus enough
// link-density bookkeeping to classify it as boilerplate or content.
type block struct {
	text       string
	linkWords  int
	totalWords int
}

// collectBlocks walks the parsed document and returns one block per
// block-level element that contains direct text, skipping script and
// style content.
func collectBlocks(root *html.Node) []block {
	var blocks []block
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b := gatherText(n)
			if b.text != "" {
				blocks = append(blocks, b)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return blocks
}

// gatherText flattens the text directly owned by root, stopping
// recursion at any nested block element (its text becomes its own
// block instead) and tracking how many of the words it found were
// inside an anchor, for link-density scoring.
func gatherText(root *html.Node) block {
	var sb strings.Builder
	var linkWords, totalWords int
	var walk func(n *html.Node, inLink bool)
	walk = func(n *html.Node, inLink bool) {
		if n != root && n.Type == html.ElementNode && blockTags[n.Data] {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				inLink = true
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
				words := len(strings.Fields(t))
				totalWords += words
				if inLink {
					linkWords += words
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inLink)
		}
	}
	walk(root, false)
	return block{text: strings.TrimSpace(sb.String()), linkWords: linkWords, totalWords: totalWords}
}

// JustextRemover is a simplified, single-pass analogue of jusText's
// link-density/stopword-density classifier: a block whose link
// density is too high is boilerplate outright; a short block is kept
// only if enough of its words are stopwords (a sign of natural
// running prose rather than a navigation label or button caption).
type JustextRemover struct {
	Stopwords                map[string]bool
	LinkDensityThreshold     float64
	StopwordDensityThreshold float64
	LengthLow                int
}

// NewJustextRemover builds a remover seeded with the given stopword
// list (case-insensitive).
func NewJustextRemover(stopwords []string) *JustextRemover {
	m := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		m[strings.ToLower(w)] = true
	}
	return &JustextRemover{
		Stopwords:                m,
		LinkDensityThreshold:     0.33,
		StopwordDensityThreshold: 0.3,
		LengthLow:                70,
	}
}

func (j *JustextRemover) Remove(htmlBytes []byte, url string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, fmt.Errorf("extract: parsing html for %s: %w", url, err)
	}
	var paragraphs []string
	for _, b := range collectBlocks(doc) {
		if b.totalWords == 0 {
			continue
		}
		if float64(b.linkWords)/float64(b.totalWords) > j.LinkDensityThreshold {
			continue
		}
		if len(b.text) < j.LengthLow && j.stopwordDensity(b.text) < j.StopwordDensityThreshold {
			continue
		}
		paragraphs = append(paragraphs, b.text)
	}
	return paragraphs, nil
}

func (j *JustextRemover) stopwordDensity(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	var hits int
	for _, w := range words {
		if j.Stopwords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

// DensityRemover is the plainer of the two interchangeable
// implementations: it keeps any block long enough and with a low
// enough fraction of its words inside a link, without needing a
// stopword list for any particular language.
type DensityRemover struct {
	LinkDensityThreshold float64
	MinLength            int
}

// NewDensityRemover returns a DensityRemover with workable defaults.
func NewDensityRemover() *DensityRemover {
	return &DensityRemover{LinkDensityThreshold: 0.5, MinLength: 40}
}

func (d *DensityRemover) Remove(htmlBytes []byte, url string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, fmt.Errorf("extract: parsing html for %s: %w", url, err)
	}
	var paragraphs []string
	for _, b := range collectBlocks(doc) {
		if b.totalWords == 0 || len(b.text) < d.MinLength {
			continue
		}
		if float64(b.linkWords)/float64(b.totalWords) > d.LinkDensityThreshold {
			continue
		}
		paragraphs = append(paragraphs, b.text)
	}
	return paragraphs, nil
}
