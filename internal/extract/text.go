// Package extract holds markup helpers shared by the per-site extractors.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse builds a goquery document from raw markup. The HTML tokenizer accepts any
// input, so a nil document only comes back for a failing reader.
func Parse(markup []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(markup))
}

// StrippedText concatenates every descendant text node of the first node in sel,
// trimming each node and dropping the empty ones.
func StrippedText(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel.Get(0))
	return b.String()
}
