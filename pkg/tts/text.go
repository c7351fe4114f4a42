package tts

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText reduces SSML (or any tag soup) to its spoken text. Entities are
// decoded; <break> and <p>/<s> boundaries become spaces.
func PlainText(markup string) string {
	if !strings.Contains(markup, "<") {
		return strings.Join(strings.Fields(markup), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Keep words on either side of a tag apart.
			b.WriteByte(' ')
		}
	}
}
