package sections

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Markdown converts a markdown fragment to HTML. Raw HTML in the input is
// not passed through.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("sections: render markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderHTML renders a lesson plan as HTML: a details table followed by one
// <section> per non-empty heading, in document order.
func RenderHTML(doc string) (string, error) {
	var b strings.Builder
	for _, s := range ParseOrdered(doc) {
		if s.Body == "" {
			continue
		}
		if s.Title == DetailsKey {
			b.WriteString("<section class=\"details\">\n<h2>Lesson Plan Details</h2>\n")
			if err := writeDetailsTable(&b, s.Body); err != nil {
				return "", err
			}
		} else {
			fmt.Fprintf(&b, "<section>\n<h2>%s</h2>\n", html.EscapeString(s.Title))
			body, err := Markdown(s.Body)
			if err != nil {
				return "", err
			}
			b.WriteString(body)
		}
		b.WriteString("</section>\n")
	}
	return b.String(), nil
}

func writeDetailsTable(b *strings.Builder, details string) error {
	b.WriteString("<table>\n<tbody>\n")
	for _, k := range DetailKeys {
		cell, err := Markdown(Field(details, k))
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "<tr><th>%s</th><td>%s</td></tr>\n",
			html.EscapeString(k), strings.TrimSpace(cell))
	}
	b.WriteString("</tbody>\n</table>\n")
	return nil
}
