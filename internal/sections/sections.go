// Package sections splits generated lesson-plan markdown into named sections
// keyed by their level-3 headings.
package sections

import (
	"regexp"
	"strings"
)

// DetailsKey holds the text that precedes the first heading.
const DetailsKey = "Details"

// NotProvided is returned by Field when a key is absent.
const NotProvided = "Not Provided"

// SectionMap maps a section title to its trimmed body.
type SectionMap map[string]string

// Section is one titled block of a document.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var headingRE = regexp.MustCompile(`(?m)^###[ \t]+(.*)$`)

// Parse splits doc on level-3 headings. The DetailsKey entry is always
// present. A repeated title keeps the body of its last occurrence.
func Parse(doc string) SectionMap {
	m := make(SectionMap)
	for _, s := range ParseOrdered(doc) {
		m[s.Title] = s.Body
	}
	return m
}

// ParseOrdered is Parse with titles in order of first appearance. The first
// element is always the DetailsKey section.
func ParseOrdered(doc string) []Section {
	locs := headingRE.FindAllStringSubmatchIndex(doc, -1)

	end := len(doc)
	if len(locs) > 0 {
		end = locs[0][0]
	}
	out := []Section{{Title: DetailsKey, Body: strings.TrimSpace(doc[:end])}}
	index := map[string]int{DetailsKey: 0}

	for i, loc := range locs {
		title := strings.TrimSpace(doc[loc[2]:loc[3]])
		bodyEnd := len(doc)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		body := strings.TrimSpace(doc[loc[1]:bodyEnd])

		if j, ok := index[title]; ok {
			out[j].Body = body
			continue
		}
		index[title] = len(out)
		out = append(out, Section{Title: title, Body: body})
	}
	return out
}

// Field returns the value of a "- **Key:** value" bullet in details. The value
// runs until the next "- **" bullet or the end of the text. A missing key
// yields NotProvided.
func Field(details, key string) string {
	marker := "- **" + key + ":**"
	i := strings.Index(details, marker)
	if i < 0 {
		return NotProvided
	}
	rest := details[i+len(marker):]
	if j := strings.Index(rest, "\n- **"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// DetailKeys are the header fields of an SBC lesson plan, in display order.
var DetailKeys = []string{
	"Subject",
	"Week",
	"Duration",
	"Form",
	"Strand",
	"Sub-Strand",
	"Content Standard",
	"Learning Outcome(s)",
	"Learning Indicator(s)",
	"Essential Question(s)",
	"Pedagogical Strategies",
	"Teaching & Learning Resources",
	"Keywords",
}

// Details resolves every DetailKeys entry against details.
func Details(details string) map[string]string {
	out := make(map[string]string, len(DetailKeys))
	for _, k := range DetailKeys {
		out[k] = Field(details, k)
	}
	return out
}
