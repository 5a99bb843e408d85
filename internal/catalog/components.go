package catalog

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	componentIDRe   = regexp.MustCompile(`^[A-Z]{1,5}[0-9][A-Z0-9#-]*$`)
	componentLineRe = regexp.MustCompile(`^([A-Z]{1,5}[0-9][A-Z0-9#-]*)[\s　]+(\S.*)$`)
)

// ParseComponents reads a components page and returns the set entries it
// lists. The structured pass walks table rows whose first cell looks like a
// part identity; when no table yields anything, a line-oriented scan over
// the page text takes over. Structured results win outright.
func ParseComponents(doc *goquery.Document, productID string) []Component {
	entries := structuredComponents(doc)
	if len(entries) == 0 {
		entries = textComponents(doc.Text())
	}
	return MergeComponents(entries, productID)
}

func structuredComponents(doc *goquery.Document) []Component {
	var entries []Component
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		id := strings.TrimSpace(cells.Eq(0).Text())
		if !componentIDRe.MatchString(id) {
			return
		}
		entries = append(entries, Component{
			ID:   id,
			Name: strings.TrimSpace(cells.Eq(1).Text()),
		})
	})
	return entries
}

func textComponents(text string) []Component {
	var entries []Component
	for _, line := range strings.Split(text, "\n") {
		m := componentLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		entries = append(entries, Component{ID: m[1], Name: strings.TrimSpace(m[2])})
	}
	return entries
}
