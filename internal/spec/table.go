// Package spec extracts product specification tables cell-by-cell,
// preserving row/column span metadata verbatim for the renderer.
package spec

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Cell is one table cell with its span attributes as recorded in the source.
// Spans are passed through unevaluated; no merging or expansion happens here.
type Cell struct {
	Text    string
	RowSpan int
	ColSpan int
	Header  bool
}

// Row is an ordered list of cells in document order. A row containing only
// header cells marks a section boundary for the renderer.
type Row struct {
	Cells []Cell
}

// IsSectionHeader reports whether the row has header cells and no data cells.
func (r Row) IsSectionHeader() bool {
	if len(r.Cells) == 0 {
		return false
	}
	for _, c := range r.Cells {
		if !c.Header {
			return false
		}
	}
	return true
}

// ExtractRows walks a table region top-to-bottom and returns its rows.
// Span attributes default to 1 when absent or malformed. Rows with zero
// cells are skipped; header-only rows are kept.
func ExtractRows(tableRegion *goquery.Selection) []Row {
	var rows []Row
	tableRegion.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row Row
		tr.Children().Each(func(_ int, cell *goquery.Selection) {
			switch goquery.NodeName(cell) {
			case "th":
				row.Cells = append(row.Cells, newCell(cell, true))
			case "td":
				row.Cells = append(row.Cells, newCell(cell, false))
			}
		})
		if len(row.Cells) > 0 {
			rows = append(rows, row)
		}
	})
	return rows
}

// specKeywords confirm that a candidate table is actually the specification
// table and not layout chrome.
var specKeywords = []string{"基本情報", "仕様", "質量", "発売時期"}

// tableSelectors is the ordered candidate list for locating the spec table,
// from class-hinted to bare.
var tableSelectors = []string{"[class*='spec'] table", "[class*='table']", "table"}

// FindSpecTable locates the specification table in a document: the first
// table matched by the selector cascade whose text contains a known spec
// keyword. Returns nil when no table qualifies.
func FindSpecTable(doc *goquery.Document) *goquery.Selection {
	for _, selector := range tableSelectors {
		var found *goquery.Selection
		doc.Find(selector).EachWithBreak(func(_ int, table *goquery.Selection) bool {
			text := table.Text()
			for _, kw := range specKeywords {
				if strings.Contains(text, kw) {
					found = table
					return false
				}
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func newCell(sel *goquery.Selection, header bool) Cell {
	return Cell{
		Text:    strings.TrimSpace(sel.Text()),
		RowSpan: spanAttr(sel, "rowspan"),
		ColSpan: spanAttr(sel, "colspan"),
		Header:  header,
	}
}

func spanAttr(sel *goquery.Selection, name string) int {
	raw, ok := sel.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
