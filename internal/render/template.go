// Package render turns extracted specification rows, component entries, and
// product identity fields into a fixed-layout HTML document. Output is
// byte-deterministic for identical inputs.
package render

import (
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"

	"cometharvester/internal/catalog"
	"cometharvester/internal/spec"
)

// Identity carries the product fields the document header needs.
type Identity struct {
	ProductID   string
	ProductName string
	SeriesName  string
}

// featureBucket groups spec text under a category heading by keyword match.
type featureBucket struct {
	Heading  string
	Keywords []string
}

// Buckets are evaluated in declaration order; each displays at most
// maxFeaturesPerBucket entries.
var featureBuckets = []featureBucket{
	{Heading: "清掃性", Keywords: []string{"お手入れ", "清掃", "フチなし", "トルネード", "セフィオンテクト"}},
	{Heading: "快適機能", Keywords: []string{"快適", "暖房", "オート", "リモコン", "やわらか"}},
	{Heading: "エコ", Keywords: []string{"節水", "節電", "省エネ", "エコ"}},
	{Heading: "衛生", Keywords: []string{"衛生", "除菌", "きれい除菌水", "抗菌"}},
}

const maxFeaturesPerBucket = 5

// Renderer produces the per-product specification document.
type Renderer struct {
	colors map[string]string
	logger *slog.Logger
}

// NewRenderer creates a Renderer. A nil or empty color table falls back to
// the built-in defaults.
func NewRenderer(colorTable map[string]string, logger *slog.Logger) *Renderer {
	colors := colorTable
	if len(colors) == 0 {
		colors = DefaultColorTable
	}
	return &Renderer{
		colors: colors,
		logger: logger.With("component", "renderer"),
	}
}

// Render assembles the full document: identity header, components block,
// specification table with spans mirrored verbatim, and a features block.
func (r *Renderer) Render(rows []spec.Row, components []catalog.Component, id Identity) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("    <meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "    <title>%s - 商品仕様</title>\n", html.EscapeString(id.ProductID))
	b.WriteString(documentStyle)
	b.WriteString("</head>\n<body>\n<div class=\"container\">\n")
	b.WriteString("    <h1>商品仕様書</h1>\n")

	r.writeIdentity(&b, id)
	r.writeComponents(&b, components, id)
	r.writeSpecTable(&b, rows)
	r.writeFeatures(&b, rows)

	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String()
}

func (r *Renderer) writeIdentity(b *strings.Builder, id Identity) {
	b.WriteString("    <div class=\"product-info\">\n")
	fmt.Fprintf(b, "        <div class=\"maker\">メーカー: %s</div>\n", html.EscapeString(manufacturerFor(id.ProductID)))
	fmt.Fprintf(b, "        <div class=\"product-id\">品番: %s</div>\n", html.EscapeString(r.formatIdentity(id.ProductID)))
	fmt.Fprintf(b, "        <div class=\"product-name\">商品名: %s</div>\n", html.EscapeString(orUnknown(id.ProductName)))
	fmt.Fprintf(b, "        <div class=\"series\">シリーズ: %s</div>\n", html.EscapeString(orUnknown(id.SeriesName)))
	b.WriteString("    </div>\n")
}

// formatIdentity appends a parenthetical color label when the identity
// carries a known #-suffixed color code.
func (r *Renderer) formatIdentity(productID string) string {
	base, code, found := strings.Cut(productID, "#")
	if !found {
		return productID
	}
	label, ok := r.colors[code]
	if !ok {
		return productID
	}
	return fmt.Sprintf("%s#%s（%s）", base, code, label)
}

func (r *Renderer) writeComponents(b *strings.Builder, components []catalog.Component, id Identity) {
	b.WriteString("    <div class=\"section-title\">セット内訳</div>\n    <ul class=\"components\">\n")
	if len(components) == 0 {
		// Single-entry fallback: the product is its own component.
		fmt.Fprintf(b, "        <li>%s ／ %s</li>\n",
			html.EscapeString(id.ProductID), html.EscapeString(orUnknown(id.ProductName)))
	}
	for _, c := range components {
		fmt.Fprintf(b, "        <li>%s ／ %s</li>\n", html.EscapeString(c.ID), html.EscapeString(c.Name))
	}
	b.WriteString("    </ul>\n")
}

// writeSpecTable mirrors the extracted rows exactly: cell order, kind, and
// recorded span counts all survive into the emitted markup.
func (r *Renderer) writeSpecTable(b *strings.Builder, rows []spec.Row) {
	b.WriteString("    <div class=\"section-title\">仕様</div>\n    <table>\n")
	for _, row := range rows {
		b.WriteString("        <tr>")
		for _, cell := range row.Cells {
			tag := "td"
			if cell.Header {
				tag = "th"
			}
			b.WriteString("<" + tag)
			if cell.RowSpan > 1 {
				fmt.Fprintf(b, " rowspan=\"%d\"", cell.RowSpan)
			}
			if cell.ColSpan > 1 {
				fmt.Fprintf(b, " colspan=\"%d\"", cell.ColSpan)
			}
			b.WriteString(">")
			b.WriteString(html.EscapeString(cell.Text))
			b.WriteString("</" + tag + ">")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("    </table>\n")
}

func (r *Renderer) writeFeatures(b *strings.Builder, rows []spec.Row) {
	grouped := groupFeatures(rows)
	if len(grouped) == 0 {
		return
	}
	b.WriteString("    <div class=\"section-title\">特長</div>\n")
	for _, bucket := range featureBuckets {
		items := grouped[bucket.Heading]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(b, "    <h3>%s</h3>\n    <ul>\n", html.EscapeString(bucket.Heading))
		for _, item := range items {
			fmt.Fprintf(b, "        <li>%s</li>\n", html.EscapeString(item))
		}
		b.WriteString("    </ul>\n")
	}
}

// groupFeatures assigns spec row text to keyword buckets. A row contributes
// its header text when present, otherwise the matching cell text. Duplicate
// entries within a bucket are dropped; each bucket is capped.
func groupFeatures(rows []spec.Row) map[string][]string {
	grouped := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, row := range rows {
		label := rowLabel(row)
		for _, cell := range row.Cells {
			for _, bucket := range featureBuckets {
				if !matchesBucket(cell.Text, bucket) {
					continue
				}
				entry := label
				if entry == "" {
					entry = cell.Text
				}
				if seen[bucket.Heading] == nil {
					seen[bucket.Heading] = make(map[string]bool)
				}
				if seen[bucket.Heading][entry] || len(grouped[bucket.Heading]) >= maxFeaturesPerBucket {
					continue
				}
				seen[bucket.Heading][entry] = true
				grouped[bucket.Heading] = append(grouped[bucket.Heading], entry)
			}
		}
	}
	return grouped
}

func matchesBucket(text string, bucket featureBucket) bool {
	for _, kw := range bucket.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func rowLabel(row spec.Row) string {
	for _, cell := range row.Cells {
		if cell.Header && cell.Text != "" {
			return cell.Text
		}
	}
	return ""
}

func manufacturerFor(productID string) string {
	// Longest prefix wins so TCF beats T.
	prefixes := make([]string, 0, len(manufacturerPrefixes))
	for p := range manufacturerPrefixes {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	upper := strings.ToUpper(productID)
	for _, p := range prefixes {
		if strings.HasPrefix(upper, p) {
			return manufacturerPrefixes[p]
		}
	}
	return defaultManufacturer
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

const documentStyle = `    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container { max-width: 800px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px; }
        h1 { color: #333; text-align: center; border-bottom: 2px solid #007bff; padding-bottom: 10px; }
        .section-title { background-color: #007bff; color: white; padding: 10px; font-weight: bold; border-radius: 4px; margin-top: 20px; }
        table { width: 100%; border-collapse: collapse; margin: 10px 0; }
        th, td { border: 1px solid #ddd; padding: 12px; text-align: left; }
        th { background-color: #f8f9fa; font-weight: bold; }
        .product-info { background-color: #e9ecef; padding: 15px; border-radius: 4px; margin-bottom: 20px; }
        .product-id { font-size: 18px; font-weight: bold; color: #007bff; }
    </style>
`
