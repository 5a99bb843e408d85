package catalog

import "strings"

// ArtifactRef points at a downloadable or navigable artifact. Href is the
// absolute URL extracted from the result page; Label is the visible link text.
// Hrefs survive navigation, live DOM handles do not, so downstream code always
// prefers Href and re-resolves elements fresh after any page change.
type ArtifactRef struct {
	Href  string
	Label string
}

// IsZero reports whether the reference carries nothing usable.
func (r ArtifactRef) IsZero() bool {
	return r.Href == "" && r.Label == ""
}

// Record is a single catalog product as extracted from one result container.
// The identity (品番) is the primary key for dedup and output directory naming.
type Record struct {
	ProductID   string
	ProductName string
	SeriesName  string

	Diagram         ArtifactRef // 商品図
	ExplodedDiagram ArtifactRef // 分解図
	Specs           ArtifactRef // 仕様一覧
	Components      ArtifactRef // 構成品 / セット内訳
	ColorVariants   ArtifactRef // カラーバリエーション entry point

	// Images holds candidate product image URLs in document order.
	// Processing consumes at most MaxImagesPerRecord of them.
	Images []ArtifactRef

	// RawText is the container's full visible text, kept for diagnostics only.
	RawText string
}

// MaxImagesPerRecord caps how many product images are downloaded per record.
const MaxImagesPerRecord = 2

// Component is one entry of a product's bill of components.
type Component struct {
	ID   string
	Name string
}

// MergeComponents deduplicates component entries by id, preferring the longest
// non-empty name, and drops entries whose id equals the owning product's id.
func MergeComponents(entries []Component, productID string) []Component {
	byID := make(map[string]int, len(entries))
	var out []Component
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" || strings.EqualFold(id, productID) {
			continue
		}
		if idx, ok := byID[id]; ok {
			if len(e.Name) > len(out[idx].Name) {
				out[idx].Name = e.Name
			}
			continue
		}
		byID[id] = len(out)
		out = append(out, Component{ID: id, Name: strings.TrimSpace(e.Name)})
	}
	return out
}
