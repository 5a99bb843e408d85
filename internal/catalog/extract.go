package catalog

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cometharvester/internal/locator"
)

// DiscontinuedMarker flags a product that is no longer sold; such records
// are excluded from output.
const DiscontinuedMarker = "販売終了"

var (
	// Identities are prefixed with ◆ in result containers.
	identityRe = regexp.MustCompile(`◆\s*([A-Z0-9][A-Z0-9#-]*)`)
	// Labeled fallback for sections that drop the ◆ marker.
	labeledIdentityRe = regexp.MustCompile(`品番[:：]?\s*([A-Z0-9][A-Z0-9#-]*)`)
)

// Extractor builds Records out of result-page containers. All locator
// resolution runs on a static DOM snapshot; only hrefs leave this package.
type Extractor struct {
	imagePrefix string
	logger      *slog.Logger
}

// NewExtractor creates an Extractor. imagePrefix narrows product-image
// candidates to the catalog's asset host; empty accepts any image.
func NewExtractor(imagePrefix string, logger *slog.Logger) *Extractor {
	return &Extractor{
		imagePrefix: imagePrefix,
		logger:      logger.With("component", "record_extractor"),
	}
}

// Extract builds a Record from one result container. Identity is a hard
// requirement; discontinued products are dropped. Every optional artifact
// resolves independently so a single miss never aborts the rest.
func (e *Extractor) Extract(container *goquery.Selection, baseURL string) *Record {
	text := container.Text()

	id := findIdentity(text)
	if id == "" {
		return nil
	}
	if e.isDiscontinued(container, text) {
		e.logger.Debug("skipping discontinued product", "product_id", id)
		return nil
	}

	base, _ := url.Parse(baseURL)
	rec := &Record{
		ProductID:   id,
		ProductName: labeledLine(text, "商品名"),
		SeriesName:  labeledLine(text, "シリーズ"),
		RawText:     text,
	}
	if rec.ProductName == "" {
		rec.ProductName = "Unknown"
	}
	if rec.SeriesName == "" {
		rec.SeriesName = "Unknown"
	}

	rec.Diagram = e.resolveDiagram(container, id, base)
	rec.ExplodedDiagram = refFrom(locator.Resolve(container, locator.Cascade("分解図", "exploded", "bunkai")), base)
	rec.Specs = refFrom(locator.Resolve(container, locator.Cascade("仕様一覧", "spec")), base)
	rec.Components = refFrom(locator.Resolve(container, componentStrategies()), base)
	rec.ColorVariants = refFrom(locator.Resolve(container, colorStrategies()), base)
	rec.Images = e.imageRefs(container, base)

	return rec
}

// ExtractFallback is the lower-confidence page-wide detection used when no
// container selector matched anything: every diagram link on the page seeds
// a minimal record from its parent's text.
func (e *Extractor) ExtractFallback(doc *goquery.Document, baseURL string) []*Record {
	base, _ := url.Parse(baseURL)
	var records []*Record
	doc.Find("a").Each(func(i int, link *goquery.Selection) {
		if !strings.Contains(link.Text(), "商品図") {
			return
		}
		parent := link.Parent()
		parentText := parent.Text()

		id := findIdentity(parentText)
		if id == "" {
			id = fmt.Sprintf("Product_%d", len(records)+1)
		}
		href, _ := link.Attr("href")
		records = append(records, &Record{
			ProductID:   id,
			ProductName: "Unknown",
			SeriesName:  "Unknown",
			Diagram:     ArtifactRef{Href: absolutize(base, href), Label: strings.TrimSpace(link.Text())},
			RawText:     parentText,
		})
	})
	return records
}

// resolveDiagram applies the identity disambiguation pass: among all
// diagram-labeled links, prefer the one whose filename carries the identity
// as a whole token, then fall back to the standard cascade.
func (e *Extractor) resolveDiagram(container *goquery.Selection, id string, base *url.URL) ArtifactRef {
	candidates := locator.AllLinkTextMatches(container, "商品図")
	if len(candidates) > 0 {
		return refFrom(locator.PreferIdentity(candidates, id), base)
	}
	return refFrom(locator.Resolve(container, locator.Cascade("商品図", "diagram", "drawing")), base)
}

// isDiscontinued inspects the designated price/status field for the
// discontinued marker, falling back to price-bearing lines when the markup
// carries no such field.
func (e *Extractor) isDiscontinued(container *goquery.Selection, text string) bool {
	status := container.Find("[class*='price'], [class*='status']").Text()
	if strings.TrimSpace(status) != "" {
		return strings.Contains(status, DiscontinuedMarker)
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "価格") && strings.Contains(line, DiscontinuedMarker) {
			return true
		}
	}
	return false
}

func (e *Extractor) imageRefs(container *goquery.Selection, base *url.URL) []ArtifactRef {
	var refs []ArtifactRef
	container.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		if e.imagePrefix != "" && !strings.HasPrefix(src, e.imagePrefix) {
			return
		}
		refs = append(refs, ArtifactRef{Href: absolutize(base, src)})
	})
	return refs
}

func componentStrategies() []locator.Strategy {
	return []locator.Strategy{
		locator.LabeledLink("構成品"),
		locator.LinkTextContains("構成品"),
		locator.LinkTextContains("セット内訳"),
		locator.HrefContains("component"),
		locator.KeywordScan("構成品", "セット内訳"),
	}
}

func colorStrategies() []locator.Strategy {
	return []locator.Strategy{
		locator.LinkTextContains("カラーバリエーション"),
		locator.LinkTextContains("カラー"),
		locator.HrefContains("color"),
	}
}

func findIdentity(text string) string {
	if m := identityRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := labeledIdentityRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// labeledLine returns the value portion of the first line containing the
// label, with the label and any separator stripped.
func labeledLine(text, label string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, label)
		if idx < 0 {
			continue
		}
		value := line[idx+len(label):]
		value = strings.TrimLeft(value, " 　:：")
		if value != "" {
			return value
		}
	}
	return ""
}

func refFrom(m *locator.Match, base *url.URL) ArtifactRef {
	if m == nil {
		return ArtifactRef{}
	}
	return ArtifactRef{Href: absolutize(base, m.Href), Label: m.Text}
}

func absolutize(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
