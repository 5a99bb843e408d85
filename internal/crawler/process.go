package crawler

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"cometharvester/internal/catalog"
	"cometharvester/internal/download"
	"cometharvester/internal/locator"
	"cometharvester/internal/render"
	"cometharvester/internal/spec"
)

// fileExtensions marks URLs that point at a raw artifact rather than a page.
var fileExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".dxf": true, ".dwg": true, ".tif": true, ".tiff": true, ".zip": true,
}

// processRecord handles everything one record owns: output directory,
// images, diagrams, spec document, and color-variant expansion. Each
// artifact fails independently.
func (d *Driver) processRecord(ctx context.Context, rec *catalog.Record, expandColors bool) {
	d.stats.Processed++
	dir := filepath.Join(d.cfg.Output.Root, download.Sanitize(rec.ProductID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.fail(rec, "create output dir", err)
		return
	}
	d.logf("product %s (%s)", rec.ProductID, rec.ProductName)

	d.saveImages(ctx, rec, dir)

	diagramDir := filepath.Join(dir, d.cfg.Output.DiagramFolder)
	d.saveDiagram(ctx, rec, rec.Diagram, diagramDir, "diagram")
	d.saveDiagram(ctx, rec, rec.ExplodedDiagram, diagramDir, "exploded diagram")

	components := d.collectComponents(rec)
	d.renderDocument(rec, dir, components)

	if expandColors {
		d.expandColorVariants(ctx, rec)
	}
}

// saveImages stores up to MaxImagesPerRecord full-size product images, one
// per thumbnail. When every candidate fails or none exist, the largest
// image currently rendered on the page is taken as a last resort.
func (d *Driver) saveImages(ctx context.Context, rec *catalog.Record, dir string) {
	count := 0
	for _, ref := range rec.Images {
		if count >= catalog.MaxImagesPerRecord {
			break
		}
		if d.saveFullImage(ctx, rec, ref, dir) {
			count++
		}
	}
	if count > 0 {
		return
	}
	src, err := d.sess.LargestVisibleImage("")
	if err != nil || src == "" {
		return
	}
	d.downloadInto(ctx, rec, src, dir, "image")
}

// saveFullImage clicks a thumbnail to reach the full-size image behind it.
// A click that opens a new tab downloads from that tab; a click that swaps
// in a lightbox picks the largest rendered image that is not the thumbnail
// itself. When the thumbnail cannot be clicked at all, its own URL is
// fetched directly.
func (d *Driver) saveFullImage(ctx context.Context, rec *catalog.Record, ref catalog.ArtifactRef, dir string) bool {
	newTab, err := d.sess.ClickImage(ref.Href)
	if err != nil {
		d.logger.Debug("image click failed, fetching thumbnail directly",
			"product_id", rec.ProductID, "src", ref.Href, "error", err)
		return d.downloadInto(ctx, rec, ref.Href, dir, "image")
	}

	if newTab {
		defer d.closeRef()
		if err := d.sess.WaitReady(); err != nil {
			d.fail(rec, "image load", err)
			return false
		}
		landed := d.sess.CurrentURL()
		if landed != "" && d.downloadInto(ctx, rec, landed, dir, "image") {
			return true
		}
		name, err := d.sess.SaveCurrent(dir)
		if err != nil {
			d.fail(rec, "image browser save", err)
			return false
		}
		d.stats.Downloads++
		d.logf("%s: saved image %s", rec.ProductID, name)
		return true
	}

	src, err := d.sess.LargestVisibleImage(ref.Href)
	if err != nil || src == "" {
		d.logger.Debug("no larger image after click, fetching thumbnail",
			"product_id", rec.ProductID, "src", ref.Href)
		return d.downloadInto(ctx, rec, ref.Href, dir, "image")
	}
	return d.downloadInto(ctx, rec, src, dir, "image")
}

// saveDiagram fetches a diagram-like artifact. Direct file URLs download
// straight over HTTP. Page URLs are followed in the browser: landing on a
// file downloads it (with an in-browser save as fallback), landing on an
// intermediate page triggers a file-link scan with identity preference.
func (d *Driver) saveDiagram(ctx context.Context, rec *catalog.Record, ref catalog.ArtifactRef, dir, kind string) {
	if ref.IsZero() {
		return
	}
	if ref.Href != "" && isFileURL(ref.Href) {
		d.downloadInto(ctx, rec, ref.Href, dir, kind)
		return
	}

	if _, err := d.sess.OpenRef(ref); err != nil {
		d.fail(rec, kind+" open", err)
		return
	}
	defer d.closeRef()
	if err := d.sess.WaitReady(); err != nil {
		d.fail(rec, kind+" load", err)
		return
	}

	landed := d.sess.CurrentURL()
	if isFileURL(landed) {
		if d.downloadInto(ctx, rec, landed, dir, kind) {
			return
		}
		// The server refused a plain HTTP fetch; the browser already holds
		// the bytes, so save from inside the page.
		name, err := d.sess.SaveCurrent(dir)
		if err != nil {
			d.fail(rec, kind+" browser save", err)
			return
		}
		d.stats.Downloads++
		d.logf("%s: saved %s %s", rec.ProductID, kind, name)
		return
	}

	html, err := d.sess.HTML()
	if err != nil {
		d.fail(rec, kind+" read page", err)
		return
	}
	target := scanFileLinks(html, landed, rec.ProductID)
	if target == "" {
		d.fail(rec, kind, catalog.ErrNoMatch)
		return
	}
	d.downloadInto(ctx, rec, target, dir, kind)
}

// collectComponents opens the components page, if any, and parses the set
// entries out of it.
func (d *Driver) collectComponents(rec *catalog.Record) []catalog.Component {
	if rec.Components.IsZero() {
		return nil
	}
	if _, err := d.sess.OpenRef(rec.Components); err != nil {
		d.fail(rec, "components open", err)
		return nil
	}
	defer d.closeRef()
	if err := d.sess.WaitReady(); err != nil {
		d.fail(rec, "components load", err)
		return nil
	}
	doc := d.currentDoc(rec, "components")
	if doc == nil {
		return nil
	}
	return catalog.ParseComponents(doc, rec.ProductID)
}

// renderDocument extracts the spec table and writes the fixed-layout product
// document. Nothing is written when neither spec rows nor components exist.
func (d *Driver) renderDocument(rec *catalog.Record, dir string, components []catalog.Component) {
	rows := d.fetchSpecRows(rec)
	if len(rows) == 0 && len(components) == 0 {
		d.logger.Debug("no spec rows or components, skipping document", "product_id", rec.ProductID)
		return
	}
	html := d.renderer.Render(rows, components, render.Identity{
		ProductID:   rec.ProductID,
		ProductName: rec.ProductName,
		SeriesName:  rec.SeriesName,
	})
	d.writeDocument(dir, rec, html)
}

func (d *Driver) fetchSpecRows(rec *catalog.Record) []spec.Row {
	if rec.Specs.IsZero() {
		return nil
	}
	if _, err := d.sess.OpenRef(rec.Specs); err != nil {
		d.fail(rec, "spec open", err)
		return nil
	}
	defer d.closeRef()
	if err := d.sess.WaitReady(); err != nil {
		d.fail(rec, "spec load", err)
		return nil
	}
	doc := d.currentDoc(rec, "spec")
	if doc == nil {
		return nil
	}
	table := spec.FindSpecTable(doc)
	if table == nil {
		d.logger.Debug("no spec table on page", "product_id", rec.ProductID)
		return nil
	}
	return spec.ExtractRows(table)
}

// writeDocument writes the rendered document as <id>_template.html. An
// identical existing file is left alone; a differing one is never
// overwritten, the new content gets a timestamped name instead.
func (d *Driver) writeDocument(dir string, rec *catalog.Record, html string) {
	name := download.Sanitize(rec.ProductID) + "_template.html"
	target := filepath.Join(dir, name)
	data := []byte(html)

	if existing, err := os.ReadFile(target); err == nil {
		if bytes.Equal(existing, data) {
			d.logger.Debug("document unchanged", "path", target)
			return
		}
		stamp := d.now().Format("20060102_150405")
		target = filepath.Join(dir, strings.TrimSuffix(name, ".html")+"_"+stamp+".html")
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		d.fail(rec, "write document", err)
		return
	}
	d.logf("%s: wrote %s", rec.ProductID, filepath.Base(target))
}

// expandColorVariants opens the color-variation page and processes every
// unseen variant as its own record. Variants inherit the parent's name and
// series when their own container carries none, and are never expanded
// recursively.
func (d *Driver) expandColorVariants(ctx context.Context, parent *catalog.Record) {
	if parent.ColorVariants.IsZero() {
		return
	}
	if _, err := d.sess.OpenRef(parent.ColorVariants); err != nil {
		d.fail(parent, "color variants open", err)
		return
	}
	defer d.closeRef()
	if err := d.sess.WaitReady(); err != nil {
		d.fail(parent, "color variants load", err)
		return
	}
	html, err := d.sess.HTML()
	if err != nil {
		d.fail(parent, "color variants read", err)
		return
	}
	records, err := d.extractResults(html, d.sess.CurrentURL())
	if err != nil {
		d.fail(parent, "color variants parse", err)
		return
	}
	for _, rec := range records {
		if d.seen[rec.ProductID] {
			d.stats.Skipped++
			continue
		}
		d.seen[rec.ProductID] = true
		if rec.ProductName == "Unknown" {
			rec.ProductName = parent.ProductName
		}
		if rec.SeriesName == "Unknown" {
			rec.SeriesName = parent.SeriesName
		}
		d.processRecord(ctx, rec, false)
	}
}

func (d *Driver) downloadInto(ctx context.Context, rec *catalog.Record, rawURL, dir, kind string) bool {
	if rawURL == "" {
		return false
	}
	name, err := d.fetch.Download(ctx, rawURL, dir)
	if err != nil {
		d.fail(rec, kind+" download", err)
		return false
	}
	d.stats.Downloads++
	d.logf("%s: saved %s %s", rec.ProductID, kind, name)
	return true
}

func (d *Driver) currentDoc(rec *catalog.Record, kind string) *goquery.Document {
	html, err := d.sess.HTML()
	if err != nil {
		d.fail(rec, kind+" read page", err)
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		d.fail(rec, kind+" parse page", err)
		return nil
	}
	return doc
}

func (d *Driver) closeRef() {
	if err := d.sess.CloseRef(); err != nil {
		d.logger.Warn("tab restore failed", "error", err)
	}
}

func (d *Driver) fail(rec *catalog.Record, op string, err error) {
	d.stats.Failures++
	d.logger.Warn(op+" failed", "product_id", rec.ProductID, "error", err)
	d.logf("%s: %s failed: %v", rec.ProductID, op, err)
}

// scanFileLinks returns the best file-like link on an intermediate page,
// preferring one whose filename carries the product identity as a whole
// token.
func scanFileLinks(html, pageURL, productID string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	base, _ := url.Parse(pageURL)
	var matches []locator.Match
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		abs := resolveURL(base, href)
		if !isFileURL(abs) {
			return
		}
		matches = append(matches, locator.Match{
			Text: strings.TrimSpace(link.Text()),
			Href: abs,
		})
	})
	m := locator.PreferIdentity(matches, productID)
	if m == nil {
		return ""
	}
	return m.Href
}

func isFileURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return fileExtensions[strings.ToLower(path.Ext(u.Path))]
}

func resolveURL(base *url.URL, href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
