package crawler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cometharvester/internal/catalog"
	"cometharvester/internal/config"
	"cometharvester/internal/render"
	"cometharvester/internal/runlog"
)

// Session is the browser surface the driver drives. *browser.Session
// implements it; tests substitute a scripted fake so the full harvest flow
// runs without a browser.
type Session interface {
	Navigate(url string) error
	WaitReady() error
	HTML() (string, error)
	CurrentURL() string
	SubmitSearch(query string) error
	OpenRef(ref catalog.ArtifactRef) (bool, error)
	CloseRef() error
	ClickImage(src string) (bool, error)
	SaveCurrent(dir string) (string, error)
	LargestVisibleImage(excludeSrc string) (string, error)
	NextPage(selectors []string) (bool, error)
}

// Fetcher saves a URL into a directory and returns the stored filename.
// *download.Downloader implements it.
type Fetcher interface {
	Download(ctx context.Context, rawURL, dir string) (string, error)
}

// Stats summarizes one harvest run.
type Stats struct {
	Pages     int
	Processed int
	Skipped   int
	Downloads int
	Failures  int
}

// maxPages bounds the pagination walk against sites whose next control
// never disappears.
const maxPages = 100

// Driver runs the harvest: submit the query, walk result pages, extract
// records, and process each one's artifacts. Dedup by product identity is
// owned here and spans pages and color-variant expansion.
type Driver struct {
	cfg       *config.Config
	sess      Session
	fetch     Fetcher
	extractor *catalog.Extractor
	renderer  *render.Renderer
	rlog      *runlog.Log
	logger    *slog.Logger
	now       func() time.Time

	seen  map[string]bool
	stats Stats
}

// New creates a Driver. rlog may be nil, in which case audit lines are
// dropped.
func New(cfg *config.Config, sess Session, fetch Fetcher, rlog *runlog.Log, logger *slog.Logger) *Driver {
	return &Driver{
		cfg:       cfg,
		sess:      sess,
		fetch:     fetch,
		extractor: catalog.NewExtractor(cfg.Selectors.ImagePrefix, logger),
		renderer:  render.NewRenderer(cfg.Colors, logger),
		rlog:      rlog,
		logger:    logger.With("component", "crawler"),
		now:       time.Now,
		seen:      make(map[string]bool),
	}
}

// Run executes a full harvest for one query and returns the run stats.
// Extraction and processing errors are counted, logged, and survived; only
// navigation-level failures abort the run.
func (d *Driver) Run(ctx context.Context, query string) (Stats, error) {
	d.logf("query: %s", query)

	if err := d.sess.Navigate(d.cfg.Site.BaseURL); err != nil {
		return d.stats, err
	}
	if err := d.sess.WaitReady(); err != nil {
		return d.stats, err
	}
	if err := d.sess.SubmitSearch(query); err != nil {
		return d.stats, err
	}

	prevURL := ""
	prevLen := -1
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return d.stats, err
		}

		html, err := d.sess.HTML()
		if err != nil {
			return d.stats, err
		}
		pageURL := d.sess.CurrentURL()
		if pageURL == prevURL && len(html) == prevLen {
			d.logger.Debug("page unchanged after advancing, stopping", "page", page)
			break
		}
		prevURL, prevLen = pageURL, len(html)
		d.stats.Pages++

		records, err := d.extractResults(html, pageURL)
		if err != nil {
			d.stats.Failures++
			d.logger.Warn("result page parse failed", "page", page, "error", err)
		}
		d.logf("page %d: %d records", page, len(records))

		for _, rec := range records {
			if d.seen[rec.ProductID] {
				d.stats.Skipped++
				continue
			}
			d.seen[rec.ProductID] = true
			d.processRecord(ctx, rec, true)
		}

		advanced, err := d.sess.NextPage(d.cfg.Selectors.NextControls)
		if err != nil {
			d.logger.Warn("pagination failed", "page", page, "error", err)
			break
		}
		if !advanced {
			break
		}
	}

	d.logf("done: pages=%d processed=%d skipped=%d downloads=%d failures=%d",
		d.stats.Pages, d.stats.Processed, d.stats.Skipped, d.stats.Downloads, d.stats.Failures)
	return d.stats, nil
}

// extractResults parses one result page into records. The container
// selector cascade stops at the first selector that yields at least one
// record; when the whole cascade comes up empty the page-wide fallback
// detection runs instead.
func (d *Driver) extractResults(html, pageURL string) ([]*catalog.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base := pageURL
	if base == "" {
		base = d.cfg.Site.BaseURL
	}

	for _, sel := range d.cfg.Selectors.Containers {
		var records []*catalog.Record
		doc.Find(sel).Each(func(_ int, c *goquery.Selection) {
			if rec := d.extractor.Extract(c, base); rec != nil {
				records = append(records, rec)
			}
		})
		if len(records) > 0 {
			return records, nil
		}
	}
	return d.extractor.ExtractFallback(doc, base), nil
}

func (d *Driver) logf(format string, args ...any) {
	if d.rlog != nil {
		d.rlog.Printf(format, args...)
	}
}
