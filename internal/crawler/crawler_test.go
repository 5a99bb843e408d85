package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cometharvester/internal/catalog"
	"cometharvester/internal/config"
	"cometharvester/internal/download"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeSession serves scripted result pages and per-href artifact pages so
// the full harvest flow runs without a browser.
type fakeSession struct {
	pages      []string
	idx        int
	refPages   map[string]string
	openStack  []string
	nextAlways bool

	// imageTabs maps a thumbnail src to the URL of the tab a click opens;
	// when lightboxSrc is set instead, clicks reveal it in place.
	imageTabs   map[string]string
	lightboxSrc string

	searched  string
	navigated []string
	clicked   []string
	excluded  []string
}

func (f *fakeSession) Navigate(url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeSession) WaitReady() error { return nil }

func (f *fakeSession) SubmitSearch(query string) error {
	f.searched = query
	return nil
}

func (f *fakeSession) HTML() (string, error) {
	if n := len(f.openStack); n > 0 {
		return f.refPages[f.openStack[n-1]], nil
	}
	return f.pages[f.idx], nil
}

func (f *fakeSession) CurrentURL() string {
	if n := len(f.openStack); n > 0 {
		return f.openStack[n-1]
	}
	return fmt.Sprintf("https://example.com/results?page=%d", f.idx+1)
}

func (f *fakeSession) OpenRef(ref catalog.ArtifactRef) (bool, error) {
	f.openStack = append(f.openStack, ref.Href)
	return true, nil
}

func (f *fakeSession) CloseRef() error {
	if n := len(f.openStack); n > 0 {
		f.openStack = f.openStack[:n-1]
	}
	return nil
}

func (f *fakeSession) SaveCurrent(dir string) (string, error) {
	name := "saved.bin"
	return name, os.WriteFile(filepath.Join(dir, name), []byte("saved"), 0o644)
}

func (f *fakeSession) ClickImage(src string) (bool, error) {
	f.clicked = append(f.clicked, src)
	if url, ok := f.imageTabs[src]; ok {
		f.openStack = append(f.openStack, url)
		return true, nil
	}
	if f.lightboxSrc != "" {
		return false, nil
	}
	return false, catalog.ErrNoMatch
}

func (f *fakeSession) LargestVisibleImage(excludeSrc string) (string, error) {
	f.excluded = append(f.excluded, excludeSrc)
	if f.lightboxSrc == excludeSrc {
		return "", nil
	}
	return f.lightboxSrc, nil
}

func (f *fakeSession) NextPage(selectors []string) (bool, error) {
	if f.idx+1 < len(f.pages) {
		f.idx++
		return true, nil
	}
	return f.nextAlways, nil
}

// fakeFetcher writes a stub file per download and records every URL.
type fakeFetcher struct {
	urls []string
}

func (f *fakeFetcher) Download(ctx context.Context, rawURL, dir string) (string, error) {
	f.urls = append(f.urls, rawURL)
	name := download.FilenameFromURL(rawURL)
	if name == "" {
		name = "artifact.bin"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return name, os.WriteFile(filepath.Join(dir, name), []byte("data"), 0o644)
}

const resultPage1 = `<html><body>
<div class="product">
  <p>◆CS902B</p>
  <p>商品名: ネオレストNX1</p>
  <p>シリーズ: ネオレスト</p>
  <a href="https://files.example.com/dl/CS902B.pdf">商品図</a>
  <a href="/spec/902">仕様一覧</a>
</div>
</body></html>`

const resultPage2 = `<html><body>
<div class="product">
  <p>◆CS902B</p>
  <a href="https://files.example.com/dl/CS902B.pdf">商品図</a>
</div>
<div class="product">
  <p>◆CS903B</p>
  <a href="https://files.example.com/dl/CS903B.pdf">商品図</a>
</div>
</body></html>`

const specPage = `<html><body><div class="spec-area"><table>
  <tr><th colspan="2">基本情報</th></tr>
  <tr><th>質量</th><td>28kg</td></tr>
</table></div></body></html>`

func newTestDriver(t *testing.T, sess Session, fetch Fetcher) (*Driver, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.Root = t.TempDir()
	return New(cfg, sess, fetch, nil, testLogger), cfg
}

func TestRunHarvestsAcrossPages(t *testing.T) {
	sess := &fakeSession{
		pages: []string{resultPage1, resultPage2},
		refPages: map[string]string{
			"https://example.com/spec/902": specPage,
		},
	}
	fetch := &fakeFetcher{}
	driver, cfg := newTestDriver(t, sess, fetch)

	stats, err := driver.Run(context.Background(), "ネオレスト")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if sess.searched != "ネオレスト" {
		t.Errorf("searched = %q", sess.searched)
	}
	if stats.Pages != 2 {
		t.Errorf("pages = %d, want 2", stats.Pages)
	}
	if stats.Processed != 2 {
		t.Errorf("processed = %d, want 2", stats.Processed)
	}
	// CS902B reappears on page 2 and must be skipped.
	if stats.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.Skipped)
	}

	diagram := filepath.Join(cfg.Output.Root, "CS902B", cfg.Output.DiagramFolder, "CS902B.pdf")
	if _, err := os.Stat(diagram); err != nil {
		t.Errorf("diagram not saved: %v", err)
	}
	doc := filepath.Join(cfg.Output.Root, "CS902B", "CS902B_template.html")
	data, err := os.ReadFile(doc)
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	if !strings.Contains(string(data), "質量") || !strings.Contains(string(data), "品番: CS902B") {
		t.Errorf("document content wrong:\n%s", data)
	}
}

func TestRunStopsWhenPageStopsChanging(t *testing.T) {
	sess := &fakeSession{
		pages:      []string{resultPage1},
		nextAlways: true,
	}
	driver, _ := newTestDriver(t, sess, &fakeFetcher{})

	stats, err := driver.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Pages != 1 {
		t.Errorf("pages = %d, want 1 despite a sticky next control", stats.Pages)
	}
}

func TestRunHonorsContextCancel(t *testing.T) {
	sess := &fakeSession{pages: []string{resultPage1}}
	driver, _ := newTestDriver(t, sess, &fakeFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := driver.Run(ctx, "q"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestColorVariantExpansion(t *testing.T) {
	parentPage := `<html><body>
	<div class="product">
	  <p>◆CS902B</p>
	  <p>商品名: ネオレストNX1</p>
	  <a href="https://files.example.com/dl/CS902B.pdf">商品図</a>
	  <a href="/colors/902">カラーバリエーション</a>
	</div>
	</body></html>`
	variantPage := `<html><body>
	<div class="product">
	  <p>◆CS902B</p>
	  <a href="https://files.example.com/dl/CS902B.pdf">商品図</a>
	</div>
	<div class="product">
	  <p>◆CS902B#SC1</p>
	  <a href="https://files.example.com/dl/CS902B_SC1.pdf">商品図</a>
	</div>
	</body></html>`

	sess := &fakeSession{
		pages: []string{parentPage},
		refPages: map[string]string{
			"https://example.com/colors/902": variantPage,
		},
	}
	fetch := &fakeFetcher{}
	driver, cfg := newTestDriver(t, sess, fetch)

	stats, err := driver.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Parent plus one new variant; the parent's own entry on the variant
	// page is a duplicate.
	if stats.Processed != 2 {
		t.Errorf("processed = %d, want 2", stats.Processed)
	}
	if stats.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", stats.Skipped)
	}
	variantDiagram := filepath.Join(cfg.Output.Root, "CS902BSC1", cfg.Output.DiagramFolder, "CS902B_SC1.pdf")
	if _, err := os.Stat(variantDiagram); err != nil {
		t.Errorf("variant diagram not saved: %v", err)
	}
}

const imageResultPage = `<html><body>
<div class="product">
  <p>◆CS902B</p>
  <img src="https://search.toto.jp/img/CS902B_thumb.jpg">
</div>
</body></html>`

func TestImageClickInNewTabSavesFullSize(t *testing.T) {
	const thumb = "https://search.toto.jp/img/CS902B_thumb.jpg"
	sess := &fakeSession{
		pages:     []string{imageResultPage},
		imageTabs: map[string]string{thumb: "https://files.example.com/img/CS902B_full.jpg"},
	}
	fetch := &fakeFetcher{}
	driver, cfg := newTestDriver(t, sess, fetch)

	if _, err := driver.Run(context.Background(), "q"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sess.clicked) != 1 || sess.clicked[0] != thumb {
		t.Fatalf("clicked = %v, want the thumbnail", sess.clicked)
	}
	full := filepath.Join(cfg.Output.Root, "CS902B", "CS902B_full.jpg")
	if _, err := os.Stat(full); err != nil {
		t.Errorf("full-size image not saved: %v", err)
	}
	for _, u := range fetch.urls {
		if u == thumb {
			t.Errorf("fetched the thumbnail instead of the full-size image")
		}
	}
	if len(sess.openStack) != 0 {
		t.Errorf("image tab not restored, open stack = %v", sess.openStack)
	}
}

func TestImageClickLightboxPicksLargestExcludingThumbnail(t *testing.T) {
	const thumb = "https://search.toto.jp/img/CS902B_thumb.jpg"
	sess := &fakeSession{
		pages:       []string{imageResultPage},
		lightboxSrc: "https://search.toto.jp/img/CS902B_zoom.jpg",
	}
	fetch := &fakeFetcher{}
	driver, cfg := newTestDriver(t, sess, fetch)

	if _, err := driver.Run(context.Background(), "q"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sess.excluded) == 0 || sess.excluded[0] != thumb {
		t.Errorf("excluded = %v, want the clicked thumbnail first", sess.excluded)
	}
	zoom := filepath.Join(cfg.Output.Root, "CS902B", "CS902B_zoom.jpg")
	if _, err := os.Stat(zoom); err != nil {
		t.Errorf("lightbox image not saved: %v", err)
	}
	for _, u := range fetch.urls {
		if u == thumb {
			t.Errorf("fetched the thumbnail instead of the lightbox image")
		}
	}
}

func TestImageClickFailureFetchesThumbnail(t *testing.T) {
	sess := &fakeSession{pages: []string{imageResultPage}}
	fetch := &fakeFetcher{}
	driver, cfg := newTestDriver(t, sess, fetch)

	if _, err := driver.Run(context.Background(), "q"); err != nil {
		t.Fatalf("run: %v", err)
	}
	file := filepath.Join(cfg.Output.Root, "CS902B", "CS902B_thumb.jpg")
	if _, err := os.Stat(file); err != nil {
		t.Errorf("thumbnail fallback not saved: %v", err)
	}
}

func TestDocumentNeverOverwritten(t *testing.T) {
	driver, cfg := newTestDriver(t, &fakeSession{}, &fakeFetcher{})
	driver.now = func() time.Time { return time.Unix(1700000000, 0) }
	rec := &catalog.Record{ProductID: "CS902B"}

	driver.writeDocument(cfg.Output.Root, rec, "<html>v1</html>")
	target := filepath.Join(cfg.Output.Root, "CS902B_template.html")
	first, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}

	// An identical rewrite is skipped silently.
	driver.writeDocument(cfg.Output.Root, rec, "<html>v1</html>")
	entries, err := os.ReadDir(cfg.Output.Root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("identical rewrite created files: %d entries", len(entries))
	}

	// Differing content lands in a timestamped sibling; the original
	// bytes stay put.
	driver.writeDocument(cfg.Output.Root, rec, "<html>v2</html>")
	after, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reread document: %v", err)
	}
	if !bytes.Equal(first, after) {
		t.Error("existing document was overwritten")
	}
	stamp := time.Unix(1700000000, 0).Format("20060102_150405")
	sibling := filepath.Join(cfg.Output.Root, "CS902B_template_"+stamp+".html")
	data, err := os.ReadFile(sibling)
	if err != nil {
		t.Fatalf("timestamped sibling not written: %v", err)
	}
	if string(data) != "<html>v2</html>" {
		t.Errorf("sibling content = %q", data)
	}
}

func TestScanFileLinksPrefersIdentity(t *testing.T) {
	html := `<html><body>
	  <a href="/dl/CS902BVN.pdf">download</a>
	  <a href="/dl/CS902B.pdf">download</a>
	  <a href="/other/page">more</a>
	</body></html>`
	got := scanFileLinks(html, "https://example.com/view", "CS902B")
	if got != "https://example.com/dl/CS902B.pdf" {
		t.Errorf("scanFileLinks = %q", got)
	}
}

func TestScanFileLinksEmptyWhenNoFiles(t *testing.T) {
	if got := scanFileLinks(`<html><body><a href="/page">x</a></body></html>`, "https://example.com/", "X"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestIsFileURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://example.com/dl/a.pdf", true},
		{"https://example.com/dl/a.PDF?v=1", true},
		{"https://example.com/dl/a.dxf", true},
		{"https://example.com/search?q=a.pdf", false},
		{"https://example.com/view", false},
	}
	for _, tc := range cases {
		if got := isFileURL(tc.url); got != tc.want {
			t.Errorf("isFileURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
