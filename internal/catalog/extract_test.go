package catalog

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const baseURL = "https://www.com-et.com/jp/"

func container(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	sel := doc.Find(".product")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	return sel
}

const productHTML = `<div class="product">
  <p>◆CS902B</p>
  <p>商品名: ネオレストNX1</p>
  <p>シリーズ: ネオレスト</p>
  <p class="price">希望小売価格: ￥500,000</p>
  <img src="https://search.toto.jp/img/CS902B_main.jpg">
  <img src="https://search.toto.jp/img/CS902B_sub.jpg">
  <img src="/assets/icon.png">
  <a href="/dl/CS902BVN.pdf">商品図</a>
  <a href="/dl/CS902B.pdf">商品図</a>
  <a href="/dl/CS902B_bunkai.pdf">分解図</a>
  <a href="/spec?id=902">仕様一覧</a>
  <a href="/parts?id=902">構成品</a>
  <a href="/colors?id=902">カラーバリエーション</a>
</div>`

func TestExtractFullRecord(t *testing.T) {
	e := NewExtractor("https://search.toto.jp/img/", testLogger)
	rec := e.Extract(container(t, productHTML), baseURL)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ProductID != "CS902B" {
		t.Errorf("product id = %q", rec.ProductID)
	}
	if rec.ProductName != "ネオレストNX1" {
		t.Errorf("product name = %q", rec.ProductName)
	}
	if rec.SeriesName != "ネオレスト" {
		t.Errorf("series = %q", rec.SeriesName)
	}
	// Identity disambiguation: CS902BVN.pdf must lose to CS902B.pdf.
	if rec.Diagram.Href != "https://www.com-et.com/dl/CS902B.pdf" {
		t.Errorf("diagram = %q", rec.Diagram.Href)
	}
	if rec.ExplodedDiagram.Href != "https://www.com-et.com/dl/CS902B_bunkai.pdf" {
		t.Errorf("exploded diagram = %q", rec.ExplodedDiagram.Href)
	}
	if rec.Specs.Href != "https://www.com-et.com/spec?id=902" {
		t.Errorf("specs = %q", rec.Specs.Href)
	}
	if rec.Components.Href != "https://www.com-et.com/parts?id=902" {
		t.Errorf("components = %q", rec.Components.Href)
	}
	if rec.ColorVariants.Href != "https://www.com-et.com/colors?id=902" {
		t.Errorf("color variants = %q", rec.ColorVariants.Href)
	}
	// Off-prefix image is filtered out.
	if len(rec.Images) != 2 {
		t.Fatalf("images = %d, want 2", len(rec.Images))
	}
	if rec.Images[0].Href != "https://search.toto.jp/img/CS902B_main.jpg" {
		t.Errorf("first image = %q", rec.Images[0].Href)
	}
}

func TestExtractRequiresIdentity(t *testing.T) {
	e := NewExtractor("", testLogger)
	html := `<div class="product"><p>商品名: 何か</p><a href="/x.pdf">商品図</a></div>`
	if rec := e.Extract(container(t, html), baseURL); rec != nil {
		t.Errorf("expected nil without identity, got %+v", rec)
	}
}

func TestExtractSkipsDiscontinued(t *testing.T) {
	e := NewExtractor("", testLogger)
	html := `<div class="product">
	  <p>◆CS670B</p>
	  <p class="price">希望小売価格: ￥12,000（販売終了）</p>
	</div>`
	if rec := e.Extract(container(t, html), baseURL); rec != nil {
		t.Errorf("expected discontinued product dropped, got %+v", rec)
	}
}

func TestExtractDiscontinuedInPriceLineFallback(t *testing.T) {
	e := NewExtractor("", testLogger)
	html := `<div class="product">
	  <p>◆CS670B</p>
	  <p>価格 ￥12,000 販売終了</p>
	</div>`
	if rec := e.Extract(container(t, html), baseURL); rec != nil {
		t.Error("expected price-line fallback to drop the product")
	}
}

func TestExtractLabeledIdentityFallback(t *testing.T) {
	e := NewExtractor("", testLogger)
	html := `<div class="product"><p>品番: TCF8GM23#NW1</p></div>`
	rec := e.Extract(container(t, html), baseURL)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ProductID != "TCF8GM23#NW1" {
		t.Errorf("product id = %q", rec.ProductID)
	}
	if rec.ProductName != "Unknown" || rec.SeriesName != "Unknown" {
		t.Errorf("missing fields must default to Unknown, got %q / %q", rec.ProductName, rec.SeriesName)
	}
}

func TestExtractMissingArtifactsAreZero(t *testing.T) {
	e := NewExtractor("", testLogger)
	html := `<div class="product"><p>◆CS902B</p></div>`
	rec := e.Extract(container(t, html), baseURL)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if !rec.Diagram.IsZero() || !rec.Specs.IsZero() || !rec.ColorVariants.IsZero() {
		t.Errorf("expected zero artifact refs: %+v", rec)
	}
}

func TestExtractFallbackFromDiagramLinks(t *testing.T) {
	e := NewExtractor("", testLogger)
	html := `<html><body>
	  <div><span>◆CS902B</span> <a href="/dl/CS902B.pdf">商品図</a></div>
	  <div><a href="/dl/anon.pdf">商品図</a></div>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	records := e.ExtractFallback(doc, baseURL)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ProductID != "CS902B" {
		t.Errorf("first id = %q", records[0].ProductID)
	}
	if records[1].ProductID != "Product_2" {
		t.Errorf("placeholder id = %q", records[1].ProductID)
	}
	if records[0].Diagram.Href != "https://www.com-et.com/dl/CS902B.pdf" {
		t.Errorf("fallback diagram = %q", records[0].Diagram.Href)
	}
}

func TestMergeComponents(t *testing.T) {
	entries := []Component{
		{ID: "TCA320", Name: "リモコン"},
		{ID: "TCA320", Name: "ウォシュレットリモコン"},
		{ID: "CS902B", Name: "本体"},
		{ID: "", Name: "名無し"},
		{ID: "D44088R", Name: "ホース"},
	}
	out := MergeComponents(entries, "CS902B")
	if len(out) != 2 {
		t.Fatalf("merged = %d entries, want 2", len(out))
	}
	if out[0].ID != "TCA320" || out[0].Name != "ウォシュレットリモコン" {
		t.Errorf("longest name must win: %+v", out[0])
	}
	if out[1].ID != "D44088R" {
		t.Errorf("order not preserved: %+v", out)
	}
}

func TestParseComponentsStructured(t *testing.T) {
	html := `<html><body><table>
	  <tr><th>品番</th><th>名称</th></tr>
	  <tr><td>TCA320</td><td>リモコン</td></tr>
	  <tr><td>D44088R</td><td>給水ホース</td></tr>
	</table></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	out := ParseComponents(doc, "CS902B")
	if len(out) != 2 {
		t.Fatalf("components = %d, want 2", len(out))
	}
	if out[0].ID != "TCA320" || out[0].Name != "リモコン" {
		t.Errorf("first component = %+v", out[0])
	}
}

func TestParseComponentsTextFallback(t *testing.T) {
	html := `<html><body><div>
	セット内訳
	TCA320　ウォシュレットリモコン
	D44088R 給水ホース
	</div></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	out := ParseComponents(doc, "CS902B")
	if len(out) != 2 {
		t.Fatalf("components = %d, want 2", len(out))
	}
	if out[1].ID != "D44088R" || out[1].Name != "給水ホース" {
		t.Errorf("second component = %+v", out[1])
	}
}
