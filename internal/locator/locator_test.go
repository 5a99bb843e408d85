package locator

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func region(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc.Selection
}

const labeledHTML = `<div class="product">
  <dl>
    <dt>商品図</dt>
    <dd><a href="/files/CS902B_drawing.pdf">図面を見る</a></dd>
  </dl>
  <a href="/spec?id=1">仕様一覧</a>
</div>`

func TestLabeledLinkFindsParentLink(t *testing.T) {
	m := Resolve(region(t, labeledHTML), []Strategy{LabeledLink("商品図")})
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Href != "/files/CS902B_drawing.pdf" {
		t.Errorf("href = %q", m.Href)
	}
	if m.Strategy != "labeled_link:商品図" {
		t.Errorf("strategy = %q", m.Strategy)
	}
}

func TestLinkTextContains(t *testing.T) {
	m := Resolve(region(t, labeledHTML), []Strategy{LinkTextContains("仕様")})
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Href != "/spec?id=1" {
		t.Errorf("href = %q", m.Href)
	}
}

func TestCascadeOrder(t *testing.T) {
	// Both the labeled structure and a loose text link exist; the labeled
	// one must win because it runs first.
	html := `<div>
	  <span>分解図</span><a href="/exact/bunkai.pdf">開く</a>
	  <a href="/loose/page">分解図はこちら</a>
	</div>`
	m := Resolve(region(t, html), Cascade("分解図"))
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Href != "/exact/bunkai.pdf" {
		t.Errorf("expected the structural match to win, got %q via %q", m.Href, m.Strategy)
	}
}

func TestCascadeFallsThroughToKeywordScan(t *testing.T) {
	// No label elements, no matching link text; only the href carries the
	// keyword, which only the XPath sweep sees.
	html := `<div><p><a href="/dl/seizu/構成品/123">こちら</a></p></div>`
	m := Resolve(region(t, html), Cascade("構成品"))
	if m == nil {
		t.Fatal("expected keyword scan to match, got nil")
	}
	if m.Strategy != "keyword_scan" {
		t.Errorf("strategy = %q", m.Strategy)
	}
}

func TestResolveReturnsNilOnAbsence(t *testing.T) {
	m := Resolve(region(t, `<div><a href="/x">その他</a></div>`), Cascade("商品図"))
	if m != nil {
		t.Errorf("expected nil, got %+v", m)
	}
}

func TestHiddenLinksAreSkipped(t *testing.T) {
	html := `<div>
	  <a href="/hidden.pdf" style="display: none">商品図</a>
	  <a href="/visible.pdf">商品図</a>
	</div>`
	m := Resolve(region(t, html), []Strategy{LinkTextContains("商品図")})
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Href != "/visible.pdf" {
		t.Errorf("expected hidden link skipped, got %q", m.Href)
	}
}

func TestPreferIdentityWholeToken(t *testing.T) {
	candidates := []Match{
		{Text: "商品図", Href: "https://example.com/dl/CS902BVN.pdf"},
		{Text: "商品図", Href: "https://example.com/dl/CS902B.pdf"},
	}
	m := PreferIdentity(candidates, "CS902B")
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Href != "https://example.com/dl/CS902B.pdf" {
		t.Errorf("identity disambiguation picked %q", m.Href)
	}
}

func TestPreferIdentityFallsBackToFirst(t *testing.T) {
	candidates := []Match{
		{Href: "/dl/first.pdf"},
		{Href: "/dl/second.pdf"},
	}
	m := PreferIdentity(candidates, "TCF8GM23")
	if m == nil || m.Href != "/dl/first.pdf" {
		t.Errorf("expected first candidate fallback, got %+v", m)
	}
	if PreferIdentity(nil, "X") != nil {
		t.Error("expected nil for empty candidates")
	}
}

func TestPreferIdentityIgnoresQueryString(t *testing.T) {
	candidates := []Match{
		{Href: "/dl/other.pdf?ref=CS902B"},
		{Href: "/dl/CS902B.pdf?v=2"},
	}
	m := PreferIdentity(candidates, "CS902B")
	if m == nil || m.Href != "/dl/CS902B.pdf?v=2" {
		t.Errorf("expected filename match, got %+v", m)
	}
}

func TestAllLinkTextMatchesDocumentOrder(t *testing.T) {
	html := `<div>
	  <a href="/a.pdf">商品図A</a>
	  <a href="/b.pdf">商品図B</a>
	  <a href="/c">その他</a>
	</div>`
	matches := AllLinkTextMatches(region(t, html), "商品図")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Href != "/a.pdf" || matches[1].Href != "/b.pdf" {
		t.Errorf("order wrong: %+v", matches)
	}
}

func TestXpathLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"it's", `"it's"`},
		{`a'b"c`, `concat('a', "'", 'b"c')`},
	}
	for _, tc := range cases {
		if got := xpathLiteral(tc.in); got != tc.want {
			t.Errorf("xpathLiteral(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
