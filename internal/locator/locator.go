// Package locator resolves artifact links inside a DOM region through an
// ordered cascade of strategies, from exact structural matches down to
// page-wide keyword scans. Absence is a value: every strategy returns nil
// when nothing usable is found.
package locator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Match is a resolved artifact link. Href is kept over any live handle
// because handles go stale the moment the page is replaced.
type Match struct {
	Text     string
	Href     string
	Strategy string
}

// Strategy is a single pure lookup over a DOM region.
type Strategy struct {
	Name string
	Find func(region *goquery.Selection) *Match
}

// Resolve evaluates strategies in order and returns the first match.
// A nil result means "not present", never a fault.
func Resolve(region *goquery.Selection, strategies []Strategy) *Match {
	if region == nil || region.Length() == 0 {
		return nil
	}
	for _, s := range strategies {
		if m := s.Find(region); m != nil {
			m.Strategy = s.Name
			return m
		}
	}
	return nil
}

// LabeledLink matches the structural pattern of a label element (dt, th,
// span, label) whose own text contains the label string, taking the first
// link inside the label's parent. This is the most exact strategy: it
// requires the site's label/value markup to be intact.
func LabeledLink(label string) Strategy {
	return Strategy{
		Name: "labeled_link:" + label,
		Find: func(region *goquery.Selection) *Match {
			var match *Match
			region.Find("dt, th, span, label, strong").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				if !strings.Contains(strings.TrimSpace(sel.Text()), label) || !visible(sel) {
					return true
				}
				link := sel.Parent().Find("a[href]").First()
				if link.Length() == 0 {
					link = sel.NextAll().Filter("a[href]").First()
				}
				if link.Length() == 0 || !visible(link) {
					return true
				}
				href, _ := link.Attr("href")
				match = &Match{Text: strings.TrimSpace(link.Text()), Href: href}
				return false
			})
			return match
		},
	}
}

// LinkTextContains matches the first visible link whose text contains substr.
func LinkTextContains(substr string) Strategy {
	return Strategy{
		Name: "link_text:" + substr,
		Find: func(region *goquery.Selection) *Match {
			for _, m := range linkTextMatches(region, substr) {
				m := m
				return &m
			}
			return nil
		},
	}
}

// HrefContains matches the first visible link whose href contains substr
// (case-insensitive).
func HrefContains(substr string) Strategy {
	lower := strings.ToLower(substr)
	return Strategy{
		Name: "href:" + substr,
		Find: func(region *goquery.Selection) *Match {
			var match *Match
			region.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				href, _ := sel.Attr("href")
				if !strings.Contains(strings.ToLower(href), lower) || !visible(sel) {
					return true
				}
				match = &Match{Text: strings.TrimSpace(sel.Text()), Href: href}
				return false
			})
			return match
		},
	}
}

// KeywordScan is the loosest in-region strategy: an XPath contains() sweep
// over every link in the region, matching any of the keywords against link
// text or href.
func KeywordScan(keywords ...string) Strategy {
	return Strategy{
		Name: "keyword_scan",
		Find: func(region *goquery.Selection) *Match {
			for _, kw := range keywords {
				expr := fmt.Sprintf("//a[contains(text(), %s) or contains(@href, %s)]", xpathLiteral(kw), xpathLiteral(kw))
				if node := queryRegion(region.Nodes, expr); node != nil {
					return &Match{
						Text: strings.TrimSpace(htmlquery.InnerText(node)),
						Href: htmlquery.SelectAttr(node, "href"),
					}
				}
			}
			return nil
		},
	}
}

// Cascade builds the standard strategy order for an artifact identified by a
// visible label: structural first, then href substring, then link text, then
// keyword sweep.
func Cascade(label string, hrefHints ...string) []Strategy {
	strategies := []Strategy{LabeledLink(label)}
	for _, hint := range hrefHints {
		strategies = append(strategies, HrefContains(hint))
	}
	strategies = append(strategies, LinkTextContains(label), KeywordScan(label))
	return strategies
}

// AllLinkTextMatches returns every visible link in the region whose text
// contains substr, in document order. Used for identity disambiguation.
func AllLinkTextMatches(region *goquery.Selection, substr string) []Match {
	return linkTextMatches(region, substr)
}

// PreferIdentity picks, among candidate matches, the one whose URL filename
// contains productID as a whole token. The word boundary rejects near-identity
// collisions: CS902BVN is not a match for CS902B. Falls back to the first
// candidate when none qualifies.
func PreferIdentity(candidates []Match, productID string) *Match {
	if len(candidates) == 0 {
		return nil
	}
	if productID != "" {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(productID) + `\b`)
		if err == nil {
			for i := range candidates {
				if re.MatchString(urlFilename(candidates[i].Href)) {
					return &candidates[i]
				}
			}
		}
	}
	return &candidates[0]
}

// queryRegion runs an XPath query over every node of a multi-node region and
// returns the first hit.
func queryRegion(nodes []*html.Node, expr string) *html.Node {
	for _, n := range nodes {
		found, err := htmlquery.QueryAll(n, expr)
		if err != nil || len(found) == 0 {
			continue
		}
		return found[0]
	}
	return nil
}

func linkTextMatches(region *goquery.Selection, substr string) []Match {
	var out []Match
	region.Find("a").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if !strings.Contains(text, substr) || !visible(sel) {
			return
		}
		href, _ := sel.Attr("href")
		out = append(out, Match{Text: text, Href: href})
	})
	return out
}

// visible approximates element visibility on a static snapshot: inline
// display:none, visibility:hidden, the hidden attribute, and disabled all
// disqualify a match.
func visible(sel *goquery.Selection) bool {
	for _, attr := range []string{"hidden", "disabled"} {
		if _, ok := sel.Attr(attr); ok {
			return false
		}
	}
	style, _ := sel.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return false
	}
	return true
}

// urlFilename returns the last path segment of a URL, query stripped.
func urlFilename(rawURL string) string {
	s := rawURL
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// xpathLiteral quotes a string for use inside an XPath expression. Strings
// containing both quote kinds are split into a concat() of safe pieces.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
