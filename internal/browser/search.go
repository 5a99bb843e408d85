package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"cometharvester/internal/catalog"
)

// searchKeywords identify an input as a search box when selector matching
// comes up empty.
var searchKeywords = []string{"search", "検索", "q", "query"}

// SubmitSearch locates the site's search input, types the query, and
// submits. Discovery walks the configured selector cascade, then any
// visible text input, then inputs whose placeholder/name/id carry a search
// keyword, then the first form with a text input. Submission presses Enter
// and falls back to setting the value and submitting the form via JS.
func (s *Session) SubmitSearch(query string) error {
	page := s.tabs.Current()

	el := s.findSearchInput(page)
	if el == nil {
		return catalog.ErrSearchInputNotFound
	}

	if err := s.typeAndSubmit(page, el, query); err != nil {
		s.logger.Warn("direct search interaction failed, trying JS submit", "error", err)
		if err := s.jsSubmit(page, query); err != nil {
			return &catalog.NavError{Op: "submit_search", Err: err}
		}
	}

	if err := s.WaitReady(); err != nil {
		return err
	}

	// The site sometimes swallows the first submit. If the URL doesn't look
	// like a results page, push the query once more through the JS path.
	url := strings.ToLower(s.CurrentURL())
	if !strings.Contains(url, "search") && !strings.Contains(url, "result") {
		s.logger.Debug("URL does not look like results, re-submitting via JS", "url", url)
		if err := s.jsSubmit(page, query); err == nil {
			_ = s.WaitReady()
		}
	}
	return nil
}

func (s *Session) findSearchInput(page *rod.Page) *rod.Element {
	for _, selector := range s.cfg.Selectors.SearchInputs {
		el, err := page.Timeout(s.cfg.Browser.ElementTimeout).Element(selector)
		if err != nil {
			continue
		}
		if ok, _ := el.Visible(); ok {
			s.logger.Debug("search input found", "selector", selector)
			return el
		}
	}

	// Any visible text/search input.
	inputs, err := page.Timeout(s.cfg.Browser.ElementTimeout).Elements("input")
	if err != nil {
		return nil
	}
	var keywordFallback *rod.Element
	for _, el := range inputs {
		typ, _ := el.Attribute("type")
		if typ != nil && *typ != "text" && *typ != "search" {
			continue
		}
		if ok, _ := el.Visible(); !ok {
			continue
		}
		if keywordFallback == nil {
			keywordFallback = el
		}
		if inputHasSearchKeyword(el) {
			return el
		}
	}
	return keywordFallback
}

func inputHasSearchKeyword(el *rod.Element) bool {
	var joined strings.Builder
	for _, attr := range []string{"placeholder", "name", "id"} {
		if v, _ := el.Attribute(attr); v != nil {
			joined.WriteString(strings.ToLower(*v))
		}
	}
	for _, kw := range searchKeywords {
		if strings.Contains(joined.String(), kw) {
			return true
		}
	}
	return false
}

func (s *Session) typeAndSubmit(page *rod.Page, el *rod.Element, query string) error {
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}
	if err := el.Input(query); err != nil {
		return err
	}
	return page.Keyboard.Press(input.Enter)
}

// jsSubmitScript fills the first visible text input and submits its form,
// mirroring what a user-driven submit would do when direct key events are
// rejected.
const jsSubmitScript = `(q) => {
	const inputs = document.querySelectorAll('input[type="text"], input[type="search"]');
	for (const el of inputs) {
		if (el.offsetParent === null) continue;
		el.value = q;
		el.focus();
		if (el.form) {
			el.form.submit();
			return true;
		}
	}
	return false;
}`

func (s *Session) jsSubmit(page *rod.Page, query string) error {
	result, err := page.Eval(jsSubmitScript, query)
	if err != nil {
		return err
	}
	if !result.Value.Bool() {
		return catalog.ErrSearchInputNotFound
	}
	return nil
}
