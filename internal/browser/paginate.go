package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

var nextLinkTexts = []string{"次へ", "次の", "Next", ">"}

// NextPage finds and clicks a next-page control. The configured selectors
// run first as a cascade; when none match, a link-text scan over common
// "next" labels takes over. Returns false when no control is present, which
// callers treat as the last page.
func (s *Session) NextPage(selectors []string) (bool, error) {
	el := s.findNextControl(selectors)
	if el == nil {
		return false, nil
	}
	if err := el.ScrollIntoView(); err != nil {
		s.logger.Debug("scroll to next control failed", "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, err
	}
	return true, s.WaitReady()
}

func (s *Session) findNextControl(selectors []string) *rod.Element {
	page := s.tabs.Current().Timeout(s.cfg.Browser.ElementTimeout)
	for _, sel := range selectors {
		el, err := page.Element(sel)
		if err != nil {
			continue
		}
		if visible, verr := el.Visible(); verr == nil && visible {
			return el
		}
	}
	for _, text := range nextLinkTexts {
		el, err := page.ElementX(textXPath(text))
		if err != nil {
			continue
		}
		if visible, verr := el.Visible(); verr == nil && visible {
			return el
		}
	}
	return nil
}
