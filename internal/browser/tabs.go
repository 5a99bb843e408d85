package browser

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"cometharvester/internal/catalog"
)

// tabState models the navigator's lifecycle. All cross-tab operations pass
// through the TabManager; no other component may read or switch tabs.
type tabState int

const (
	stateSingle tabState = iota
	stateAwaitingTab
	stateSecondary
)

// TabManager arbitrates which tab is "current". It remembers the originating
// tab, detects tabs opened by a click by diffing the open target set, and
// restores focus when secondary work finishes.
type TabManager struct {
	browser   *rod.Browser
	origin    *rod.Page
	secondary *rod.Page
	state     tabState
	timeout   time.Duration
	logger    *slog.Logger
}

// NewTabManager creates a manager anchored on the given originating page.
func NewTabManager(browser *rod.Browser, origin *rod.Page, timeout time.Duration, logger *slog.Logger) *TabManager {
	return &TabManager{
		browser: browser,
		origin:  origin,
		state:   stateSingle,
		timeout: timeout,
		logger:  logger.With("component", "tab_manager"),
	}
}

// Current returns the page work should happen on.
func (t *TabManager) Current() *rod.Page {
	if t.state == stateSecondary && t.secondary != nil {
		return t.secondary
	}
	return t.origin
}

// OpenByClick runs the click and watches for a newly opened tab by diffing
// the target set before and after, polling up to the configured timeout
// rather than sleeping a fixed interval. On detection the manager switches
// to the new tab and reports true.
func (t *TabManager) OpenByClick(click func() error) (bool, error) {
	before := t.snapshot()
	t.state = stateAwaitingTab

	if err := click(); err != nil {
		t.state = stateSingle
		return false, &catalog.NavError{Op: "click", Err: err}
	}

	deadline := time.Now().Add(t.timeout)
	for time.Now().Before(deadline) {
		pages, err := t.browser.Pages()
		if err == nil {
			for _, p := range pages {
				if !before[p.TargetID] {
					t.secondary = p
					t.state = stateSecondary
					t.logger.Debug("new tab detected", "target", p.TargetID)
					return true, nil
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}

	// No new tab: the click navigated or acted in place.
	t.state = stateSingle
	return false, nil
}

// Restore closes any secondary tab and returns focus to the originating
// tab. If the origin was closed out from under us, recovery falls back to
// whichever tab remains rather than failing the run.
func (t *TabManager) Restore() error {
	if t.state == stateSecondary && t.secondary != nil {
		if err := t.secondary.Close(); err != nil {
			t.logger.Warn("failed to close secondary tab", "error", err)
		}
		t.secondary = nil
	}
	t.state = stateSingle

	pages, err := t.browser.Pages()
	if err != nil {
		return &catalog.NavError{Op: "restore", Err: err}
	}
	for _, p := range pages {
		if p.TargetID == t.origin.TargetID {
			_, _ = t.origin.Activate()
			return nil
		}
	}

	// Origin tab is gone. Adopt any surviving tab as the new origin.
	if len(pages) > 0 {
		t.logger.Warn("originating tab lost, recovering to remaining tab")
		t.origin = pages[0]
		_, _ = t.origin.Activate()
		return nil
	}
	return catalog.ErrTabLost
}

func (t *TabManager) snapshot() map[proto.TargetTargetID]bool {
	seen := make(map[proto.TargetTargetID]bool)
	pages, err := t.browser.Pages()
	if err != nil {
		return seen
	}
	for _, p := range pages {
		seen[p.TargetID] = true
	}
	return seen
}
