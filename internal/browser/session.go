// Package browser owns the Chromium session: launching, the search form,
// and every tab handle. No other package touches tabs directly.
package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"cometharvester/internal/catalog"
	"cometharvester/internal/config"
	"cometharvester/internal/download"
)

// Session wraps one browser with exactly one logical "current" page,
// arbitrated by the TabManager.
type Session struct {
	browser *rod.Browser
	tabs    *TabManager
	dl      *download.Downloader
	cfg     *config.Config
	logger  *slog.Logger
}

// launchProfile is one attempt in the startup cascade. Profiles run in order
// of decreasing configuration until one produces a usable browser.
type launchProfile struct {
	name  string
	build func(cfg *config.BrowserConfig) *launcher.Launcher
}

func launchProfiles() []launchProfile {
	return []launchProfile{
		{"standard", func(cfg *config.BrowserConfig) *launcher.Launcher {
			l := launcher.New().
				Headless(cfg.Headless).
				Set("no-sandbox").
				Set("disable-gpu").
				Set("disable-dev-shm-usage").
				Set("disable-extensions").
				Set("disable-plugins").
				Set("disable-background-networking").
				Set("disable-sync").
				Set("no-first-run").
				Set("disable-blink-features", "AutomationControlled")
			if cfg.WindowSize != "" {
				l = l.Set("window-size", cfg.WindowSize)
			}
			if cfg.Bin != "" {
				l = l.Bin(cfg.Bin)
			}
			return l
		}},
		{"minimal", func(cfg *config.BrowserConfig) *launcher.Launcher {
			return launcher.New().
				Headless(true).
				Set("no-sandbox").
				Set("disable-gpu").
				Set("disable-dev-shm-usage")
		}},
		{"headful", func(cfg *config.BrowserConfig) *launcher.Launcher {
			return launcher.New().
				Headless(false).
				Set("no-sandbox").
				Set("disable-gpu")
		}},
		{"system", func(cfg *config.BrowserConfig) *launcher.Launcher {
			l := launcher.New()
			if path, ok := launcher.LookPath(); ok {
				l = l.Bin(path)
			}
			return l
		}},
	}
}

// Launch starts a browser, walking the profile cascade. Only fatal when
// every profile fails.
func Launch(cfg *config.Config, dl *download.Downloader, logger *slog.Logger) (*Session, error) {
	log := logger.With("component", "browser_session")

	var attemptErrs []error
	for _, profile := range launchProfiles() {
		controlURL, err := profile.build(&cfg.Browser).Launch()
		if err != nil {
			log.Warn("browser launch attempt failed", "profile", profile.name, "error", err)
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", profile.name, err))
			continue
		}

		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			log.Warn("browser connect failed", "profile", profile.name, "error", err)
			attemptErrs = append(attemptErrs, fmt.Errorf("%s connect: %w", profile.name, err))
			continue
		}

		page, err := stealth.Page(b)
		if err != nil {
			_ = b.Close()
			attemptErrs = append(attemptErrs, fmt.Errorf("%s stealth page: %w", profile.name, err))
			continue
		}

		log.Info("browser started", "profile", profile.name, "headless", cfg.Browser.Headless)
		return &Session{
			browser: b,
			tabs:    NewTabManager(b, page, cfg.Browser.ElementTimeout, log),
			dl:      dl,
			cfg:     cfg,
			logger:  log,
		}, nil
	}

	return nil, fmt.Errorf("%w: %v", catalog.ErrBrowserStart, errors.Join(attemptErrs...))
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

// Page exposes the current tab for browser-context downloads.
func (s *Session) Page() *rod.Page { return s.tabs.Current() }

// Navigate loads a URL in the current tab.
func (s *Session) Navigate(url string) error {
	if err := s.tabs.Current().Timeout(s.cfg.Browser.PageLoadTimeout).Navigate(url); err != nil {
		return &catalog.NavError{Op: "navigate", Err: err}
	}
	return nil
}

// WaitReady blocks until the current page has loaded and briefly stabilized.
// A stability timeout is tolerated; a load timeout is not.
func (s *Session) WaitReady() error {
	page := s.tabs.Current()
	if err := page.Timeout(s.cfg.Browser.PageLoadTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("%w: %v", catalog.ErrPageTimeout, err)
	}
	if err := page.Timeout(s.cfg.Browser.PageLoadTimeout).WaitStable(s.cfg.Browser.StabilizeWait); err != nil {
		s.logger.Debug("page stability timeout, continuing", "error", err)
	}
	return nil
}

// HTML returns the rendered page source of the current tab.
func (s *Session) HTML() (string, error) {
	return s.tabs.Current().HTML()
}

// CurrentURL returns the current tab's URL after any redirects.
func (s *Session) CurrentURL() string {
	info, err := s.tabs.Current().Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// OpenRef follows an artifact reference: it prefers clicking the matching
// link so that target=_blank navigations are observed as new tabs, and
// falls back to a plain navigation on the stored href. Reports whether a
// new tab was opened; the TabManager is then focused on it.
func (s *Session) OpenRef(ref catalog.ArtifactRef) (bool, error) {
	el := s.findRefElement(ref)
	if el != nil {
		_ = el.ScrollIntoView()
		newTab, err := s.tabs.OpenByClick(func() error {
			return el.Click(proto.InputMouseButtonLeft, 1)
		})
		if err == nil {
			return newTab, nil
		}
		s.logger.Debug("click failed, falling back to navigation", "href", ref.Href, "error", err)
	}
	if ref.Href == "" {
		return false, catalog.ErrNoMatch
	}
	return false, s.Navigate(ref.Href)
}

// CloseRef closes any secondary tab and restores the originating tab.
func (s *Session) CloseRef() error {
	return s.tabs.Restore()
}

// SaveCurrent downloads the resource at the current tab's URL through the
// browser context, so session cookies apply.
func (s *Session) SaveCurrent(dir string) (string, error) {
	url := s.CurrentURL()
	if url == "" {
		return "", &catalog.NavError{Op: "save_current", Err: errors.New("no current URL")}
	}
	return s.dl.ViaBrowser(s.tabs.Current(), url, dir)
}

// ClickImage clicks the thumbnail whose src matches the given URL so the
// site reveals the full-size image, either in a new tab or as an in-page
// lightbox overlay. Reports whether a new tab was opened; the TabManager
// is then focused on it.
func (s *Session) ClickImage(src string) (bool, error) {
	page := s.tabs.Current().Timeout(s.cfg.Browser.ElementTimeout)
	el, err := page.ElementX(imgXPath(src))
	if err != nil {
		return false, catalog.ErrNoMatch
	}
	_ = el.ScrollIntoView()
	return s.tabs.OpenByClick(func() error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

// largestImageJS picks the biggest rendered image excluding the clicked
// thumbnail, for the lightbox case where a click swaps in a full-size view
// instead of opening a tab.
const largestImageJS = `(exclude) => {
	let best = "";
	let bestArea = 0;
	for (const img of document.images) {
		if (!img.src || img.src === exclude) continue;
		if (img.offsetParent === null) continue;
		const area = img.naturalWidth * img.naturalHeight;
		if (area > bestArea) {
			bestArea = area;
			best = img.src;
		}
	}
	return best;
}`

// LargestVisibleImage returns the URL of the largest visible image on the
// current page, excluding excludeSrc. Empty when none qualifies.
func (s *Session) LargestVisibleImage(excludeSrc string) (string, error) {
	result, err := s.tabs.Current().Eval(largestImageJS, excludeSrc)
	if err != nil {
		return "", &catalog.NavError{Op: "largest_image", Err: err}
	}
	return result.Value.Str(), nil
}

// findRefElement re-resolves a live element for the reference on the current
// page. Handles are never carried across navigations; this lookup happens
// fresh every time.
func (s *Session) findRefElement(ref catalog.ArtifactRef) *rod.Element {
	page := s.tabs.Current().Timeout(s.cfg.Browser.ElementTimeout)
	if ref.Href != "" {
		if el, err := page.ElementX(hrefXPath(ref.Href)); err == nil {
			return el
		}
	}
	if ref.Label != "" {
		if el, err := page.ElementX(textXPath(ref.Label)); err == nil {
			return el
		}
	}
	return nil
}

func hrefXPath(href string) string {
	return fmt.Sprintf(`//a[contains(@href, %s)]`, xpathQuote(urlTail(href)))
}

func imgXPath(src string) string {
	return fmt.Sprintf(`//img[contains(@src, %s)]`, xpathQuote(urlTail(src)))
}

// urlTail strips scheme and host so the XPath matches on the path: the DOM
// may hold a relative URL while the extracted reference is absolute.
func urlTail(rawURL string) string {
	tail := rawURL
	if i := strings.Index(tail, "://"); i >= 0 {
		rest := tail[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			tail = rest[j:]
		}
	}
	return tail
}

func textXPath(text string) string {
	return fmt.Sprintf(`//a[contains(normalize-space(.), %s)]`, xpathQuote(text))
}

func xpathQuote(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}
