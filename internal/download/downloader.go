// Package download persists binary artifacts to disk with collision-safe
// naming and content-type sanity checks. It has a direct HTTP path and a
// browser-context fallback for resources that need the session's cookies.
package download

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"cometharvester/internal/catalog"
	"cometharvester/internal/config"
)

// Downloader fetches artifact URLs and writes them under a target directory.
// It performs no retries; every failure is reported to the caller and is
// expected to degrade that artifact only.
type Downloader struct {
	client    *http.Client
	cfg       *config.DownloadConfig
	userAgent string
	referer   string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDownloader creates a Downloader from the run configuration.
func NewDownloader(cfg *config.Config, logger *slog.Logger) *Downloader {
	transport := &http.Transport{
		// Decompression handled here so brotli is covered too.
		DisableCompression: true,
	}
	return &Downloader{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Download.Timeout,
		},
		cfg:       &cfg.Download,
		userAgent: cfg.Site.UserAgent,
		referer:   cfg.Site.BaseURL,
		logger:    logger.With("component", "downloader"),
		now:       time.Now,
	}
}

// Download fetches rawURL into dir and returns the saved filename. Markup
// responses, empty bodies, and network failures all return an error with
// nothing left on disk.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) (string, error) {
	filename := FilenameFromURL(rawURL)
	if filename == "" {
		filename = d.probeFilename(ctx, rawURL)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}
	filename = d.uniqueName(dir, filename)
	target := filepath.Join(dir, filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}
	d.setBrowserHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &catalog.DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	if isMarkup(resp.Header.Get("Content-Type")) {
		return "", &catalog.DownloadError{URL: rawURL, Err: catalog.ErrNotAFile}
	}

	reader, err := decompressReader(resp)
	if err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}

	if err := d.writeFile(target, reader); err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}

	d.logger.Debug("artifact downloaded", "url", rawURL, "file", filename)
	return filename, nil
}

// writeFile streams reader to target in chunk-sized copies. Partial or
// zero-byte results are removed rather than left behind.
func (d *Downloader) writeFile(target string, reader io.Reader) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}

	buf := make([]byte, d.chunkSize())
	written, copyErr := io.CopyBuffer(f, reader, buf)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(target)
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}
	if written == 0 {
		os.Remove(target)
		return catalog.ErrEmptyBody
	}
	return nil
}

func (d *Downloader) chunkSize() int {
	if d.cfg.ChunkSize > 0 {
		return d.cfg.ChunkSize
	}
	return 8192
}

// probeFilename issues a lightweight HEAD request to infer an extension and
// synthesizes a timestamped name. Used only when the URL path carries no
// usable filename.
func (d *Downloader) probeFilename(ctx context.Context, rawURL string) string {
	ext := ".dat"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err == nil {
		d.setBrowserHeaders(req)
		if resp, herr := d.client.Do(req); herr == nil {
			ct := resp.Header.Get("Content-Type")
			resp.Body.Close()
			ext = extensionFor(ct)
		}
	}
	return fmt.Sprintf("file_%d%s", d.now().Unix(), ext)
}

// uniqueName appends a timestamp before the extension when the name is
// already taken. Existing files are never overwritten.
func (d *Downloader) uniqueName(dir, filename string) string {
	if _, err := os.Stat(filepath.Join(dir, filename)); os.IsNotExist(err) {
		return filename
	}
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%s_%d%s", base, d.now().Unix(), ext)
}

// setBrowserHeaders mimics a real browser request. The catalog's asset hosts
// reject bare clients with 403s.
func (d *Downloader) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", d.referer)
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
}

// FilenameFromURL derives a safe filename from the URL path: query and
// fragment stripped, then sanitized to [A-Za-z0-9._-]. Returns "" when the
// path yields nothing with an extension.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return ""
	}
	// Some asset URLs bury the real name in a query value; the sanitize pass
	// below strips separators either way.
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = Sanitize(name)
	if name == "" || !strings.Contains(name, ".") {
		return ""
	}
	return name
}

// Sanitize keeps only characters safe for every filesystem we write to.
func Sanitize(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteRune(c)
		}
	}
	return b.String()
}

func isMarkup(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

func extensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return ".pdf"
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return ".jpg"
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	case strings.Contains(ct, "image"):
		return ".jpg"
	default:
		return ".dat"
	}
}

// decompressReader wraps the response body with the matching decompressor.
// Handles gzip, deflate, and brotli, mirroring the Accept-Encoding we send.
func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
