package download

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod"

	"cometharvester/internal/catalog"
)

// fetchBase64JS runs inside the page so the request carries the session's
// cookies and origin. The byte-by-byte loop avoids the call-stack limit that
// String.fromCharCode(...bytes) hits on large PDFs.
const fetchBase64JS = `async (url) => {
	const resp = await fetch(url);
	if (!resp.ok) {
		throw new Error("fetch failed: " + resp.status);
	}
	const buf = await resp.arrayBuffer();
	const bytes = new Uint8Array(buf);
	let binary = "";
	for (let i = 0; i < bytes.length; i++) {
		binary += String.fromCharCode(bytes[i]);
	}
	return btoa(binary);
}`

// ViaBrowser fetches rawURL from inside an already-navigated page and writes
// the bytes to dir. Used when the resource is only reachable with the
// browser session's cookies, or when the artifact page itself is the file.
// Naming, collision, and verification rules match Download.
func (d *Downloader) ViaBrowser(page *rod.Page, rawURL, dir string) (string, error) {
	filename := FilenameFromURL(rawURL)
	if filename == "" {
		filename = d.synthesizedName(rawURL)
	}

	result, err := page.Timeout(d.cfg.ScriptTimeout).Eval(fetchBase64JS, rawURL)
	if err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Str())
	if err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}
	if len(data) == 0 {
		return "", &catalog.DownloadError{URL: rawURL, Err: catalog.ErrEmptyBody}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}
	filename = d.uniqueName(dir, filename)
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		os.Remove(filepath.Join(dir, filename))
		return "", &catalog.DownloadError{URL: rawURL, Err: err}
	}

	d.logger.Debug("artifact downloaded via browser", "url", rawURL, "file", filename)
	return filename, nil
}

// synthesizedName guesses an extension from the URL itself; no HEAD probe is
// possible here because the resource may be unreachable outside the session.
func (d *Downloader) synthesizedName(rawURL string) string {
	lower := strings.ToLower(rawURL)
	ext := ".dat"
	for _, candidate := range []string{".pdf", ".jpg", ".jpeg", ".png", ".gif"} {
		if strings.Contains(lower, candidate) {
			ext = candidate
			break
		}
	}
	return fmt.Sprintf("download_%d%s", d.now().Unix(), ext)
}
