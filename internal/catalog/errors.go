package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoMatch             = errors.New("no locator match")
	ErrNotAFile            = errors.New("response is a markup document, not a file")
	ErrEmptyBody           = errors.New("downloaded file is empty")
	ErrDiscontinued        = errors.New("product is discontinued")
	ErrNoIdentity          = errors.New("container has no product identity")
	ErrSearchInputNotFound = errors.New("search input field could not be located")
	ErrBrowserStart        = errors.New("browser could not be started")
	ErrTabLost             = errors.New("originating tab is no longer open")
	ErrPageTimeout         = errors.New("page load timed out")
)

// DownloadError wraps errors from the artifact download paths.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("download error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("download error for %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// NavError wraps errors from browser navigation and tab operations.
type NavError struct {
	Op  string
	Err error
}

func (e *NavError) Error() string {
	return fmt.Sprintf("navigation error during %s: %v", e.Op, e.Err)
}

func (e *NavError) Unwrap() error { return e.Err }
