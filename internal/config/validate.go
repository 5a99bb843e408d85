package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}

	if cfg.Browser.PageLoadTimeout <= 0 {
		return fmt.Errorf("browser.page_load_timeout must be > 0")
	}
	if cfg.Browser.ElementTimeout <= 0 {
		return fmt.Errorf("browser.element_timeout must be > 0")
	}

	if cfg.Download.Timeout <= 0 {
		return fmt.Errorf("download.timeout must be > 0")
	}
	if cfg.Download.ChunkSize < 1 {
		return fmt.Errorf("download.chunk_size must be >= 1, got %d", cfg.Download.ChunkSize)
	}

	if cfg.Output.Root == "" {
		return fmt.Errorf("output.root must not be empty")
	}
	if len(cfg.Selectors.SearchInputs) == 0 {
		return fmt.Errorf("selectors.search_inputs must not be empty")
	}
	if len(cfg.Selectors.Containers) == 0 {
		return fmt.Errorf("selectors.containers must not be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is usable as a crawl target.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
