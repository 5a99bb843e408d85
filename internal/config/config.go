package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for a harvest run. It is read once at
// startup and static for the whole run.
type Config struct {
	Site      SiteConfig        `mapstructure:"site"        yaml:"site"`
	Browser   BrowserConfig     `mapstructure:"browser"     yaml:"browser"`
	Download  DownloadConfig    `mapstructure:"download"    yaml:"download"`
	Output    OutputConfig      `mapstructure:"output"      yaml:"output"`
	Selectors SelectorConfig    `mapstructure:"selectors"   yaml:"selectors"`
	Logging   LoggingConfig     `mapstructure:"logging"     yaml:"logging"`
	Colors    map[string]string `mapstructure:"color_table" yaml:"color_table"`
}

// SiteConfig identifies the catalog site.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"   yaml:"base_url"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// BrowserConfig controls the browser session.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"          yaml:"headless"`
	WindowSize      string        `mapstructure:"window_size"       yaml:"window_size"`
	Bin             string        `mapstructure:"bin"               yaml:"bin"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ElementTimeout  time.Duration `mapstructure:"element_timeout"   yaml:"element_timeout"`
	StabilizeWait   time.Duration `mapstructure:"stabilize_wait"    yaml:"stabilize_wait"`
}

// DownloadConfig controls artifact downloads.
type DownloadConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
	ScriptTimeout time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
	ChunkSize     int           `mapstructure:"chunk_size"     yaml:"chunk_size"`
}

// OutputConfig controls where per-product files land.
type OutputConfig struct {
	Root          string `mapstructure:"root"           yaml:"root"`
	DiagramFolder string `mapstructure:"diagram_folder" yaml:"diagram_folder"`
}

// SelectorConfig holds the ordered locator candidate lists. Markup differs
// across catalog sections, so each list runs as a first-match cascade.
type SelectorConfig struct {
	SearchInputs []string `mapstructure:"search_inputs" yaml:"search_inputs"`
	Containers   []string `mapstructure:"containers"    yaml:"containers"`
	NextControls []string `mapstructure:"next_controls" yaml:"next_controls"`
	ImagePrefix  string   `mapstructure:"image_prefix"  yaml:"image_prefix"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults for the COM-ET
// catalog.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:   "https://www.com-et.com/jp/",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Browser: BrowserConfig{
			Headless:        true,
			WindowSize:      "1920,1080",
			PageLoadTimeout: 10 * time.Second,
			ElementTimeout:  5 * time.Second,
			StabilizeWait:   300 * time.Millisecond,
		},
		Download: DownloadConfig{
			Timeout:       30 * time.Second,
			ScriptTimeout: 30 * time.Second,
			ChunkSize:     8192,
		},
		Output: OutputConfig{
			Root:          "./output",
			DiagramFolder: "商品図",
		},
		Selectors: SelectorConfig{
			SearchInputs: []string{
				"input[type='search']",
				"input[placeholder*='検索']",
				"input[name*='search']",
				"input[id*='search']",
				".search input",
				"#search input",
				"input[type='text']",
			},
			Containers: []string{
				".product",
				".item",
				".result",
				"[class*='product']",
				"[class*='item']",
				"[class*='result']",
				"li[class*='product']",
				"li[class*='item']",
			},
			NextControls: []string{
				"a[rel='next']",
				".pagination .next a",
				".pager-next a",
				"a.next",
			},
			ImagePrefix: "https://search.toto.jp/img/",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
