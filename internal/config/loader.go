package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("COMETH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cometh")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".cometh"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine when not explicitly specified.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.user_agent", cfg.Site.UserAgent)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.page_load_timeout", cfg.Browser.PageLoadTimeout)
	v.SetDefault("browser.element_timeout", cfg.Browser.ElementTimeout)
	v.SetDefault("browser.stabilize_wait", cfg.Browser.StabilizeWait)

	v.SetDefault("download.timeout", cfg.Download.Timeout)
	v.SetDefault("download.script_timeout", cfg.Download.ScriptTimeout)
	v.SetDefault("download.chunk_size", cfg.Download.ChunkSize)

	v.SetDefault("output.root", cfg.Output.Root)
	v.SetDefault("output.diagram_folder", cfg.Output.DiagramFolder)

	v.SetDefault("selectors.search_inputs", cfg.Selectors.SearchInputs)
	v.SetDefault("selectors.containers", cfg.Selectors.Containers)
	v.SetDefault("selectors.next_controls", cfg.Selectors.NextControls)
	v.SetDefault("selectors.image_prefix", cfg.Selectors.ImagePrefix)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
