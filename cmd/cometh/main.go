package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"cometharvester/internal/browser"
	"cometharvester/internal/config"
	"cometharvester/internal/crawler"
	"cometharvester/internal/download"
	"cometharvester/internal/runlog"
)

var (
	cfgFile    string
	verbose    bool
	outputPath string
	baseURL    string
	headful    bool
	browserBin string
	quiet      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cometh",
		Short: "COM-ET catalog harvester",
		Long: `cometh drives a real browser through the COM-ET product catalog:
it submits a search, walks every result page, and saves each product's
images, drawings, spec document, and color variants to disk.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fetchCmd creates the "fetch" subcommand.
func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [query]",
		Short: "Search the catalog and harvest every matching product",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output root directory")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "catalog base URL")
	cmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")
	cmd.Flags().StringVar(&browserBin, "browser-bin", "", "path to a Chrome/Chromium binary")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-product progress lines")

	return cmd
}

// runFetch executes the fetch command.
func runFetch(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	query := strings.TrimSpace(args[0])
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(cfg.Output.Root, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	rlog, err := runlog.New(cfg.Output.Root, query)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer rlog.Close()
	if !quiet {
		rlog.SetEcho(func(line string) { fmt.Println(line) })
	}

	logger.Info("starting harvest", "query", query, "base_url", cfg.Site.BaseURL, "output", cfg.Output.Root)

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	spin.Suffix = " launching browser..."
	spin.Start()

	dl := download.NewDownloader(cfg, logger)
	sess, err := browser.Launch(cfg, dl, logger)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	start := time.Now()
	driver := crawler.New(cfg, sess, dl, rlog, logger)
	stats, err := driver.Run(ctx, query)
	elapsed := time.Since(start)

	logger.Info("harvest complete",
		"elapsed", elapsed,
		"pages", stats.Pages,
		"products", stats.Processed,
		"downloads", stats.Downloads,
		"failures", stats.Failures,
	)

	fmt.Printf("\nHarvest finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Pages:      %d\n", stats.Pages)
	fmt.Printf("   Products:   %d processed, %d duplicates skipped\n", stats.Processed, stats.Skipped)
	fmt.Printf("   Downloads:  %d saved, %d failures\n", stats.Downloads, stats.Failures)
	fmt.Printf("   Output:     %s\n", cfg.Output.Root)
	fmt.Printf("   Run log:    %s\n", rlog.Path())

	if err != nil {
		return fmt.Errorf("harvest aborted: %w", err)
	}
	if stats.Processed == 0 {
		fmt.Println("\nNo products matched. Try a broader query, or a product series name.")
	}
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cometh %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand group for inspecting
// configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Site:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Site.BaseURL)
			fmt.Printf("  User Agent:        %s\n", cfg.Site.UserAgent)
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Printf("  Window Size:       %s\n", cfg.Browser.WindowSize)
			fmt.Printf("  Page Load Timeout: %s\n", cfg.Browser.PageLoadTimeout)
			fmt.Printf("  Element Timeout:   %s\n", cfg.Browser.ElementTimeout)
			fmt.Printf("\nDownload:\n")
			fmt.Printf("  Timeout:           %s\n", cfg.Download.Timeout)
			fmt.Printf("  Script Timeout:    %s\n", cfg.Download.ScriptTimeout)
			fmt.Printf("  Chunk Size:        %d bytes\n", cfg.Download.ChunkSize)
			fmt.Printf("\nOutput:\n")
			fmt.Printf("  Root:              %s\n", cfg.Output.Root)
			fmt.Printf("  Diagram Folder:    %s\n", cfg.Output.DiagramFolder)
			fmt.Printf("\nSelectors:\n")
			fmt.Printf("  Search Inputs:     %d configured\n", len(cfg.Selectors.SearchInputs))
			fmt.Printf("  Containers:        %d configured\n", len(cfg.Selectors.Containers))
			fmt.Printf("  Next Controls:     %d configured\n", len(cfg.Selectors.NextControls))
			fmt.Printf("  Image Prefix:      %s\n", cfg.Selectors.ImagePrefix)
			fmt.Printf("\nColors:             %d mapped\n", len(cfg.Colors))
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if outputPath != "" {
		cfg.Output.Root = outputPath
	}
	if baseURL != "" {
		cfg.Site.BaseURL = baseURL
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if browserBin != "" {
		cfg.Browser.Bin = browserBin
	}
}
