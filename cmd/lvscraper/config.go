package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage lvscraper configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (LVSCRAPER_*), including .env files
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file holding every option at its default value.

The file is created as '.lvscraper.yaml' in the current directory unless
--config names another path. An existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source.

The password and the session passphrase are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".lvscraper.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Set linkedin.username, or export LVSCRAPER_USERNAME")
	fmt.Fprintln(ui.Output, "2. Run 'lvscraper config validate' to check the file")
	fmt.Fprintln(ui.Output, "3. Run 'lvscraper auth login', then 'lvscraper crawl'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}

	display := *cfg
	display.LinkedIn.Password = mask(display.LinkedIn.Password)
	display.Session.Passphrase = mask(display.Session.Passphrase)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("format configuration: %w", err)
	}

	ui.PrintHighlight("Effective configuration")
	fmt.Fprintln(ui.Output)
	fmt.Fprint(ui.Output, string(data))
	if configFile != "" {
		fmt.Fprintf(ui.Output, "\nConfiguration file: %s\n", configFile)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		ui.PrintError("Configuration is invalid")
		return err
	}

	var warnings []string
	if cfg.LinkedIn.Username == "" {
		warnings = append(warnings, "no account configured; pass --username when crawling")
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("cannot create data directory: %w", err)
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}

	for _, w := range warnings {
		ui.PrintWarning(w)
	}
	ui.PrintSuccess("Configuration is valid")

	fmt.Fprintln(ui.Output, "\nConfiguration summary:")
	fmt.Fprintf(ui.Output, "  Keywords:             %s\n", cfg.Search.Keywords)
	fmt.Fprintf(ui.Output, "  Duration window:      %d-%ds\n", cfg.Download.MinDuration, cfg.Download.MaxDuration)
	fmt.Fprintf(ui.Output, "  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Fprintf(ui.Output, "  Rate limit:           %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Fprintf(ui.Output, "  Session backend:      %s\n", cfg.Session.Backend)
	fmt.Fprintf(ui.Output, "  Data directory:       %s\n", cfg.Storage.DataDir)
	return nil
}
