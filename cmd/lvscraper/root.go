package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lvscraper",
	Short: "Crawl LinkedIn search results and download short videos",
	Long: `lvscraper logs in to LinkedIn, walks the search results for a keyword
query and downloads the videos whose duration falls inside a window.

Sessions are stored after the first login so later crawls skip it. When
LinkedIn asks for an emailed PIN, run 'lvscraper auth challenge'.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetNoColor(noColor)
		ui.SetQuietMode(quiet)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default: ./.lvscraper.yaml, ~/.lvscraper.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("data-dir", "", "directory holding the session file, downloads and checkpoints")
	flags.String("session-backend", "", "session store: file, encrypted or keyring")
	flags.StringP("username", "u", "", "LinkedIn account email")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.SetVersionTemplate(`lvscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// flagKeys are the config overrides a command may carry, by flag type
var flagKeys = struct {
	strings []string
	ints    []string
	bools   []string
}{
	strings: []string{"username", "keywords", "data-dir", "session-backend", "log-level"},
	ints:    []string{"limit", "offset", "page-size", "min-duration", "max-duration", "concurrent"},
	bools:   []string{"skip-existing"},
}

// changedFlags collects the flags the user set on cmd for config.MergeCommandLineFlags
func changedFlags(cmd *cobra.Command) map[string]interface{} {
	fs := cmd.Flags()
	out := make(map[string]interface{})
	for _, name := range flagKeys.strings {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			v, _ := fs.GetString(name)
			out[name] = v
		}
	}
	for _, name := range flagKeys.ints {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			v, _ := fs.GetInt(name)
			out[name] = v
		}
	}
	for _, name := range flagKeys.bools {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			v, _ := fs.GetBool(name)
			out[name] = v
		}
	}
	return out
}

// setup loads the configuration for cmd and initializes the global logger
func setup(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	flags := changedFlags(cmd)
	if verbose {
		if _, set := flags["log-level"]; !set {
			flags["log-level"] = "debug"
		}
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, nil, err
	}
	if noColor {
		cfg.Logging.Color = false
	}
	if quiet && !verbose {
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	log := logger.GetLogger()
	log.WithField("version", version).Debug("lvscraper starting")
	return cfg, log, nil
}
