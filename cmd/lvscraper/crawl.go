package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haruaki07/linkedin-video-scraper/pkg/auth"
	"github.com/haruaki07/linkedin-video-scraper/pkg/checkpoint"
	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/crawler"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/search"
	"github.com/haruaki07/linkedin-video-scraper/pkg/ui"
)

var (
	resumeCrawl  bool
	forceRestart bool
	notify       bool
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Search LinkedIn and download matching videos",
	Long: `Walk the search results for a keyword query and download every video
whose duration (whole seconds) lies inside [min-duration, max-duration].

The account is taken from --username, LVSCRAPER_USERNAME or the config file.
A stored session is reused; otherwise the password is read from
LVSCRAPER_PASSWORD or prompted for.

Progress is checkpointed after every page. An interrupted crawl can be
continued with --resume or discarded with --force-restart.`,
	Example: `  # Download videos between 2 and 30 seconds from the first 100 results
  lvscraper crawl -u me@example.com -k "#video" --limit 100 --min-duration 2 --max-duration 30

  # Continue an interrupted crawl
  lvscraper crawl -k "#video" --resume

  # Walk everything the search reports
  lvscraper crawl -k "#golang" --limit -1`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	f := crawlCmd.Flags()
	f.StringP("keywords", "k", "", "search keywords (default \"#video\")")
	f.IntP("limit", "l", search.Unbounded, "maximum number of search results to walk (-1 for all)")
	f.Int("offset", 0, "search offset to start at")
	f.Int("page-size", 0, "results per search request, at most 49")
	f.Int("min-duration", 0, "minimum video duration in seconds (inclusive)")
	f.Int("max-duration", 0, "maximum video duration in seconds (inclusive)")
	f.Int("concurrent", 0, "number of concurrent downloads")
	f.Bool("skip-existing", false, "skip videos already present in the downloads directory")
	f.BoolVar(&resumeCrawl, "resume", false, "resume from the last checkpoint")
	f.BoolVar(&forceRestart, "force-restart", false, "ignore an existing checkpoint")
	f.BoolVar(&notify, "notify", false, "send a desktop notification when the crawl ends")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	ui.PrintBanner()

	c, err := crawler.New(cfg, crawler.Deps{Logger: log})
	if err != nil {
		return err
	}
	creds, err := resolveCredentials(cfg, c, false)
	if err != nil {
		return err
	}

	opts := crawler.OptionsFromConfig(cfg)
	opts.Resume = resumeCrawl
	opts.ForceRestart = forceRestart

	tracker := ui.NewStatusTracker(opts.Limit)
	opts.OnPage = func(r crawler.Result) {
		tracker.Update(ui.CrawlProgress{
			Fetched:    r.Fetched,
			Downloaded: r.Downloaded,
			Skipped:    r.Skipped,
			Failed:     r.Failed,
			Pages:      r.Pages,
		})
	}

	ui.PrintInfo("Account", creds.Username)
	ui.PrintInfo("Keywords", opts.Keywords)
	ui.PrintInfo("Duration", opts.Duration.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := c.Crawl(ctx, creds, opts)
	tracker.Finish()
	summary := ui.Summary{
		Keywords:   opts.Keywords,
		Fetched:    result.Fetched,
		Downloaded: result.Downloaded,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
		Pages:      result.Pages,
		Resumed:    result.Resumed,
		Elapsed:    result.Elapsed,
		OutputDir:  cfg.DownloadsPath(),
	}
	notifier := ui.NewNotifier(notify)

	switch {
	case err == nil:
		ui.PrintSummary(summary)
		notifier.SendSuccess("Crawl complete", ui.CrawlMessage(summary))
		return nil

	case errors.Is(err, auth.ErrChallengeRequired):
		auth.WriteChallengeHelp(os.Stderr, creds.Username)
		return err

	case errors.Is(err, auth.ErrInvalidCredentials):
		ui.PrintWarning("Check the username and password, or run 'lvscraper auth login'")
		return err

	case errors.Is(err, crawler.ErrCheckpointExists):
		printCheckpointHint(cfg, creds.Username, opts.Keywords, log)
		return err

	case errors.Is(err, search.ErrPaginationStalled), errors.Is(err, context.Canceled):
		ui.PrintSummary(summary)
		ui.PrintWarning("Crawl stopped early; continue later with --resume")
		notifier.SendError("Crawl stopped", err.Error())
		return err

	default:
		if result.Pages > 0 {
			ui.PrintSummary(summary)
		}
		return err
	}
}

func printCheckpointHint(cfg *config.Config, account, keywords string, log logger.Logger) {
	mgr, err := checkpoint.NewManager(cfg.CheckpointDir(), account, keywords, log)
	if err != nil {
		return
	}
	info, err := mgr.Info()
	if err != nil || info == nil {
		return
	}
	ui.PrintWarning("An unfinished crawl exists for these keywords")
	ui.PrintInfo("  Results walked", fmt.Sprintf("%v", info["fetched"]))
	ui.PrintInfo("  Downloaded", fmt.Sprintf("%v", info["total_downloaded"]))
	fmt.Fprintf(ui.Output, "  Use: %s to continue where it left off\n", ui.Green("--resume"))
	fmt.Fprintf(ui.Output, "  Use: %s to start fresh\n", ui.Yellow("--force-restart"))
}

// resolveCredentials fills in the account and, when there is no stored
// session or needPassword is set, the password, prompting where allowed.
func resolveCredentials(cfg *config.Config, c *crawler.Crawler, needPassword bool) (auth.Credentials, error) {
	creds := auth.CredentialsFromConfig(cfg)
	if creds.Username == "" {
		if !stdinIsTerminal() {
			return creds, errors.New("no account given: set --username or LVSCRAPER_USERNAME")
		}
		u, err := readLine("LinkedIn email: ")
		if err != nil {
			return creds, fmt.Errorf("read username: %w", err)
		}
		creds.Username = u
	}

	if creds.Password != "" {
		return creds, nil
	}
	if !needPassword {
		if _, err := c.Store().Load(creds.Username); err == nil {
			return creds, nil
		}
		if _, ok := auth.SessionFromEnv(creds.Username); ok {
			return creds, nil
		}
	}
	if !stdinIsTerminal() {
		return creds, nil
	}
	p, err := readSecret("LinkedIn password: ")
	if err != nil {
		return creds, fmt.Errorf("read password: %w", err)
	}
	creds.Password = p
	return creds, nil
}
