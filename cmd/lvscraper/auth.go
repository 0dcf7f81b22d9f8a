package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haruaki07/linkedin-video-scraper/pkg/auth"
	"github.com/haruaki07/linkedin-video-scraper/pkg/crawler"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
	"github.com/haruaki07/linkedin-video-scraper/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored LinkedIn sessions",
	Long: `Manage the LinkedIn sessions lvscraper stores between runs.

Sessions are kept in the backend chosen by --session-backend:
  - file       JSON file under the data directory (default)
  - encrypted  AES-GCM sealed file, key derived from LVSCRAPER_SESSION_PASSPHRASE
  - keyring    the system keychain`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session",
	Long: `Log in with the account's email and password and store the session.

A stored session is reused as is; pass --refresh to log in again.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Complete an emailed PIN verification",
	Long: `Complete the verification LinkedIn requests for unfamiliar logins.

lvscraper signs in through the web login, waits for the PIN LinkedIn
emails to the account and stores the resulting session.`,
	Args: cobra.NoArgs,
	RunE: runChallenge,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [account]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var refreshLogin bool

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd, challengeCmd, statusCmd, logoutCmd)

	loginCmd.Flags().BoolVar(&refreshLogin, "refresh", false, "discard the stored session and log in again")
}

func newCrawler(cmd *cobra.Command) (*crawler.Crawler, error) {
	cfg, log, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	return crawler.New(cfg, crawler.Deps{Logger: log})
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	c, err := crawler.New(cfg, crawler.Deps{Logger: log})
	if err != nil {
		return err
	}
	creds, err := resolveCredentials(cfg, c, refreshLogin)
	if err != nil {
		return err
	}
	if refreshLogin {
		if err := c.Logout(creds.Username); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, source, err := c.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, auth.ErrChallengeRequired) {
			auth.WriteChallengeHelp(os.Stderr, creds.Username)
		}
		return err
	}

	ui.PrintSuccess("Logged in as " + sess.AccountID)
	ui.PrintInfo("Session source", source.String())
	return nil
}

func runChallenge(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	c, err := crawler.New(cfg, crawler.Deps{Logger: log})
	if err != nil {
		return err
	}
	creds, err := resolveCredentials(cfg, c, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ui.PrintInfo("Signing in", creds.Username)
	sess, err := c.ResolveChallenge(ctx, creds, pinPrompt)
	if err != nil {
		var flowErr *auth.ChallengeFlowError
		if errors.As(err, &flowErr) {
			ui.PrintWarning("The LinkedIn login pages did not look as expected", flowErr.Step)
		}
		return err
	}

	ui.PrintSuccess("Verification complete, session stored for " + sess.AccountID)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newCrawler(cmd)
	if err != nil {
		return err
	}

	sessions, err := c.Store().List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.PrintWarning("No stored sessions")
		fmt.Fprintln(ui.Output, "Run 'lvscraper auth login' to create one.")
		return nil
	}

	ui.PrintHighlight(fmt.Sprintf("%d stored session(s)", len(sessions)))
	for _, s := range sessions {
		state := ui.Yellow("incomplete")
		if s.Authenticated() {
			state = ui.Green("authenticated")
		}
		fmt.Fprintf(ui.Output, "  %-32s %s  csrf %s\n", s.AccountID, state, mask(s.CSRFToken))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	c, err := crawler.New(cfg, crawler.Deps{Logger: log})
	if err != nil {
		return err
	}

	account := cfg.LinkedIn.Username
	if len(args) == 1 {
		account = args[0]
	}
	if account == "" {
		return errors.New("no account given: pass it as an argument or set --username")
	}

	if err := c.Logout(account); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			ui.PrintWarning("No stored session for " + account)
			return nil
		}
		return err
	}
	ui.PrintSuccess("Removed stored session for " + account)
	return nil
}

// mask keeps the first and last four characters of long secrets
func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + "..." + s[len(s)-4:]
}
