package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteChallengeHelp explains how to complete a verification challenge
func WriteChallengeHelp(w io.Writer, username string) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "VERIFICATION REQUIRED")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "LinkedIn asked for an extra verification step for %s.\n", username)
	fmt.Fprintln(w, "The crawl stopped before any search request was sent.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Run: lvscraper auth challenge")
	fmt.Fprintln(w, "  2. LinkedIn emails a one-time PIN to the account address")
	fmt.Fprintln(w, "  3. Type the PIN when prompted (it is not echoed)")
	fmt.Fprintln(w, "  4. Run the crawl again; the stored session is reused")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Alternatively export cookies from a logged-in browser:")
	fmt.Fprintf(w, "  %s=<JSESSIONID value>  %s=<li_at value>\n", EnvSessionCookie, EnvAuthCookie)
	fmt.Fprintln(w, rule)
}
