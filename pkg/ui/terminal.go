package ui

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Banner is printed at the top of interactive commands
const Banner = `
  ┌──────────────────────────────────────────────┐
  │  lvscraper · short-form video crawler        │
  └──────────────────────────────────────────────┘
`

// Output receives everything this package prints
var Output io.Writer = os.Stdout

var (
	quiet   bool
	noColor bool
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) { quiet = q }

// SetNoColor disables ANSI colors
func SetNoColor(v bool) { noColor = v }

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if noColor {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintBanner prints the banner with color
func PrintBanner() {
	if quiet {
		return
	}
	fmt.Fprint(Output, Cyan(Banner))
}

// PrintError prints an error message in red. Errors are printed in quiet mode too.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(Output, Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Red(msg))
	}
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if quiet {
		return
	}
	fmt.Fprintln(Output, Green(msg))
}

// PrintInfo prints a labelled value
func PrintInfo(label string, value string) {
	if quiet {
		return
	}
	fmt.Fprintf(Output, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if quiet {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(Output, Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(Output, Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if quiet {
		return
	}
	fmt.Fprintln(Output, Magenta(msg))
}

// Summary is the outcome of a crawl as shown to the user
type Summary struct {
	Keywords   string
	Fetched    int
	Downloaded int
	Skipped    int
	Failed     int
	Pages      int
	Resumed    bool
	Elapsed    time.Duration
	OutputDir  string
}

// PrintSummary prints the end-of-crawl report
func PrintSummary(s Summary) {
	if quiet {
		return
	}
	fmt.Fprintln(Output)
	PrintHighlight("Crawl summary")
	PrintInfo("  Keywords", s.Keywords)
	if s.Resumed {
		PrintInfo("  Resumed", "yes (totals include earlier runs)")
	}
	PrintInfo("  Results walked", fmt.Sprintf("%d in %d page(s)", s.Fetched, s.Pages))
	PrintInfo("  Downloaded", Green(fmt.Sprintf("%d", s.Downloaded)))
	PrintInfo("  Skipped", fmt.Sprintf("%d", s.Skipped))
	if s.Failed > 0 {
		PrintInfo("  Failed", Red(fmt.Sprintf("%d", s.Failed)))
	}
	PrintInfo("  Elapsed", FormatDuration(s.Elapsed))
	if s.OutputDir != "" {
		PrintInfo("  Saved to", s.OutputDir)
	}
}

// FormatDuration renders d as 1h2m3s, 2m3s or 3s
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
