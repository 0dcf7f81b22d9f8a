package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// CrawlProgress holds the running totals shown on the progress line
type CrawlProgress struct {
	Fetched    int
	Downloaded int
	Skipped    int
	Failed     int
	Pages      int
}

// StatusTracker renders crawl progress on a single, rewritten line
type StatusTracker struct {
	limit     int
	startTime time.Time
	last      CrawlProgress
}

// NewStatusTracker creates a tracker for a crawl walking at most limit
// results; a negative limit means the total is unknown.
func NewStatusTracker(limit int) *StatusTracker {
	return &StatusTracker{
		limit:     limit,
		startTime: time.Now(),
	}
}

// Update records the latest totals and redraws the progress line
func (st *StatusTracker) Update(p CrawlProgress) {
	st.last = p
	if quiet {
		return
	}
	fmt.Fprintf(Output, "\r%s %s | %s %d | %s %d | %s",
		Magenta("[CRAWLING]"),
		st.Bar(),
		Green("downloaded"), p.Downloaded,
		Yellow("skipped"), p.Skipped,
		Dim(fmt.Sprintf("%.1f/min", st.Rate())))
}

// Finish ends the progress line
func (st *StatusTracker) Finish() {
	if quiet || st.last.Pages == 0 {
		return
	}
	fmt.Fprintln(Output)
}

// Bar returns the fetched count, as a bar when the limit is known
func (st *StatusTracker) Bar() string {
	if st.limit < 0 {
		return fmt.Sprintf("%d result(s)", st.last.Fetched)
	}
	if st.limit == 0 {
		return fmt.Sprintf("[%s] 0/0", strings.Repeat(ProgressEmpty, barWidth))
	}

	filled := st.last.Fetched * barWidth / st.limit
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, barWidth-filled)
	return fmt.Sprintf("[%s] %d/%d", bar, st.last.Fetched, st.limit)
}

// Elapsed returns the time since tracking started
func (st *StatusTracker) Elapsed() time.Duration {
	return time.Since(st.startTime)
}

// Rate returns downloaded videos per minute
func (st *StatusTracker) Rate() float64 {
	elapsed := st.Elapsed().Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.last.Downloaded) / elapsed
}
