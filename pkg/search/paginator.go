package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	errs "github.com/haruaki07/linkedin-video-scraper/pkg/errors"
	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/retry"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

// Unbounded as a Query limit fetches until the server-reported total
const Unbounded = -1

const defaultMaxConsecutiveFailures = 5

// ErrPaginationStalled is matched by every *StalledError
var ErrPaginationStalled = errors.New("pagination stalled")

// StalledError reports that the same page failed too many times in a row
type StalledError struct {
	Offset   int
	Failures int
	Last     error
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("%s at offset %d after %d consecutive failures: %v",
		ErrPaginationStalled, e.Offset, e.Failures, e.Last)
}

func (e *StalledError) Is(target error) bool { return target == ErrPaginationStalled }
func (e *StalledError) Unwrap() error        { return e.Last }

// Searcher fetches one page of search results
type Searcher interface {
	SearchClusters(ctx context.Context, sess session.Session, r linkedin.SearchRequest) (*linkedin.SearchResponse, error)
}

// Options tunes a Paginator
type Options struct {
	// PageSize is the default count per request, capped at the platform maximum
	PageSize int
	// MaxConsecutiveFailures of the same page before giving up
	MaxConsecutiveFailures int
	// FailureBackoff is consulted with the failure count before retrying a page
	FailureBackoff retry.BackoffStrategy
}

// OptionsFromConfig derives paginator options from the search settings
func OptionsFromConfig(sc config.SearchConfig) Options {
	return Options{
		PageSize:               sc.PageSize,
		MaxConsecutiveFailures: sc.MaxConsecutiveFailures,
		FailureBackoff:         &retry.ConstantBackoff{Delay: sc.FailureDelay},
	}
}

// Query describes one search run
type Query struct {
	Keywords string
	// Limit caps the number of results walked; Unbounded (or any negative) means no cap
	Limit int
	// Offset is the server offset the first page starts at
	Offset int
	// PageSize overrides Options.PageSize when positive
	PageSize int
}

// Page is one successfully fetched page
type Page struct {
	Offset     int
	Count      int
	Candidates []linkedin.CandidatePost
	// Total is the server-reported result count, nil when not reported
	Total *int
	// Fetched and Limit are the cursor's state after this page
	Fetched int
	Limit   int
}

// Paginator walks the search endpoint page by page
type Paginator struct {
	searcher Searcher
	opts     Options
	logger   logger.Logger
}

// NewPaginator creates a paginator over searcher
func NewPaginator(searcher Searcher, opts Options, log logger.Logger) *Paginator {
	if opts.PageSize <= 0 || opts.PageSize > linkedin.MaxSearchCount {
		opts.PageSize = linkedin.MaxSearchCount
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if opts.FailureBackoff == nil {
		opts.FailureBackoff = retry.DefaultExponentialBackoff()
	}
	return &Paginator{
		searcher: searcher,
		opts:     opts,
		logger:   logger.OrNop(log).WithField("component", "search"),
	}
}

// Search returns a cursor over the pages of q. Nothing is requested until
// the first call to Next.
func (p *Paginator) Search(sess session.Session, q Query) *Cursor {
	limit := q.Limit
	if limit < 0 {
		limit = Unbounded
	}
	hint := p.opts.PageSize
	if q.PageSize > 0 && q.PageSize < hint {
		hint = q.PageSize
	}
	return &Cursor{
		p:     p,
		sess:  sess,
		query: q,
		hint:  hint,
		limit: limit,
	}
}

// Cursor is a finite, non-restartable sequence of pages. It is not safe for
// concurrent use.
type Cursor struct {
	p     *Paginator
	sess  session.Session
	query Query
	hint  int

	fetched  int
	limit    int
	failures int
	page     Page
	err      error
	done     bool
}

// pageResult is the outcome of one request for a page
type pageResult interface{ isPageResult() }

type pageFetched struct {
	candidates []linkedin.CandidatePost
	total      *int
}

type pageFailed struct {
	err error
}

func (pageFetched) isPageResult() {}
func (pageFailed) isPageResult()  {}

// Next fetches the next page. It returns false when the limit is reached
// or an error stopped the cursor; Err tells the two apart.
func (c *Cursor) Next(ctx context.Context) bool {
	for !c.done {
		if c.limit >= 0 && c.fetched >= c.limit {
			c.done = true
			break
		}

		offset := c.query.Offset + c.fetched
		count := c.pageSize()

		switch r := c.fetch(ctx, offset, count).(type) {
		case pageFetched:
			c.failures = 0
			c.fetched += count
			c.tighten(r.total)
			// without a reported total an unbounded cursor cannot know where
			// the results end, so it stops after this page
			if c.limit < 0 {
				c.done = true
			}
			c.page = Page{
				Offset:     offset,
				Count:      count,
				Candidates: r.candidates,
				Total:      r.total,
				Fetched:    c.fetched,
				Limit:      c.limit,
			}
			logger.LogPage(c.p.logger, offset, count, len(r.candidates), c.fetched, c.limit)
			return true

		case pageFailed:
			if !c.handleFailure(ctx, offset, r.err) {
				c.done = true
			}
		}
	}
	return false
}

// Page returns the page produced by the last successful Next
func (c *Cursor) Page() Page { return c.page }

// Err returns the error that stopped the cursor, if any
func (c *Cursor) Err() error { return c.err }

// Fetched is the number of results walked so far (requested counts, not matches)
func (c *Cursor) Fetched() int { return c.fetched }

// Limit is the current effective limit, Unbounded until a total is known
func (c *Cursor) Limit() int { return c.limit }

// UseSession swaps the session sent with subsequent page requests, after
// the server refreshed the cookie set.
func (c *Cursor) UseSession(sess session.Session) { c.sess = sess }

func (c *Cursor) pageSize() int {
	size := c.hint
	if c.limit >= 0 {
		if remaining := c.limit - c.fetched; remaining < size {
			size = remaining
		}
	}
	return size
}

// tighten lowers the limit to what the server says remains from the
// starting offset. The limit never grows.
func (c *Cursor) tighten(total *int) {
	if total == nil {
		return
	}
	available := *total - c.query.Offset
	if available < 0 {
		available = 0
	}
	if c.limit < 0 || c.limit > available {
		c.limit = available
	}
}

func (c *Cursor) fetch(ctx context.Context, offset, count int) pageResult {
	resp, err := c.p.searcher.SearchClusters(ctx, c.sess, linkedin.SearchRequest{
		Keywords: c.query.Keywords,
		Start:    offset,
		Count:    count,
	})
	if err != nil {
		return pageFailed{err: err}
	}

	var candidates []linkedin.CandidatePost
	for _, cand := range linkedin.Candidates(resp.Included) {
		if cand.UpdateURN == "" {
			c.p.logger.DebugWithFields("candidate without update reference skipped", map[string]interface{}{
				"urn": cand.EntityURN,
			})
			continue
		}
		candidates = append(candidates, cand)
	}
	return pageFetched{candidates: candidates, total: resp.Data.Paging.Total}
}

// handleFailure decides whether a failed page is retried. It records the
// terminal error and returns false when it is not.
func (c *Cursor) handleFailure(ctx context.Context, offset int, err error) bool {
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.err = ctxErr
		return false
	}
	if errs.Is(err, errs.ErrorTypeAuth) {
		c.err = err
		return false
	}

	c.failures++
	c.p.logger.WarnWithFields("search page failed", map[string]interface{}{
		"offset":   offset,
		"failures": c.failures,
		"error":    err.Error(),
	})
	if c.failures >= c.p.opts.MaxConsecutiveFailures {
		c.err = &StalledError{Offset: offset, Failures: c.failures, Last: err}
		return false
	}

	if werr := retry.Wait(ctx, c.p.opts.FailureBackoff.NextDelay(c.failures)); werr != nil {
		c.err = werr
		return false
	}
	return true
}
