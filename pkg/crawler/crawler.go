package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/internal/downloader"
	"github.com/haruaki07/linkedin-video-scraper/pkg/auth"
	"github.com/haruaki07/linkedin-video-scraper/pkg/checkpoint"
	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	errs "github.com/haruaki07/linkedin-video-scraper/pkg/errors"
	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/search"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
	"github.com/haruaki07/linkedin-video-scraper/pkg/storage"
)

// ErrCheckpointExists is returned when a previous crawl for the same account
// and keywords left a checkpoint and neither Resume nor ForceRestart was set.
var ErrCheckpointExists = errors.New("checkpoint exists: resume to continue or force a restart to start fresh")

// Deps are the collaborators a Crawler is built from. Nil fields are
// constructed from the config.
type Deps struct {
	Client *linkedin.Client
	Store  session.Store
	Logger logger.Logger
}

// Options describes one crawl
type Options struct {
	Keywords string
	// Limit caps the number of search results walked; negative means unbounded
	Limit  int
	Offset int
	// PageSize lowers the per-request count when positive
	PageSize int
	Duration downloader.DurationRange

	Resume       bool
	ForceRestart bool

	// OnPage, when set, receives the running totals after every page
	OnPage func(Result)
}

// OptionsFromConfig derives crawl options from the search and download settings
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Keywords: cfg.Search.Keywords,
		Limit:    cfg.Search.Limit,
		Offset:   cfg.Search.Offset,
		Duration: downloader.DurationRange{
			Min: cfg.Download.MinDuration,
			Max: cfg.Download.MaxDuration,
		},
	}
}

// Result summarizes a crawl. Counts include progress restored from a
// checkpoint when the crawl was resumed.
type Result struct {
	Fetched    int
	Downloaded int
	Skipped    int
	Failed     int
	Pages      int
	Resumed    bool
	Source     auth.Source
	Elapsed    time.Duration
}

// Crawler authenticates an account, walks the search results for a keyword
// query and downloads the videos whose duration qualifies.
type Crawler struct {
	cfg    *config.Config
	client *linkedin.Client
	store  session.Store
	logger logger.Logger
}

// New creates a Crawler
func New(cfg *config.Config, deps Deps) (*Crawler, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log := logger.OrNop(deps.Logger)

	client := deps.Client
	if client == nil {
		client = linkedin.NewClient(linkedin.OptionsFromConfig(cfg, log), log)
	}
	store := deps.Store
	if store == nil {
		var err error
		store, err = session.Open(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
	}

	return &Crawler{
		cfg:    cfg,
		client: client,
		store:  store,
		logger: log.WithField("component", "crawler"),
	}, nil
}

// Store returns the session store the crawler persists to
func (c *Crawler) Store() session.Store { return c.store }

// Login returns a usable session for creds without crawling. It is the
// same path Crawl takes before the first search request.
func (c *Crawler) Login(ctx context.Context, creds auth.Credentials) (session.Session, auth.Source, error) {
	if err := c.ensureDirs(); err != nil {
		return session.Session{}, 0, err
	}
	return c.flow(creds).Init(ctx)
}

// Logout deletes the stored session of account
func (c *Crawler) Logout(account string) error {
	return c.store.Delete(account)
}

// ResolveChallenge drives the verification sub-flow for creds, asking
// provider for the one-time code. On success the session is stored and a
// following Crawl proceeds without logging in again.
func (c *Crawler) ResolveChallenge(ctx context.Context, creds auth.Credentials, provider auth.CodeProvider) (session.Session, error) {
	if err := c.ensureDirs(); err != nil {
		return session.Session{}, err
	}
	return c.flow(creds).ResolveChallenge(ctx, provider)
}

// Crawl runs one crawl. Authentication failures, including a required
// challenge, end it before anything is fetched. A stalled pagination or a
// cancelled context returns the partial Result together with the error,
// and leaves the checkpoint in place for a later resume.
func (c *Crawler) Crawl(ctx context.Context, creds auth.Credentials, opts Options) (Result, error) {
	started := time.Now()
	log := c.logger.WithFields(map[string]interface{}{
		"account":  creds.Username,
		"keywords": opts.Keywords,
	})

	if err := c.ensureDirs(); err != nil {
		return Result{}, err
	}
	videos, err := storage.NewManager(c.cfg.DownloadsPath())
	if err != nil {
		return Result{}, fmt.Errorf("prepare downloads directory: %w", err)
	}

	ckpt, err := checkpoint.NewManager(c.cfg.CheckpointDir(), creds.Username, opts.Keywords, log)
	if err != nil {
		return Result{}, err
	}
	cp, err := c.openCheckpoint(ckpt, opts)
	if err != nil {
		return Result{}, err
	}

	flow := c.flow(creds)
	sess, source, err := flow.Init(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("authenticate: %w", err)
	}

	current := &sessionRef{sess: sess}
	unregister := c.client.OnSessionCookies(func(cookies []*http.Cookie) {
		refreshed, err := current.merge(cookies)
		if err != nil {
			log.WithError(err).Warn("refreshed cookies could not be applied")
			return
		}
		if err := c.store.Save(refreshed); err != nil {
			log.WithError(err).Warn("failed to persist refreshed session")
			return
		}
		log.Debug("session refreshed")
	})
	defer unregister()

	query := search.Query{
		Keywords: opts.Keywords,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
		PageSize: opts.PageSize,
	}
	result := Result{Source: source}
	base := 0
	if cp != nil {
		query.Offset = cp.NextOffset
		query.Limit = cp.Remaining()
		base = cp.Fetched
		result.Resumed = true
		result.Fetched = cp.Fetched
		result.Downloaded = cp.TotalDownloaded
		result.Skipped = cp.TotalSkipped
		result.Failed = cp.TotalFailed
		result.Pages = cp.Pages
		log.InfoWithFields("resuming crawl from checkpoint", map[string]interface{}{
			"next_offset": cp.NextOffset,
			"fetched":     cp.Fetched,
			"downloaded":  cp.TotalDownloaded,
		})
	} else {
		cp, err = ckpt.Create(opts.Offset, opts.Limit)
		if err != nil {
			return Result{}, err
		}
	}

	pipeOpts := downloader.OptionsFromConfig(c.cfg)
	pipeOpts.Account = creds.Username
	pipeOpts.Keywords = opts.Keywords
	pipeline := downloader.NewPipeline(c.client, videos, pipeOpts, log)
	paginator := search.NewPaginator(c.client, search.OptionsFromConfig(c.cfg.Search), log)

	logger.LogComponentStart(log, "crawler", map[string]interface{}{
		"limit":    query.Limit,
		"offset":   query.Offset,
		"duration": opts.Duration.String(),
		"source":   source.String(),
		"existing": videos.DownloadedCount(),
	})

	pagesThisRun := 0
	reauthenticated := false
	var crawlErr error
	for {
		cursor := paginator.Search(current.get(), query)
		for cursor.Next(ctx) {
			page := cursor.Page()
			pagesThisRun++

			po, err := pipeline.DownloadCandidates(ctx, current.get(), page.Candidates, opts.Duration)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					crawlErr = ctxErr
					break
				}
				log.WithError(err).WarnWithFields("page media lookup failed, candidates skipped", map[string]interface{}{
					"offset":     page.Offset,
					"candidates": len(page.Candidates),
				})
			}

			result.Pages++
			result.Fetched = base + page.Fetched
			result.Downloaded += po.Downloaded
			result.Skipped += po.Skipped
			result.Failed += po.Failed

			limit := page.Limit
			if limit >= 0 {
				limit += base
			}
			if err := ckpt.UpdateProgress(cp, checkpoint.Progress{
				NextOffset: page.Offset + page.Count,
				Limit:      limit,
				Fetched:    base + page.Fetched,
				Downloaded: po.Downloaded,
				Skipped:    po.Skipped,
				Failed:     po.Failed,
			}); err != nil {
				log.WithError(err).Warn("failed to save checkpoint")
			}

			if opts.OnPage != nil {
				snapshot := result
				snapshot.Elapsed = time.Since(started)
				opts.OnPage(snapshot)
			}
			cursor.UseSession(current.get())
		}
		if crawlErr != nil {
			break
		}

		err := cursor.Err()
		if err != nil && !reauthenticated && pagesThisRun == 0 && source != auth.SourceCredentials && errs.Is(err, errs.ErrorTypeAuth) {
			log.WithError(err).Warn("session rejected, logging in again")
			reauthenticated = true
			if ierr := flow.Invalidate(ctx); ierr != nil {
				log.WithError(ierr).Warn("failed to invalidate stored session")
			}
			sess, aerr := flow.Authenticate(ctx)
			if aerr != nil {
				c.discardUnused(ckpt, result.Resumed, log)
				return result, fmt.Errorf("re-authenticate: %w", aerr)
			}
			current.set(sess)
			source = auth.SourceCredentials
			result.Source = source
			continue
		}
		crawlErr = err
		break
	}

	result.Elapsed = time.Since(started)
	if crawlErr != nil {
		if pagesThisRun == 0 {
			c.discardUnused(ckpt, result.Resumed, log)
		}
		log.WithError(crawlErr).ErrorWithFields("crawl stopped early", map[string]interface{}{
			"fetched":    result.Fetched,
			"downloaded": result.Downloaded,
		})
		return result, crawlErr
	}

	if err := ckpt.Delete(); err != nil {
		log.WithError(err).Warn("failed to remove checkpoint")
	}
	logger.LogComponentStop(log, "crawler", "completed")
	log.InfoWithFields("crawl completed", map[string]interface{}{
		"fetched":    result.Fetched,
		"downloaded": result.Downloaded,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
		"pages":      result.Pages,
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
	return result, nil
}

// discardUnused removes a checkpoint this run created without completing a
// page, so a plain retry is not refused.
func (c *Crawler) discardUnused(ckpt *checkpoint.Manager, resumed bool, log logger.Logger) {
	if resumed {
		return
	}
	if err := ckpt.Delete(); err != nil {
		log.WithError(err).Warn("failed to remove unused checkpoint")
	}
}

func (c *Crawler) openCheckpoint(ckpt *checkpoint.Manager, opts Options) (*checkpoint.Checkpoint, error) {
	if !ckpt.Exists() {
		return nil, nil
	}
	switch {
	case opts.ForceRestart:
		c.logger.Info("ignoring existing checkpoint")
		return nil, ckpt.Delete()
	case opts.Resume:
		cp, err := ckpt.Load()
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		return cp, nil
	default:
		return nil, ErrCheckpointExists
	}
}

func (c *Crawler) flow(creds auth.Credentials) *auth.Flow {
	return auth.NewFlow(c.client, c.store, creds, c.logger)
}

// ensureDirs creates the data and downloads directories
func (c *Crawler) ensureDirs() error {
	for _, dir := range []string{c.cfg.Storage.DataDir, c.cfg.DownloadsPath()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// sessionRef holds the session of a running crawl. The response observer
// replaces it while downloads may be reading it.
type sessionRef struct {
	mu   sync.RWMutex
	sess session.Session
}

func (r *sessionRef) get() session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sess
}

func (r *sessionRef) set(s session.Session) {
	r.mu.Lock()
	r.sess = s
	r.mu.Unlock()
}

func (r *sessionRef) merge(cookies []*http.Cookie) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := r.sess.Merge(cookies)
	if err != nil {
		return session.Session{}, err
	}
	r.sess = next
	return next, nil
}
