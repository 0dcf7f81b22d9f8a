package downloader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/metadata"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

// MediaClient resolves update references to media and opens streams
type MediaClient interface {
	UpdatesV2(ctx context.Context, sess session.Session, urns []string) (*linkedin.UpdatesResponse, error)
	Stream(ctx context.Context, streamURL string) (io.ReadCloser, int64, error)
}

// VideoStorage places downloaded videos on disk
type VideoStorage interface {
	NewVideoPath() string
	SaveVideo(r io.Reader, path string) (int64, error)
	Remember(urn, path string)
	Lookup(urn string) (string, bool)
}

// Options tunes a Pipeline
type Options struct {
	ConcurrentDownloads int
	// Timeout bounds a single video download; zero means none
	Timeout       time.Duration
	WriteMetadata bool
	SkipExisting  bool

	// Account and Keywords are recorded in metadata sidecars
	Account  string
	Keywords string
}

// OptionsFromConfig derives pipeline options from the application config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConcurrentDownloads: cfg.Download.ConcurrentDownloads,
		Timeout:             cfg.Download.Timeout,
		WriteMetadata:       cfg.Storage.WriteMetadata,
		SkipExisting:        cfg.Download.SkipExisting,
		Account:             cfg.LinkedIn.Username,
		Keywords:            cfg.Search.Keywords,
	}
}

// Pipeline resolves a page of candidates to videos and downloads the ones
// whose duration qualifies.
type Pipeline struct {
	client  MediaClient
	storage VideoStorage
	opts    Options
	pool    *Pool
	logger  logger.Logger
}

// NewPipeline creates a download pipeline
func NewPipeline(client MediaClient, storage VideoStorage, opts Options, log logger.Logger) *Pipeline {
	log = logger.OrNop(log).WithField("component", "downloader")
	p := &Pipeline{
		client:  client,
		storage: storage,
		opts:    opts,
		logger:  log,
	}
	p.pool = NewPool(opts.ConcurrentDownloads, p.process, log)
	return p
}

// DownloadCandidates resolves the media of candidates in one request and
// downloads every video within rng. The returned error only reports a
// failed media lookup; per-video problems are in the outcomes.
func (p *Pipeline) DownloadCandidates(ctx context.Context, sess session.Session, candidates []linkedin.CandidatePost, rng DurationRange) (PageOutcome, error) {
	if len(candidates) == 0 {
		return PageOutcome{}, nil
	}

	urns := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.UpdateURN == "" || seen[c.UpdateURN] {
			continue
		}
		seen[c.UpdateURN] = true
		urns = append(urns, c.UpdateURN)
	}
	if len(urns) == 0 {
		return PageOutcome{}, nil
	}

	resp, err := p.client.UpdatesV2(ctx, sess, urns)
	if err != nil {
		return PageOutcome{}, fmt.Errorf("resolve media: %w", err)
	}

	videos := linkedin.Videos(resp.Included)
	jobs := make([]DownloadJob, len(videos))
	for i, v := range videos {
		jobs[i] = DownloadJob{Index: i, Asset: v, Range: rng}
	}

	po := tally(p.pool.Run(ctx, jobs))
	po.Resolved = len(videos)

	for _, o := range po.Outcomes {
		label, reason := outcomeLabel(o)
		logger.LogDownload(p.logger, o.AssetURN(), label, reason)
	}
	p.logger.InfoWithFields("page downloads settled", map[string]interface{}{
		"candidates": len(candidates),
		"resolved":   po.Resolved,
		"downloaded": po.Downloaded,
		"skipped":    po.Skipped,
		"failed":     po.Failed,
	})
	return po, nil
}

func (p *Pipeline) process(ctx context.Context, job DownloadJob) Outcome {
	asset := job.Asset
	seconds := floorSeconds(asset.DurationMs)

	if !job.Range.Contains(seconds) {
		return Skipped{URN: asset.EntityURN, Reason: fmt.Errorf("%w: %ds not in %s", ErrInvalidDuration, seconds, job.Range)}
	}
	if asset.StreamURL == "" {
		return Skipped{URN: asset.EntityURN, Reason: ErrNoStream}
	}
	if p.opts.SkipExisting {
		if path, ok := p.storage.Lookup(asset.EntityURN); ok {
			return Skipped{URN: asset.EntityURN, Reason: fmt.Errorf("%w: %s", ErrAlreadyDownloaded, path)}
		}
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	body, _, err := p.client.Stream(ctx, asset.StreamURL)
	if err != nil {
		return Failed{URN: asset.EntityURN, Err: fmt.Errorf("open stream: %w", err)}
	}
	defer body.Close()

	path := p.storage.NewVideoPath()
	n, err := p.storage.SaveVideo(body, path)
	if err != nil {
		return Failed{URN: asset.EntityURN, Err: &StreamWriteError{URN: asset.EntityURN, Path: path, Err: err}}
	}
	p.storage.Remember(asset.EntityURN, path)

	if p.opts.WriteMetadata {
		meta := &metadata.VideoMetadata{
			URN:          asset.EntityURN,
			StreamURL:    asset.StreamURL,
			DurationMs:   asset.DurationMs,
			Duration:     seconds,
			Width:        asset.Width,
			Height:       asset.Height,
			MediaType:    asset.MediaType,
			FileSize:     n,
			Account:      p.opts.Account,
			Keywords:     p.opts.Keywords,
			DownloadedAt: time.Now().UTC(),
		}
		if err := meta.Save(path); err != nil {
			p.logger.WithError(err).Warn("failed to write metadata sidecar")
		}
	}

	return Downloaded{URN: asset.EntityURN, Path: path, Bytes: n}
}

// floorSeconds converts milliseconds to whole seconds rounding down
func floorSeconds(ms int64) int {
	s := ms / 1000
	if ms%1000 < 0 {
		s--
	}
	return int(s)
}
