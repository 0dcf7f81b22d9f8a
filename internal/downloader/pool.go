package downloader

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
)

// DownloadJob is one video to process
type DownloadJob struct {
	Index int
	Asset linkedin.VideoAsset
	Range DurationRange
}

// Processor turns a job into its outcome. It must not panic and must
// report every problem through the returned Outcome.
type Processor func(ctx context.Context, job DownloadJob) Outcome

// Pool runs jobs concurrently with a bound on in-flight work
type Pool struct {
	numWorkers int
	process    Processor
	logger     logger.Logger
}

// NewPool creates a pool running at most numWorkers jobs at once
func NewPool(numWorkers int, process Processor, log logger.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Pool{
		numWorkers: numWorkers,
		process:    process,
		logger:     logger.OrNop(log),
	}
}

// Run processes every job and returns their outcomes in job order. It
// returns only once all jobs have settled; one job's failure never cancels
// another.
func (p *Pool) Run(ctx context.Context, jobs []DownloadJob) []Outcome {
	results := make([]Outcome, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	start := time.Now()
	p.logger.DebugWithFields("dispatching downloads", map[string]interface{}{
		"jobs":        len(jobs),
		"num_workers": p.numWorkers,
	})

	var g errgroup.Group
	g.SetLimit(p.numWorkers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = p.process(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	p.logger.DebugWithFields("downloads settled", map[string]interface{}{
		"jobs":     len(jobs),
		"duration": time.Since(start),
	})
	return results
}

// NumWorkers returns the concurrency bound
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}
