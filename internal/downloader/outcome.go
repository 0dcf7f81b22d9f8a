package downloader

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDuration skips a video outside the requested duration range
	ErrInvalidDuration = errors.New("duration outside range")
	// ErrNoStream skips a video without a progressive stream
	ErrNoStream = errors.New("no progressive stream")
	// ErrAlreadyDownloaded skips a video already present in the downloads directory
	ErrAlreadyDownloaded = errors.New("already downloaded")
)

// StreamWriteError reports a download that failed after the stream was
// opened. No partial file remains.
type StreamWriteError struct {
	URN  string
	Path string
	Err  error
}

func (e *StreamWriteError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.URN, e.Err)
}

func (e *StreamWriteError) Unwrap() error { return e.Err }

// Outcome is the result of one video: Downloaded, Skipped or Failed
type Outcome interface {
	AssetURN() string
	isOutcome()
}

type Downloaded struct {
	URN   string
	Path  string
	Bytes int64
}

type Skipped struct {
	URN    string
	Reason error
}

type Failed struct {
	URN string
	Err error
}

func (o Downloaded) AssetURN() string { return o.URN }
func (o Skipped) AssetURN() string    { return o.URN }
func (o Failed) AssetURN() string     { return o.URN }

func (Downloaded) isOutcome() {}
func (Skipped) isOutcome()    {}
func (Failed) isOutcome()     {}

// outcomeLabel names an outcome for logs and summaries
func outcomeLabel(o Outcome) (string, error) {
	switch v := o.(type) {
	case Downloaded:
		return "downloaded", nil
	case Skipped:
		return "skipped", v.Reason
	case Failed:
		return "failed", v.Err
	default:
		return "unknown", nil
	}
}

// DurationRange is an inclusive range of whole seconds
type DurationRange struct {
	Min int
	Max int
}

// Contains reports whether seconds lies within the range, bounds included
func (r DurationRange) Contains(seconds int) bool {
	return seconds >= r.Min && seconds <= r.Max
}

func (r DurationRange) String() string {
	return fmt.Sprintf("[%ds, %ds]", r.Min, r.Max)
}

// PageOutcome aggregates the outcomes of one page of candidates
type PageOutcome struct {
	Resolved   int
	Downloaded int
	Skipped    int
	Failed     int
	Outcomes   []Outcome
}

func tally(outcomes []Outcome) PageOutcome {
	po := PageOutcome{Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.(type) {
		case Downloaded:
			po.Downloaded++
		case Skipped:
			po.Skipped++
		case Failed:
			po.Failed++
		}
	}
	return po
}
