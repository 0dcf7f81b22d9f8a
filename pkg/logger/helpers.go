package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogRequest logs one completed HTTP exchange with the platform
func LogRequest(l Logger, method, url string, statusCode int, elapsed time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": elapsed.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogPage logs progress of the search pagination
func LogPage(l Logger, offset, count, candidates, fetched, limit int) {
	l.InfoWithFields("Search page fetched", map[string]interface{}{
		"offset":     offset,
		"count":      count,
		"candidates": candidates,
		"fetched":    fetched,
		"limit":      limit,
	})
}

// LogDownload logs the outcome of a single video download
func LogDownload(l Logger, urn, outcome string, err error) {
	entry := l.WithFields(map[string]interface{}{
		"urn":     urn,
		"outcome": outcome,
	})

	switch {
	case err != nil:
		entry.WithError(err).Warn("Download failed")
	case outcome == "downloaded":
		entry.Info("Download completed")
	default:
		entry.Debug("Download skipped")
	}
}

// LogComponentStart logs when a component starts
func LogComponentStart(l Logger, component string, fields map[string]interface{}) {
	entry := l.WithField("component", component)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(l Logger, component, reason string) {
	l.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
