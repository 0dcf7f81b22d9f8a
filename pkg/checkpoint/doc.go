// Package checkpoint saves and restores crawl progress so an interrupted
// crawl can continue where it stopped.
//
// One checkpoint exists per (account, keywords) pair, stored as JSON under
// the configured data directory (data/checkpoints by default). It tracks the
// server offset of the next page to request, how many results were fetched
// against the limit, and running download totals.
//
// Checkpoint files are written atomically and carry a format version.
package checkpoint
