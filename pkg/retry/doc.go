// Package retry repeats transient failures of platform requests with
// exponential or constant backoff. Only typed errors classified as
// retryable (network, rate limit, server error) are repeated by default.
package retry
