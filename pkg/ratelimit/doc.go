// Package ratelimit throttles requests to the platform's API so a crawl
// does not trip its abuse detection. TokenBucket wraps x/time/rate.
package ratelimit
