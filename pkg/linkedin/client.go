package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	errs "github.com/haruaki07/linkedin-video-scraper/pkg/errors"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/ratelimit"
	"github.com/haruaki07/linkedin-video-scraper/pkg/retry"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

const bodyPreviewLimit = 200

// Options configures a Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// Limiter throttles API requests. Stream downloads are not throttled.
	Limiter ratelimit.Limiter
	// Retry governs transient failures of a single request
	Retry *retry.Config
	// HTTPClient overrides the underlying client, mostly for tests
	HTTPClient *http.Client
}

// OptionsFromConfig derives client options from the application config
func OptionsFromConfig(cfg *config.Config, log logger.Logger) Options {
	return Options{
		BaseURL:   cfg.LinkedIn.BaseURL,
		UserAgent: cfg.LinkedIn.UserAgent,
		Timeout:   cfg.LinkedIn.Timeout,
		Limiter:   ratelimit.FromConfig(cfg.RateLimit),
		Retry:     retry.FromConfig(cfg.Retry, log),
	}
}

// CookieObserver receives the Set-Cookie values of a response that carried
// both primary session cookies.
type CookieObserver func(cookies []*http.Cookie)

// Client talks to the platform's web and voyager endpoints
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger

	mu        sync.RWMutex
	observers map[int]CookieObserver
	nextID    int
}

// NewClient creates a new platform client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = MobileUserAgent
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = log
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		httpClient: hc,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		limiter:    opts.Limiter,
		retry:      opts.Retry,
		logger:     log,
		observers:  make(map[int]CookieObserver),
	}
}

// BaseURL returns the origin requests are sent to
func (c *Client) BaseURL() string { return c.baseURL }

// UserAgent returns the User-Agent sent with every request
func (c *Client) UserAgent() string { return c.userAgent }

// NewCookieClient returns an HTTP client sharing this client's transport and
// timeout but keeping its own cookies in jar. It is used by multi-step web
// flows that rely on a browser-like cookie store.
func (c *Client) NewCookieClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Transport: c.httpClient.Transport,
		Timeout:   c.httpClient.Timeout,
		Jar:       jar,
	}
}

// OnSessionCookies registers fn to be called for every response that sets
// both JSESSIONID and li_at. The returned func unregisters it.
func (c *Client) OnSessionCookies(fn CookieObserver) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Client) notify(cookies []*http.Cookie) {
	if !session.HasPrimaryCookies(cookies) {
		return
	}
	c.mu.RLock()
	fns := make([]CookieObserver, 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(cookies)
	}
}

// Do sends req after waiting on the rate limiter. Any status is returned to
// the caller; only transport failures become errors.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.send(req.WithContext(ctx))
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.Redacted(),
			"error":    err.Error(),
			"duration": elapsed,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, "request failed", err)
	}

	logger.LogRequest(c.logger, req.Method, req.URL.Redacted(), resp.StatusCode, elapsed)
	c.notify(resp.Cookies())
	return resp, nil
}

// getJSON performs an authenticated voyager GET with retries and decodes the body
func (c *Client) getJSON(ctx context.Context, sess session.Session, rawURL string, target interface{}) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeUnknown, 0, "failed to create request", err)
		}
		req.Header.Set("Accept", NormalizedJSON)
		req.Header.Set("X-Restli-Protocol-Version", RestliProtocolVersion)
		sess.Apply(req.Header)

		resp, err := c.Do(ctx, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body", err)
		}
		if err := json.Unmarshal(body, target); err != nil {
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          req.URL.Redacted(),
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": preview(body),
			})
			return errs.Wrap(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse JSON", err)
		}
		return nil
	})
}

// checkResponseStatus maps a non-success status onto a typed error
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	fields := map[string]interface{}{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.Redacted(),
	}
	e := errs.FromStatus(resp.StatusCode, http.StatusText(resp.StatusCode))
	switch e.Type {
	case errs.ErrorTypeAuth:
		c.logger.WarnWithFields("authentication rejected", fields)
		e.Message = "session rejected"
	case errs.ErrorTypeRateLimit:
		c.logger.WarnWithFields("rate limit exceeded", fields)
	case errs.ErrorTypeNotFound:
		c.logger.WarnWithFields("resource not found", fields)
	default:
		c.logger.ErrorWithFields("unexpected API error", fields)
	}
	return e
}

// SearchClusters fetches one page of content search results
func (c *Client) SearchClusters(ctx context.Context, sess session.Session, r SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.getJSON(ctx, sess, SearchURL(c.baseURL, r), &resp); err != nil {
		return nil, fmt.Errorf("search clusters start=%d count=%d: %w", r.Start, r.Count, err)
	}
	return &resp, nil
}

// UpdatesV2 looks up the media of a batch of update URNs in one request
func (c *Client) UpdatesV2(ctx context.Context, sess session.Session, urns []string) (*UpdatesResponse, error) {
	var resp UpdatesResponse
	if err := c.getJSON(ctx, sess, UpdatesV2URL(c.baseURL, urns), &resp); err != nil {
		return nil, fmt.Errorf("updates lookup of %d urns: %w", len(urns), err)
	}
	return &resp, nil
}

// Stream opens a media stream URL. The caller owns the returned body. The
// size is -1 when the server does not report it.
func (c *Client) Stream(ctx context.Context, streamURL string) (io.ReadCloser, int64, error) {
	type opened struct {
		body io.ReadCloser
		size int64
	}
	o, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) (opened, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
		if err != nil {
			return opened{}, errs.Wrap(errs.ErrorTypeUnknown, 0, "failed to create request", err)
		}
		resp, err := c.send(req)
		if err != nil {
			return opened{}, err
		}
		if err := c.checkResponseStatus(resp); err != nil {
			resp.Body.Close()
			return opened{}, err
		}
		return opened{body: resp.Body, size: resp.ContentLength}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return o.body, o.size, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > bodyPreviewLimit {
		s = s[:bodyPreviewLimit] + "..."
	}
	return s
}
