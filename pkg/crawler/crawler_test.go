package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/haruaki07/linkedin-video-scraper/internal/downloader"
	"github.com/haruaki07/linkedin-video-scraper/pkg/auth"
	"github.com/haruaki07/linkedin-video-scraper/pkg/checkpoint"
	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/retry"
	"github.com/haruaki07/linkedin-video-scraper/pkg/search"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "alice@example.com"

// platform fakes the search, media, stream and login endpoints. Result i of
// the search is a candidate referencing urn:li:activity:i; durations maps
// the activities that resolve to a video.
type platform struct {
	t         *testing.T
	srv       *httptest.Server
	total     int
	durations map[int]int64
	// validToken is the li_at value the API accepts; empty accepts any
	validToken  string
	loginResult string
	rotateOnce  bool
	// failStart makes every search request at that offset fail; negative disables
	failStart int

	mu       sync.Mutex
	starts   []int
	counts   []int
	logins   int
	rotated  bool
	streamed []string
}

// newPlatform returns an unstarted platform; newFixture starts it once the
// test has configured it.
func newPlatform(t *testing.T) *platform {
	return &platform{t: t, total: 5, durations: map[int]int64{}, loginResult: linkedin.LoginPass, failStart: -1}
}

func (p *platform) authorized(r *http.Request) bool {
	if p.validToken == "" {
		return true
	}
	c, err := r.Cookie("li_at")
	return err == nil && c.Value == p.validToken
}

func (p *platform) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(linkedin.SearchClustersPath, func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		count, _ := strconv.Atoi(r.URL.Query().Get("count"))
		if start == p.failStart {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		p.mu.Lock()
		p.starts = append(p.starts, start)
		p.counts = append(p.counts, count)
		rotate := p.rotateOnce && !p.rotated
		p.rotated = p.rotated || rotate
		p.mu.Unlock()

		if rotate {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ajax:rotated", Quoted: true})
			http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "rotated"})
		}

		resp := linkedin.SearchResponse{}
		total := p.total
		resp.Data.Paging.Total = &total
		for i := start; i < start+count && i < p.total; i++ {
			resp.Included = append(resp.Included, json.RawMessage(fmt.Sprintf(
				`{"entityUrn":"urn:li:result:%d","entityEmbeddedObject":{},"targetUnion":{"updateV2Urn":"urn:li:activity:%d"}}`, i, i)))
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc(linkedin.UpdatesV2Path, func(w http.ResponseWriter, r *http.Request) {
		if !p.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ids := strings.TrimSuffix(strings.TrimPrefix(r.URL.Query().Get("ids"), "List("), ")")

		resp := linkedin.UpdatesResponse{}
		for _, urn := range strings.Split(ids, ",") {
			n, err := strconv.Atoi(strings.TrimPrefix(urn, "urn:li:activity:"))
			if err != nil {
				p.t.Errorf("unexpected update reference %q", urn)
				continue
			}
			ms, ok := p.durations[n]
			if !ok {
				resp.Included = append(resp.Included, json.RawMessage(fmt.Sprintf(`{"entityUrn":%q}`, urn)))
				continue
			}
			resp.Included = append(resp.Included, json.RawMessage(fmt.Sprintf(
				`{"entityUrn":"urn:li:digitalmediaAsset:%d","thumbnail":{},"duration":%d,`+
					`"progressiveStreams":[{"streamingLocations":[{"url":"%s/media/%d.mp4"}],"width":720,"height":1280}]}`,
				n, ms, "http://"+r.Host, n)))
		}
		writeJSON(w, resp)
	})

	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.streamed = append(p.streamed, r.URL.Path)
		p.mu.Unlock()
		fmt.Fprintf(w, "video bytes of %s", r.URL.Path)
	})

	mux.HandleFunc(linkedin.AuthenticatePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ajax:fresh", Quoted: true})
			return
		}
		p.mu.Lock()
		p.logins++
		p.mu.Unlock()
		if p.loginResult == linkedin.LoginPass {
			http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "fresh"})
		}
		writeJSON(w, map[string]string{"login_result": p.loginResult})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", linkedin.NormalizedJSON)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *platform) searchStarts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.starts...)
}

func (p *platform) searchCounts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.counts...)
}

func (p *platform) streams() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.streamed...)
}

func (p *platform) loginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

type fixture struct {
	cfg     *config.Config
	store   *session.MemoryStore
	crawler *Crawler
	log     *logger.TestLogger
}

func newFixture(t *testing.T, p *platform, seed ...session.Session) *fixture {
	t.Helper()
	p.srv = httptest.NewServer(p.handler())
	t.Cleanup(p.srv.Close)

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.LinkedIn.BaseURL = p.srv.URL
	cfg.Search.FailureDelay = 0
	cfg.Download.ConcurrentDownloads = 2

	log := logger.NewTestLogger()
	client := linkedin.NewClient(linkedin.Options{
		BaseURL: p.srv.URL,
		Retry:   &retry.Config{MaxAttempts: 1},
	}, log)
	store := session.NewMemoryStore(seed...)

	c, err := New(cfg, Deps{Client: client, Store: store, Logger: log})
	require.NoError(t, err)
	return &fixture{cfg: cfg, store: store, crawler: c, log: log}
}

func storedSession(token string) session.Session {
	return session.Session{
		AccountID:    testAccount,
		CookieHeader: `JSESSIONID="ajax:stored"; li_at=` + token,
		CSRFToken:    "ajax:stored",
	}
}

func creds() auth.Credentials {
	return auth.Credentials{Username: testAccount, Password: "hunter2"}
}

func videoFiles(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.mp4"))
	require.NoError(t, err)
	return files
}

func TestCrawlEndToEnd(t *testing.T) {
	p := newPlatform(t)
	p.durations = map[int]int64{0: 1000, 2: 10000, 4: 31000}
	f := newFixture(t, p, storedSession("valid"))

	result, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, auth.SourceStored, result.Source)

	assert.Equal(t, []int{0}, p.searchStarts())
	assert.Equal(t, []int{5}, p.searchCounts())
	assert.Equal(t, []string{"/media/2.mp4"}, p.streams())

	files := videoFiles(t, f.cfg.DownloadsPath())
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "video bytes of /media/2.mp4", string(data))

	ckpt, err := checkpoint.NewManager(f.cfg.CheckpointDir(), testAccount, "#video", nil)
	require.NoError(t, err)
	assert.False(t, ckpt.Exists(), "checkpoint should be removed after a clean crawl")
}

func TestCrawlUnboundedConvergesToTotal(t *testing.T) {
	p := newPlatform(t)
	p.total = 60
	f := newFixture(t, p, storedSession("valid"))

	var progress []int
	result, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    search.Unbounded,
		Duration: downloader.DurationRange{Min: 0, Max: 60},
		OnPage: func(r Result) {
			progress = append(progress, r.Fetched)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 60, result.Fetched)
	assert.Equal(t, []int{0, 49}, p.searchStarts())
	assert.Equal(t, []int{49, 11}, p.searchCounts())
	assert.Equal(t, []int{49, 60}, progress)
	assert.Equal(t, 0, result.Downloaded)
}

func TestCrawlReauthenticatesRejectedSession(t *testing.T) {
	p := newPlatform(t)
	p.validToken = "fresh"
	p.durations = map[int]int64{1: 5000}
	f := newFixture(t, p, storedSession("stale"))

	result, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, p.loginCount())
	assert.Equal(t, auth.SourceCredentials, result.Source)
	assert.Equal(t, 1, result.Downloaded)

	stored, err := f.store.Load(testAccount)
	require.NoError(t, err)
	assert.Contains(t, stored.CookieHeader, "li_at=fresh")
	assert.True(t, f.log.HasMessage("session rejected, logging in again"))
}

func TestCrawlRejectedAfterFreshLoginFails(t *testing.T) {
	p := newPlatform(t)
	p.validToken = "never"
	f := newFixture(t, p, storedSession("stale"))

	_, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	})
	require.Error(t, err)
	assert.Equal(t, 1, p.loginCount(), "a rejected session is only replaced once")
}

func TestCrawlChallengeAbortsRun(t *testing.T) {
	p := newPlatform(t)
	p.loginResult = linkedin.LoginChallenge
	f := newFixture(t, p)

	_, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrChallengeRequired)
	assert.Empty(t, p.searchStarts(), "no search may run without a session")
}

func TestCrawlChallengeOnReauthAllowsPlainRetry(t *testing.T) {
	p := newPlatform(t)
	p.validToken = "fresh"
	p.loginResult = linkedin.LoginChallenge
	f := newFixture(t, p, storedSession("stale"))
	opts := Options{
		Keywords: "#video",
		Limit:    5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	}

	_, err := f.crawler.Crawl(context.Background(), creds(), opts)
	require.ErrorIs(t, err, auth.ErrChallengeRequired)

	ckpt, err := checkpoint.NewManager(f.cfg.CheckpointDir(), testAccount, "#video", nil)
	require.NoError(t, err)
	assert.False(t, ckpt.Exists(), "a run without progress must not leave a checkpoint")

	// the challenge stores a working session
	require.NoError(t, f.store.Save(storedSession("fresh")))

	result, err := f.crawler.Crawl(context.Background(), creds(), opts)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Fetched)
	assert.False(t, result.Resumed)
	assert.Equal(t, auth.SourceStored, result.Source)
}

func TestCrawlPersistsRefreshedSession(t *testing.T) {
	p := newPlatform(t)
	p.total = 10
	p.rotateOnce = true
	f := newFixture(t, p, storedSession("valid"))

	_, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    10,
		PageSize: 5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	})
	require.NoError(t, err)

	stored, err := f.store.Load(testAccount)
	require.NoError(t, err)
	assert.Contains(t, stored.CookieHeader, "li_at=rotated")
	assert.Equal(t, "ajax:rotated", stored.CSRFToken)
}

func TestCrawlResumesFromCheckpoint(t *testing.T) {
	p := newPlatform(t)
	p.durations = map[int]int64{3: 10000, 4: 12000}
	f := newFixture(t, p, storedSession("valid"))

	ckpt, err := checkpoint.NewManager(f.cfg.CheckpointDir(), testAccount, "#video", nil)
	require.NoError(t, err)
	cp, err := ckpt.Create(0, 5)
	require.NoError(t, err)
	require.NoError(t, ckpt.UpdateProgress(cp, checkpoint.Progress{NextOffset: 3, Limit: 5, Fetched: 3, Downloaded: 2}))

	opts := Options{
		Keywords: "#video",
		Limit:    5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	}

	_, err = f.crawler.Crawl(context.Background(), creds(), opts)
	require.ErrorIs(t, err, ErrCheckpointExists)
	assert.Empty(t, p.searchStarts())

	opts.Resume = true
	result, err := f.crawler.Crawl(context.Background(), creds(), opts)
	require.NoError(t, err)

	assert.True(t, result.Resumed)
	assert.Equal(t, []int{3}, p.searchStarts())
	assert.Equal(t, []int{2}, p.searchCounts())
	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 4, result.Downloaded)
	assert.False(t, ckpt.Exists())
}

func TestCrawlForceRestartIgnoresCheckpoint(t *testing.T) {
	p := newPlatform(t)
	f := newFixture(t, p, storedSession("valid"))

	ckpt, err := checkpoint.NewManager(f.cfg.CheckpointDir(), testAccount, "#video", nil)
	require.NoError(t, err)
	cp, err := ckpt.Create(0, 5)
	require.NoError(t, err)
	require.NoError(t, ckpt.UpdateProgress(cp, checkpoint.Progress{NextOffset: 3, Limit: 5, Fetched: 3}))

	result, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords:     "#video",
		Limit:        5,
		Duration:     downloader.DurationRange{Min: 2, Max: 30},
		ForceRestart: true,
	})
	require.NoError(t, err)

	assert.False(t, result.Resumed)
	assert.Equal(t, []int{0}, p.searchStarts())
	assert.Equal(t, 5, result.Fetched)
}

func TestCrawlStallKeepsCheckpointAndPartialResult(t *testing.T) {
	p := newPlatform(t)
	p.total = 10
	p.durations = map[int]int64{0: 10000}
	p.failStart = 5
	f := newFixture(t, p, storedSession("valid"))
	f.cfg.Search.MaxConsecutiveFailures = 2

	result, err := f.crawler.Crawl(context.Background(), creds(), Options{
		Keywords: "#video",
		Limit:    10,
		PageSize: 5,
		Duration: downloader.DurationRange{Min: 2, Max: 30},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrPaginationStalled)
	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 1, result.Downloaded)

	ckpt, err := checkpoint.NewManager(f.cfg.CheckpointDir(), testAccount, "#video", nil)
	require.NoError(t, err)
	cp, err := ckpt.Load()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 5, cp.NextOffset)
	assert.Equal(t, 1, cp.TotalDownloaded)
}

func TestLoginAndLogout(t *testing.T) {
	p := newPlatform(t)
	f := newFixture(t, p)

	sess, source, err := f.crawler.Login(context.Background(), creds())
	require.NoError(t, err)
	assert.Equal(t, auth.SourceCredentials, source)
	assert.True(t, sess.Authenticated())

	_, err = f.store.Load(testAccount)
	require.NoError(t, err)

	require.NoError(t, f.crawler.Logout(testAccount))
	_, err = f.store.Load(testAccount)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
