package linkedin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	errs "github.com/haruaki07/linkedin-video-scraper/pkg/errors"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/retry"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSession = session.Session{
	AccountID:    "alice@example.com",
	CookieHeader: `JSESSIONID="ajax:1"; li_at=tok`,
	CSRFToken:    "ajax:1",
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *logger.TestLogger) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logger.NewTestLogger()
	c := NewClient(Options{
		BaseURL: srv.URL,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{},
		},
	}, log)
	return c, log
}

func TestSearchClustersSendsSessionHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SearchClustersPath, r.URL.Path)
		assert.Equal(t, NormalizedJSON, r.Header.Get("Accept"))
		assert.Equal(t, RestliProtocolVersion, r.Header.Get("x-restli-protocol-version"))
		assert.Equal(t, "ajax:1", r.Header.Get("csrf-token"))
		assert.Equal(t, testSession.CookieHeader, r.Header.Get("Cookie"))
		assert.Equal(t, MobileUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "10", r.URL.Query().Get("start"))

		fmt.Fprint(w, `{"data":{"paging":{"total":3,"start":10,"count":2}},"included":[{"entityUrn":"x","entityEmbeddedObject":{}}]}`)
	})

	resp, err := c.SearchClusters(context.Background(), testSession, SearchRequest{Keywords: "#video", Start: 10, Count: 2})
	require.NoError(t, err)
	require.NotNil(t, resp.Data.Paging.Total)
	assert.Equal(t, 3, *resp.Data.Paging.Total)
	assert.Len(t, resp.Included, 1)
}

func TestSearchClustersMissingTotal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"paging":{}},"included":[]}`)
	})

	resp, err := c.SearchClusters(context.Background(), testSession, SearchRequest{Count: 1})
	require.NoError(t, err)
	assert.Nil(t, resp.Data.Paging.Total)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		want     errs.ErrorType
		attempts int32
	}{
		{http.StatusUnauthorized, errs.ErrorTypeAuth, 1},
		{http.StatusForbidden, errs.ErrorTypeAuth, 1},
		{http.StatusNotFound, errs.ErrorTypeNotFound, 1},
		{http.StatusTooManyRequests, errs.ErrorTypeRateLimit, 3},
		{http.StatusServiceUnavailable, errs.ErrorTypeServerError, 3},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			})

			_, err := c.UpdatesV2(context.Background(), testSession, []string{"urn:li:activity:1"})
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
			assert.Equal(t, tt.attempts, atomic.LoadInt32(&calls))
		})
	}
}

func TestTransientFailureRecovers(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"included":[{"entityUrn":"v","thumbnail":{},"duration":1000}]}`)
	})

	resp, err := c.UpdatesV2(context.Background(), testSession, []string{"u"})
	require.NoError(t, err)
	assert.Len(t, Videos(resp.Included), 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestParseErrorLogsPreview(t *testing.T) {
	c, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	})

	_, err := c.SearchClusters(context.Background(), testSession, SearchRequest{Count: 1})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeParsing, errs.TypeOf(err))

	msgs := log.GetMessagesByLevel("ERROR")
	require.NotEmpty(t, msgs)
	assert.Equal(t, "<html>not json</html>", msgs[0].Fields["body_preview"])
}

func TestSessionCookieObserver(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "1" {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ajax:2", Quoted: true})
			http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "fresh"})
		} else {
			http.SetCookie(w, &http.Cookie{Name: "lidc", Value: "x"})
		}
		fmt.Fprint(w, `{"data":{"paging":{}},"included":[]}`)
	})

	var seen [][]*http.Cookie
	unregister := c.OnSessionCookies(func(cookies []*http.Cookie) {
		seen = append(seen, cookies)
	})

	ctx := context.Background()
	_, err := c.SearchClusters(ctx, testSession, SearchRequest{Start: 0, Count: 1})
	require.NoError(t, err)
	assert.Empty(t, seen, "responses without both primary cookies are ignored")

	_, err = c.SearchClusters(ctx, testSession, SearchRequest{Start: 1, Count: 1})
	require.NoError(t, err)
	require.Len(t, seen, 1)

	refreshed, err := testSession.Merge(seen[0])
	require.NoError(t, err)
	assert.Equal(t, "ajax:2", refreshed.CSRFToken)

	unregister()
	_, err = c.SearchClusters(ctx, testSession, SearchRequest{Start: 1, Count: 1})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
}

func TestStream(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Cookie"), "media requests carry no session")
		w.Header().Set("Content-Length", "5")
		fmt.Fprint(w, "video")
	})

	body, size, err := c.Stream(context.Background(), c.BaseURL()+"/media/1.mp4")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
	assert.Equal(t, int64(5), size)
}

func TestStreamNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, _, err := c.Stream(context.Background(), c.BaseURL()+"/gone.mp4")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.SearchClusters(ctx, testSession, SearchRequest{Count: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
