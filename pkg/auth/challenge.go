package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

const (
	loginCsrfSelector = `input[name="loginCsrfParam"]`
	pinFormSelector   = `form#email-pin-challenge input`
	pinField          = "pin"
)

var challengePath = regexp.MustCompile(`^/checkpoint/challenge/[a-zA-Z0-9_\-]+`)

// ResolveChallenge drives the web login and email PIN challenge with a
// dedicated cookie jar. provider is only called once the challenge page has
// been reached and parsed. The resulting session is saved.
func (f *Flow) ResolveChallenge(ctx context.Context, provider CodeProvider) (session.Session, error) {
	if err := f.creds.Validate(); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	base, err := url.Parse(f.client.BaseURL())
	if err != nil {
		return session.Session{}, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return session.Session{}, fmt.Errorf("create cookie jar: %w", err)
	}
	hc := f.client.NewCookieClient(jar)

	loginPage, _, err := f.getPage(ctx, hc, linkedin.LoginPagePath)
	if err != nil {
		return session.Session{}, flowError("login page", "request failed", err)
	}
	csrfParam, ok := loginPage.Find(loginCsrfSelector).Attr("value")
	if !ok || csrfParam == "" {
		return session.Session{}, flowError("login page", "no loginCsrfParam field", nil)
	}

	form := url.Values{}
	form.Set("session_key", f.creds.Username)
	form.Set("loginCsrfParam", csrfParam)
	form.Set("session_password", f.creds.Password)

	challengePage, finalURL, err := f.postPage(ctx, hc, linkedin.LoginSubmitPath, form)
	if err != nil {
		return session.Session{}, flowError("login submit", "request failed", err)
	}
	if !challengePath.MatchString(finalURL.Path) {
		f.logger.WarnWithFields("login submit did not reach a challenge", map[string]interface{}{
			"path": finalURL.Path,
		})
		return session.Session{}, flowError("login submit", "unexpected response, platform flow changed", nil)
	}

	payload := url.Values{}
	challengePage.Find(pinFormSelector).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		payload.Set(name, s.AttrOr("value", ""))
	})
	if len(payload) == 0 {
		return session.Session{}, flowError("challenge page", "no email pin form", nil)
	}

	f.logger.Info("waiting for verification code")
	code, err := provider(ctx)
	if err != nil {
		return session.Session{}, fmt.Errorf("obtain verification code: %w", err)
	}
	payload.Set(pinField, strings.TrimSpace(code))

	if _, _, err := f.postPage(ctx, hc, linkedin.ChallengeVerifyPath, payload); err != nil {
		return session.Session{}, flowError("verify", "request failed", err)
	}

	sess, err := session.FromCookies(f.creds.Username, jar.Cookies(base))
	if err != nil {
		return session.Session{}, flowError("verify", "no session cookie after verification", err)
	}
	if !sess.Authenticated() {
		return session.Session{}, flowError("verify", "verification did not authenticate, check the code", nil)
	}

	if err := f.save(sess); err != nil {
		return session.Session{}, err
	}
	f.logger.Info("authenticated through verification challenge")
	return sess, nil
}

func (f *Flow) getPage(ctx context.Context, hc *http.Client, path string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, linkedin.URL(f.client.BaseURL(), path), nil)
	if err != nil {
		return nil, nil, err
	}
	return f.fetchPage(hc, req)
}

func (f *Flow) postPage(ctx context.Context, hc *http.Client, path string, form url.Values) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		linkedin.URL(f.client.BaseURL(), path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.fetchPage(hc, req)
}

// fetchPage follows redirects and returns the parsed document together with
// the URL the last redirect landed on.
func (f *Flow) fetchPage(hc *http.Client, req *http.Request) (*goquery.Document, *url.URL, error) {
	req.Header.Set("User-Agent", f.client.UserAgent())

	resp, err := hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	f.logger.DebugWithFields("challenge flow request", map[string]interface{}{
		"method": req.Method,
		"path":   req.URL.Path,
		"final":  resp.Request.URL.Path,
		"status": resp.StatusCode,
	})
	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, resp.Request.URL, nil
}
