package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/retry"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

const (
	testUser     = "alice@example.com"
	testPassword = "hunter2"
	testPIN      = "123456"
)

// fakePlatform serves the login and checkpoint endpoints
type fakePlatform struct {
	t *testing.T

	loginResult    string
	failureMessage string
	noRedirect     bool
	establishCalls int32
	submitCalls    int32
	submitForm     url.Values
	submitHeader   http.Header
}

func (p *fakePlatform) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(linkedin.AuthenticatePath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			atomic.AddInt32(&p.establishCalls, 1)
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ajax:1", Quoted: true})
			http.SetCookie(w, &http.Cookie{Name: "lang", Value: "v=2&lang=en-us"})
			return
		}

		atomic.AddInt32(&p.submitCalls, 1)
		if err := r.ParseForm(); err != nil {
			p.t.Errorf("parse form: %v", err)
		}
		p.submitForm = r.PostForm
		p.submitHeader = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		switch p.loginResult {
		case linkedin.LoginPass:
			http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "token-1"})
		case linkedin.LoginBadPassword:
			w.WriteHeader(http.StatusUnauthorized)
		}
		_ = json.NewEncoder(w).Encode(linkedin.LoginResult{
			LoginResult:    p.loginResult,
			FailureMessage: p.failureMessage,
		})
	})

	mux.HandleFunc(linkedin.LoginPagePath, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ajax:9", Quoted: true, Path: "/"})
		fmt.Fprint(w, `<html><body><form>
			<input type="hidden" name="loginCsrfParam" value="csrf-param-1">
			<input name="session_key"></form></body></html>`)
	})

	mux.HandleFunc(linkedin.LoginSubmitPath, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("loginCsrfParam") != "csrf-param-1" ||
			r.FormValue("session_key") != testUser ||
			r.FormValue("session_password") != testPassword {
			p.t.Errorf("unexpected login submit form: %v", r.Form)
		}
		if p.noRedirect {
			fmt.Fprint(w, `<html><body>Welcome back</body></html>`)
			return
		}
		http.Redirect(w, r, "/checkpoint/challenge/AgH_x-1?ut=1", http.StatusFound)
	})

	mux.HandleFunc("/checkpoint/challenge/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<form id="email-pin-challenge" method="post" action="/checkpoint/challenge/verify">
				<input type="hidden" name="csrfToken" value="ajax:9">
				<input type="hidden" name="pageInstance" value="urn:li:page:checkpoint">
				<input type="text" name="pin" value="">
				<input type="submit">
			</form>
			<form id="other"><input name="ignored" value="x"></form>
		</body></html>`)
	})

	mux.HandleFunc(linkedin.ChallengeVerifyPath, func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("csrfToken") != "ajax:9" || r.FormValue("pageInstance") == "" {
			p.t.Errorf("hidden fields not forwarded: %v", r.Form)
		}
		if r.FormValue("ignored") != "" {
			p.t.Errorf("fields outside the pin form were forwarded")
		}
		if r.FormValue("pin") == testPIN {
			http.SetCookie(w, &http.Cookie{Name: "li_at", Value: "token-2", Path: "/"})
		}
		fmt.Fprint(w, `<html><body>done</body></html>`)
	})

	return mux
}

func newTestFlow(t *testing.T, p *fakePlatform, store session.Store, creds Credentials) (*Flow, *logger.TestLogger) {
	t.Helper()
	p.t = t
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)

	log := logger.NewTestLogger()
	client := linkedin.NewClient(linkedin.Options{
		BaseURL: srv.URL,
		Retry:   &retry.Config{MaxAttempts: 1},
	}, log)
	return NewFlow(client, store, creds, log), log
}

func validCreds() Credentials {
	return Credentials{Username: testUser, Password: testPassword}
}

func cookieNames(header string) string {
	var names []string
	for _, part := range strings.Split(header, ";") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		names = append(names, name)
	}
	return strings.Join(names, ",")
}
