package session

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	// SessionCookie identifies the platform session; the CSRF token is derived from it.
	SessionCookie = "JSESSIONID"
	// AuthCookie is only issued once the account is fully authenticated.
	AuthCookie = "li_at"
)

// ErrNoSessionCookie is returned when a cookie set lacks JSESSIONID
var ErrNoSessionCookie = errors.New("session: response carried no " + SessionCookie + " cookie")

// Session is the request context for one account: the Cookie header to send
// and the CSRF token paired with it. A Session is a value; refreshing the
// cookie set yields a new Session instead of modifying an existing one.
type Session struct {
	AccountID    string
	CookieHeader string
	CSRFToken    string
}

// IsZero reports whether s carries no cookies
func (s Session) IsZero() bool {
	return s.CookieHeader == "" && s.CSRFToken == ""
}

// Authenticated reports whether the cookie header contains the auth cookie
func (s Session) Authenticated() bool {
	for _, c := range parseCookieHeader(s.CookieHeader) {
		if c.Name == AuthCookie && c.Value != "" {
			return true
		}
	}
	return false
}

// Apply sets the cookie and CSRF headers of an authenticated API request
func (s Session) Apply(h http.Header) {
	if s.CookieHeader != "" {
		h.Set("Cookie", s.CookieHeader)
	}
	if s.CSRFToken != "" {
		h.Set("Csrf-Token", s.CSRFToken)
	}
}

// FromCookies derives a Session from a cookie set. The CSRF token is the
// JSESSIONID value with double quotes stripped.
func FromCookies(accountID string, cookies []*http.Cookie) (Session, error) {
	merged := mergeCookies(nil, cookies)
	token, ok := csrfToken(merged)
	if !ok {
		return Session{}, ErrNoSessionCookie
	}
	return Session{
		AccountID:    accountID,
		CookieHeader: cookieHeader(merged),
		CSRFToken:    token,
	}, nil
}

// Merge returns a new Session whose cookie set is s's overlaid with cookies.
// The CSRF token is re-derived whenever JSESSIONID changes.
func (s Session) Merge(cookies []*http.Cookie) (Session, error) {
	merged := mergeCookies(parseCookieHeader(s.CookieHeader), cookies)
	token, ok := csrfToken(merged)
	if !ok {
		return Session{}, ErrNoSessionCookie
	}
	return Session{
		AccountID:    s.AccountID,
		CookieHeader: cookieHeader(merged),
		CSRFToken:    token,
	}, nil
}

// HasPrimaryCookies reports whether a response's cookies establish a fully
// authenticated session (both JSESSIONID and li_at present).
func HasPrimaryCookies(cookies []*http.Cookie) bool {
	var sess, auth bool
	for _, c := range cookies {
		switch c.Name {
		case SessionCookie:
			sess = true
		case AuthCookie:
			auth = true
		}
	}
	return sess && auth
}

func csrfToken(cookies []*http.Cookie) (string, bool) {
	for _, c := range cookies {
		if c.Name == SessionCookie {
			return strings.ReplaceAll(c.Value, `"`, ""), true
		}
	}
	return "", false
}

// mergeCookies overlays next onto base by name, keeping first-seen order.
// Cookies the server expires are dropped.
func mergeCookies(base, next []*http.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(base)+len(next))
	index := make(map[string]int)
	add := func(c *http.Cookie) {
		if c == nil || c.Name == "" {
			return
		}
		if i, ok := index[c.Name]; ok {
			out[i] = c
			return
		}
		index[c.Name] = len(out)
		out = append(out, c)
	}
	for _, c := range base {
		add(c)
	}
	for _, c := range next {
		add(c)
	}

	now := time.Now()
	kept := out[:0]
	for _, c := range out {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		v := c.Value
		if c.Quoted {
			v = `"` + v + `"`
		}
		parts = append(parts, c.Name+"="+v)
	}
	return strings.Join(parts, "; ")
}

// parseCookieHeader splits a stored Cookie header back into cookies.
// Values are kept verbatim, quotes included.
func parseCookieHeader(header string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		c := &http.Cookie{Name: strings.TrimSpace(name), Value: value}
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			c.Value = value[1 : len(value)-1]
			c.Quoted = true
		}
		cookies = append(cookies, c)
	}
	return cookies
}
