package session

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCookiesDerivesCSRF(t *testing.T) {
	cookies := []*http.Cookie{
		{Name: "bcookie", Value: "v=2&abc"},
		{Name: "JSESSIONID", Value: "ajax:123456", Quoted: true},
		{Name: "lang", Value: "v=2&lang=en-us"},
	}

	s, err := FromCookies("alice", cookies)
	require.NoError(t, err)

	assert.Equal(t, "alice", s.AccountID)
	assert.Equal(t, "ajax:123456", s.CSRFToken)
	assert.Equal(t, `bcookie=v=2&abc; JSESSIONID="ajax:123456"; lang=v=2&lang=en-us`, s.CookieHeader)
	assert.False(t, s.Authenticated())
}

func TestFromCookiesStripsLiteralQuotes(t *testing.T) {
	s, err := FromCookies("bob", []*http.Cookie{{Name: "JSESSIONID", Value: `"ajax:9"`}})
	require.NoError(t, err)
	assert.Equal(t, "ajax:9", s.CSRFToken)
}

func TestFromCookiesRequiresSessionCookie(t *testing.T) {
	_, err := FromCookies("alice", []*http.Cookie{{Name: "li_at", Value: "x"}})
	assert.ErrorIs(t, err, ErrNoSessionCookie)
}

func TestMergeRefreshesToken(t *testing.T) {
	base, err := FromCookies("alice", []*http.Cookie{
		{Name: "bcookie", Value: "b1"},
		{Name: "JSESSIONID", Value: "ajax:old", Quoted: true},
	})
	require.NoError(t, err)

	next, err := base.Merge([]*http.Cookie{
		{Name: "JSESSIONID", Value: "ajax:new", Quoted: true},
		{Name: "li_at", Value: "AQED"},
		{Name: "bcookie", Value: "gone", MaxAge: -1},
	})
	require.NoError(t, err)

	assert.Equal(t, "ajax:new", next.CSRFToken)
	assert.Equal(t, `JSESSIONID="ajax:new"; li_at=AQED`, next.CookieHeader)
	assert.True(t, next.Authenticated())

	// the original value is untouched
	assert.Equal(t, "ajax:old", base.CSRFToken)
}

func TestMergeDropsExpiredCookies(t *testing.T) {
	base, err := FromCookies("alice", []*http.Cookie{
		{Name: "JSESSIONID", Value: "ajax:1"},
		{Name: "li_at", Value: "tok"},
	})
	require.NoError(t, err)

	next, err := base.Merge([]*http.Cookie{{Name: "li_at", Value: "delete me", Expires: time.Unix(0, 0)}})
	require.NoError(t, err)
	assert.Equal(t, "JSESSIONID=ajax:1", next.CookieHeader)
}

func TestHasPrimaryCookies(t *testing.T) {
	assert.True(t, HasPrimaryCookies([]*http.Cookie{{Name: "JSESSIONID"}, {Name: "li_at"}}))
	assert.False(t, HasPrimaryCookies([]*http.Cookie{{Name: "JSESSIONID"}}))
	assert.False(t, HasPrimaryCookies(nil))
}

func TestApplySetsHeaders(t *testing.T) {
	h := http.Header{}
	Session{CookieHeader: "a=b", CSRFToken: "ajax:1"}.Apply(h)

	assert.Equal(t, "a=b", h.Get("Cookie"))
	assert.Equal(t, "ajax:1", h.Get("csrf-token"))
}
