package auth

import (
	"errors"
	"os"
	"strings"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

// Credentials identify the account a crawl runs as. Username doubles as
// the account identifier sessions are stored under.
type Credentials struct {
	Username string
	Password string
}

// Validate checks that both fields are set
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return errors.New("username is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// CredentialsFromConfig reads the account settings of cfg
func CredentialsFromConfig(cfg *config.Config) Credentials {
	return Credentials{
		Username: cfg.LinkedIn.Username,
		Password: cfg.LinkedIn.Password,
	}
}

// Environment variables holding cookies copied from a logged-in browser
const (
	EnvSessionCookie = "LVSCRAPER_JSESSIONID"
	EnvAuthCookie    = "LVSCRAPER_LI_AT"
)

// SessionFromEnv builds a session from browser cookies exported in the
// environment. ok is false unless both variables are set.
func SessionFromEnv(accountID string) (session.Session, bool) {
	jsession := os.Getenv(EnvSessionCookie)
	liAt := os.Getenv(EnvAuthCookie)
	if jsession == "" || liAt == "" {
		return session.Session{}, false
	}

	value := strings.Trim(jsession, `"`)
	header := session.SessionCookie + `="` + value + `"; ` + session.AuthCookie + "=" + liAt
	return session.Session{
		AccountID:    accountID,
		CookieHeader: header,
		CSRFToken:    value,
	}, true
}
