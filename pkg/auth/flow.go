package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	errs "github.com/haruaki07/linkedin-video-scraper/pkg/errors"
	"github.com/haruaki07/linkedin-video-scraper/pkg/linkedin"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

// Source tells where the session returned by Init came from
type Source int

const (
	SourceStored Source = iota
	SourceEnvironment
	SourceCredentials
	SourceChallenge
)

func (s Source) String() string {
	switch s {
	case SourceStored:
		return "stored"
	case SourceEnvironment:
		return "environment"
	case SourceCredentials:
		return "credentials"
	case SourceChallenge:
		return "challenge"
	default:
		return "unknown"
	}
}

// CodeProvider supplies the one-time verification code. It may block for as
// long as ctx allows.
type CodeProvider func(ctx context.Context) (string, error)

// Flow authenticates one account and keeps its stored session current
type Flow struct {
	client *linkedin.Client
	store  session.Store
	creds  Credentials
	logger logger.Logger
}

// NewFlow creates an authentication flow for creds
func NewFlow(client *linkedin.Client, store session.Store, creds Credentials, log logger.Logger) *Flow {
	log = logger.OrNop(log).WithField("account", creds.Username)
	return &Flow{
		client: client,
		store:  store,
		creds:  creds,
		logger: log,
	}
}

// Init returns a usable session: the stored one when present, otherwise a
// fresh one obtained by logging in. A *ChallengeRequiredError is returned
// unchanged so the caller can run ResolveChallenge.
func (f *Flow) Init(ctx context.Context) (session.Session, Source, error) {
	sess, err := f.store.Load(f.creds.Username)
	switch {
	case err == nil:
		f.logger.Debug("using stored session")
		return sess, SourceStored, nil
	case errors.Is(err, session.ErrSessionNotFound):
	default:
		f.logger.WithError(err).Warn("session store unreadable, treating as empty")
	}

	if sess, ok := SessionFromEnv(f.creds.Username); ok {
		f.logger.Info("using session cookies from environment")
		return sess, SourceEnvironment, nil
	}

	sess, err = f.Authenticate(ctx)
	if err != nil {
		return session.Session{}, SourceCredentials, err
	}
	return sess, SourceCredentials, nil
}

// Authenticate runs establish + submit, ignoring any stored session
func (f *Flow) Authenticate(ctx context.Context) (session.Session, error) {
	if err := f.creds.Validate(); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	est, err := f.EstablishSession(ctx)
	if err != nil {
		return session.Session{}, err
	}
	return f.SubmitCredentials(ctx, est)
}

// EstablishSession performs the anonymous request that issues JSESSIONID
func (f *Flow) EstablishSession(ctx context.Context) (session.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, linkedin.URL(f.client.BaseURL(), linkedin.AuthenticatePath), nil)
	if err != nil {
		return session.Session{}, err
	}

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return session.Session{}, fmt.Errorf("establish session: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	sess, err := session.FromCookies(f.creds.Username, resp.Cookies())
	if err != nil {
		return session.Session{}, fmt.Errorf("establish session (status %d): %w", resp.StatusCode, err)
	}
	f.logger.Debug("anonymous session established")
	return sess, nil
}

// SubmitCredentials posts the username and password under the established
// session. The authenticated session is saved before it is returned.
func (f *Flow) SubmitCredentials(ctx context.Context, est session.Session) (session.Session, error) {
	form := url.Values{}
	form.Set("session_key", f.creds.Username)
	form.Set("session_password", f.creds.Password)
	form.Set("JSESSIONID", est.CSRFToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		linkedin.URL(f.client.BaseURL(), linkedin.AuthenticatePath), strings.NewReader(form.Encode()))
	if err != nil {
		return session.Session{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Li-User-Agent", linkedin.MobileLiUserAgent)
	req.Header.Set("User-Agent", linkedin.MobileUserAgent)
	req.Header.Set("X-User-Language", "en")
	req.Header.Set("X-User-Locale", "en_US")
	req.Header.Set("Accept-Language", "en-us")
	est.Apply(req.Header)

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return session.Session{}, fmt.Errorf("submit credentials: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return session.Session{}, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, "read login response", err)
	}

	var result linkedin.LoginResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			f.logger.DebugWithFields("login response is not JSON", map[string]interface{}{
				"status": resp.StatusCode,
			})
		}
	}

	switch result.LoginResult {
	case linkedin.LoginChallenge:
		f.logger.Warn("login requires verification challenge")
		return session.Session{}, &ChallengeRequiredError{Session: est, ChallengeURL: result.ChallengeURL}
	case linkedin.LoginBadPassword, linkedin.LoginBadEmail:
		if result.FailureMessage != "" {
			return session.Session{}, fmt.Errorf("%w: %s: %s", ErrInvalidCredentials, result.LoginResult, result.FailureMessage)
		}
		return session.Session{}, fmt.Errorf("%w: %s", ErrInvalidCredentials, result.LoginResult)
	}

	if resp.StatusCode >= 400 {
		return session.Session{}, fmt.Errorf("submit credentials: %w", errs.FromStatus(resp.StatusCode, "login rejected"))
	}

	sess, err := est.Merge(resp.Cookies())
	if err != nil {
		return session.Session{}, fmt.Errorf("submit credentials: %w", err)
	}
	if !sess.Authenticated() {
		return session.Session{}, errs.New(errs.ErrorTypeAuth, resp.StatusCode,
			fmt.Sprintf("login result %q issued no %s cookie", result.LoginResult, session.AuthCookie))
	}

	if err := f.save(sess); err != nil {
		return session.Session{}, err
	}
	f.logger.Info("authenticated with credentials")
	return sess, nil
}

// Invalidate deletes the stored session, e.g. after the platform rejected it
func (f *Flow) Invalidate(ctx context.Context) error {
	err := f.store.Delete(f.creds.Username)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return fmt.Errorf("invalidate session: %w", err)
	}
	f.logger.Info("stored session invalidated")
	return nil
}

func (f *Flow) save(sess session.Session) error {
	if err := f.store.Save(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
