package auth

import (
	"errors"
	"fmt"

	"github.com/haruaki07/linkedin-video-scraper/pkg/session"
)

var (
	// ErrInvalidCredentials is returned when the platform rejects the username or password
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrChallengeRequired is matched by every *ChallengeRequiredError
	ErrChallengeRequired = errors.New("verification challenge required")
)

// ChallengeRequiredError reports that the platform asked for an out-of-band
// verification. Session is the anonymous session established before the
// credentials were submitted; it stays valid for driving the challenge.
type ChallengeRequiredError struct {
	Session      session.Session
	ChallengeURL string
}

func (e *ChallengeRequiredError) Error() string {
	return fmt.Sprintf("%s for %s", ErrChallengeRequired, e.Session.AccountID)
}

func (e *ChallengeRequiredError) Is(target error) bool {
	return target == ErrChallengeRequired
}

// ChallengeFlowError reports that a page of the challenge flow did not have
// the expected shape. Retrying will not help without a code change.
type ChallengeFlowError struct {
	Step   string
	Reason string
	Err    error
}

func (e *ChallengeFlowError) Error() string {
	msg := fmt.Sprintf("challenge flow failed at %s: %s", e.Step, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChallengeFlowError) Unwrap() error {
	return e.Err
}

func flowError(step, reason string, err error) *ChallengeFlowError {
	return &ChallengeFlowError{Step: step, Reason: reason, Err: err}
}
