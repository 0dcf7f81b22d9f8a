package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
)

var (
	// ErrSessionNotFound is returned by Load when no session is stored for the account
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidAccount is returned for an empty account identifier
	ErrInvalidAccount = errors.New("account identifier is required")
)

// Store persists one Session per account identifier
type Store interface {
	Load(accountID string) (Session, error)
	// Save inserts or replaces the session for s.AccountID
	Save(s Session) error
	Delete(accountID string) error
	List() ([]Session, error)
}

// Record is the persisted form of a Session
type Record struct {
	Username  string `json:"username"`
	Cookies   string `json:"cookies"`
	CSRFToken string `json:"csrfToken"`
}

// RecordOf converts a Session to its persisted form
func RecordOf(s Session) Record {
	return Record{Username: s.AccountID, Cookies: s.CookieHeader, CSRFToken: s.CSRFToken}
}

// Session converts a persisted record back to a Session
func (r Record) Session() Session {
	return Session{AccountID: r.Username, CookieHeader: r.Cookies, CSRFToken: r.CSRFToken}
}

func findRecord(records []Record, accountID string) (Record, bool) {
	for _, r := range records {
		if r.Username == accountID {
			return r, true
		}
	}
	return Record{}, false
}

func upsertRecord(records []Record, rec Record) []Record {
	for i, r := range records {
		if r.Username == rec.Username {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

func removeRecord(records []Record, accountID string) ([]Record, bool) {
	for i, r := range records {
		if r.Username == accountID {
			return append(records[:i], records[i+1:]...), true
		}
	}
	return records, false
}

func sessionsOf(records []Record) []Session {
	out := make([]Session, 0, len(records))
	for _, r := range records {
		out = append(out, r.Session())
	}
	return out
}

// Open returns the Store selected by the session backend setting
func Open(cfg *config.Config, log logger.Logger) (Store, error) {
	switch strings.ToLower(cfg.Session.Backend) {
	case "", "file":
		return NewFileStore(cfg.SessionFilePath(), log), nil
	case "encrypted":
		return NewEncryptedFileStore(cfg.SessionFilePath()+".enc", cfg.Session.Passphrase, log)
	case "keyring":
		return NewKeyringStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}
