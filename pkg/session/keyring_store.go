package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "lvscraper"
	// the keychain cannot enumerate items, so account ids are tracked in a
	// separate item whose key has no colon and cannot match sessionKey
	keyringIndex = "index"
)

func sessionKey(accountID string) string {
	return "session:" + accountID
}

// KeyringStore keeps one keychain item per account
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a store backed by the OS keychain
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (k *KeyringStore) Load(accountID string) (Session, error) {
	if accountID == "" {
		return Session{}, ErrInvalidAccount
	}

	data, err := keyring.Get(keyringService, sessionKey(accountID))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("failed to read keychain: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		// a corrupt item is the same as no item
		return Session{}, ErrSessionNotFound
	}
	return rec.Session(), nil
}

func (k *KeyringStore) Save(s Session) error {
	if s.AccountID == "" {
		return ErrInvalidAccount
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := json.Marshal(RecordOf(s))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := keyring.Set(keyringService, sessionKey(s.AccountID), string(data)); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}

	ids := k.index()
	for _, id := range ids {
		if id == s.AccountID {
			return nil
		}
	}
	return k.writeIndex(append(ids, s.AccountID))
}

func (k *KeyringStore) Delete(accountID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Delete(keyringService, sessionKey(accountID)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete from keychain: %w", err)
	}

	ids := k.index()
	kept := ids[:0]
	for _, id := range ids {
		if id != accountID {
			kept = append(kept, id)
		}
	}
	return k.writeIndex(kept)
}

func (k *KeyringStore) List() ([]Session, error) {
	k.mu.Lock()
	ids := k.index()
	k.mu.Unlock()

	var out []Session
	for _, id := range ids {
		s, err := k.Load(id)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (k *KeyringStore) index() []string {
	data, err := keyring.Get(keyringService, keyringIndex)
	if err != nil {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil
	}
	return ids
}

func (k *KeyringStore) writeIndex(ids []string) error {
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to update keychain index: %w", err)
	}
	return nil
}
