package session

import "sync"

// MemoryStore is a Store that lives only as long as the process. It also
// counts saves, which tests use to observe session refreshes.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	saves   int
	SaveErr error
	LoadErr error
}

// NewMemoryStore creates an empty in-memory store, optionally seeded
func NewMemoryStore(seed ...Session) *MemoryStore {
	m := &MemoryStore{}
	for _, s := range seed {
		m.records = upsertRecord(m.records, RecordOf(s))
	}
	return m
}

func (m *MemoryStore) Load(accountID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return Session{}, m.LoadErr
	}
	rec, ok := findRecord(m.records, accountID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return rec.Session(), nil
}

func (m *MemoryStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if s.AccountID == "" {
		return ErrInvalidAccount
	}
	m.records = upsertRecord(m.records, RecordOf(s))
	m.saves++
	return nil
}

func (m *MemoryStore) Delete(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := removeRecord(m.records, accountID)
	if !ok {
		return ErrSessionNotFound
	}
	m.records = records
	return nil
}

func (m *MemoryStore) List() ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sessionsOf(m.records), nil
}

// Saves returns how many times Save succeeded
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
