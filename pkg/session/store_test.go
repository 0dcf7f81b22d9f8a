package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haruaki07/linkedin-video-scraper/pkg/config"
	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

var (
	alice = Session{AccountID: "alice@example.com", CookieHeader: `JSESSIONID="ajax:1"; li_at=A`, CSRFToken: "ajax:1"}
	bob   = Session{AccountID: "bob@example.com", CookieHeader: `JSESSIONID="ajax:2"; li_at=B`, CSRFToken: "ajax:2"}
)

// storeContract runs the behaviour every backend must share
func storeContract(t *testing.T, store Store) {
	t.Helper()

	_, err := store.Load(alice.AccountID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Save(alice))
	require.NoError(t, store.Save(bob))

	got, err := store.Load(alice.AccountID)
	require.NoError(t, err)
	assert.Equal(t, alice, got)

	_, err = store.Load("carol@example.com")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// upsert replaces in place
	refreshed := alice
	refreshed.CSRFToken = "ajax:3"
	refreshed.CookieHeader = `JSESSIONID="ajax:3"; li_at=A2`
	require.NoError(t, store.Save(refreshed))
	require.NoError(t, store.Save(refreshed))

	got, err = store.Load(alice.AccountID)
	require.NoError(t, err)
	assert.Equal(t, refreshed, got)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.Delete(bob.AccountID))
	_, err = store.Load(bob.AccountID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Delete(bob.AccountID), ErrSessionNotFound)
}

func TestFileStore(t *testing.T) {
	storeContract(t, NewFileStore(filepath.Join(t.TempDir(), "data", "cookie.json"), nil))
}

func TestFileStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.json")
	store := NewFileStore(path, nil)
	require.NoError(t, store.Save(alice))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw []map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, map[string]string{
		"username":  alice.AccountID,
		"cookies":   alice.CookieHeader,
		"csrfToken": alice.CSRFToken,
	}, raw[0])
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	log := logger.NewTestLogger()
	store := NewFileStore(path, log)

	_, err := store.Load(alice.AccountID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 1)

	require.NoError(t, store.Save(alice))
	got, err := store.Load(alice.AccountID)
	require.NoError(t, err)
	assert.Equal(t, alice, got)
}

func TestFileStoreRejectsEmptyAccount(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cookie.json"), nil)
	assert.ErrorIs(t, store.Save(Session{CSRFToken: "x"}), ErrInvalidAccount)
	_, err := store.Load("")
	assert.ErrorIs(t, err, ErrInvalidAccount)
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.json.enc")
	store, err := NewEncryptedFileStore(path, "correct horse", nil)
	require.NoError(t, err)

	storeContract(t, store)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "ajax:"), "session data must not be stored in clear text")
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.json.enc")
	store, err := NewEncryptedFileStore(path, "one", nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(alice))

	other, err := NewEncryptedFileStore(path, "two", nil)
	require.NoError(t, err)
	_, err = other.Load(alice.AccountID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = NewEncryptedFileStore(path, "", nil)
	assert.Error(t, err)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	storeContract(t, NewKeyringStore())
}

func TestKeyringStoreIndexKeyIsNotAnAccount(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()

	for _, id := range []string{"index", "_index", ":index"} {
		require.NoError(t, store.Save(Session{AccountID: id, CookieHeader: "li_at=" + id, CSRFToken: "ajax:" + id}))
	}
	for _, id := range []string{"index", "_index", ":index"} {
		got, err := store.Load(id)
		require.NoError(t, err, id)
		assert.Equal(t, "li_at="+id, got.CookieHeader)
	}

	all, err := store.List()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	storeContract(t, store)
	assert.Equal(t, 4, store.Saves())
}

func TestOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()

	store, err := Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "cookie.json"), store.(*FileStore).Path())

	cfg.Session.Backend = "encrypted"
	cfg.Session.Passphrase = "secret"
	store, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &EncryptedFileStore{}, store)

	cfg.Session.Backend = "keyring"
	store, err = Open(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &KeyringStore{}, store)

	cfg.Session.Backend = "s3"
	_, err = Open(cfg, nil)
	assert.Error(t, err)
}
