package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/haruaki07/linkedin-video-scraper/pkg/logger"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// EncryptedFileStore holds the same record collection as FileStore, sealed
// with AES-GCM under a key derived from a passphrase.
type EncryptedFileStore struct {
	path       string
	passphrase string
	log        logger.Logger
	mu         sync.Mutex
}

type sealedFile struct {
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Version   int       `json:"version"`
	Modified  time.Time `json:"modified"`
}

// NewEncryptedFileStore creates an encrypted store at path
func NewEncryptedFileStore(path, passphrase string, log logger.Logger) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, errors.New("encrypted session store requires a passphrase")
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase, log: logger.OrNop(log)}, nil
}

func (e *EncryptedFileStore) Load(accountID string) (Session, error) {
	if accountID == "" {
		return Session{}, ErrInvalidAccount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	records, _ := e.readAll()
	rec, ok := findRecord(records, accountID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return rec.Session(), nil
}

func (e *EncryptedFileStore) Save(s Session) error {
	if s.AccountID == "" {
		return ErrInvalidAccount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	records, salt := e.readAll()
	return e.writeAll(upsertRecord(records, RecordOf(s)), salt)
}

func (e *EncryptedFileStore) Delete(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, salt := e.readAll()
	records, ok := removeRecord(records, accountID)
	if !ok {
		return ErrSessionNotFound
	}
	return e.writeAll(records, salt)
}

func (e *EncryptedFileStore) List() ([]Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	records, _ := e.readAll()
	return sessionsOf(records), nil
}

// readAll returns the stored records and salt. A missing, corrupt or
// undecryptable file yields an empty collection.
func (e *EncryptedFileStore) readAll() ([]Record, []byte) {
	content, err := os.ReadFile(e.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.log.WithError(err).Warn("Encrypted session file unreadable, treating as empty")
		}
		return nil, nil
	}

	records, salt, err := e.open(content)
	if err != nil {
		e.log.WithError(err).WithField("path", e.path).Warn("Encrypted session file unusable, treating as empty")
		return nil, nil
	}
	return records, salt
}

func (e *EncryptedFileStore) open(content []byte) ([]Record, []byte, error) {
	var sf sealedFile
	if err := json.Unmarshal(content, &sf); err != nil {
		return nil, nil, fmt.Errorf("failed to parse file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(sf.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(sf.Encrypted)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt sessions: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return records, salt, nil
}

func (e *EncryptedFileStore) writeAll(records []Record, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	if records == nil {
		records = []Record{}
	}

	plain, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt sessions: %w", err)
	}

	content, err := json.MarshalIndent(sealedFile{
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(sealed),
		Version:   1,
		Modified:  time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file: %w", err)
	}
	return writeFileAtomic(e.path, content)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
