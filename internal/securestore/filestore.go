// Package securestore keeps the provider session on disk, encrypted with
// XChaCha20-Poly1305 so a copied file does not leak live tokens.
package securestore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

// ErrInvalidKey is returned when the configured key is not 32 bytes in any
// accepted encoding.
var ErrInvalidKey = errors.New("securestore: invalid key")

// FileStore implements provider.SessionStore on a single file.
type FileStore struct {
	path string
	key  []byte
}

// NewFileStore returns a store writing to path.  rawKey may be base64, hex
// or a raw 32-character string.
func NewFileStore(path, rawKey string) (*FileStore, error) {
	key, err := decodeKey(rawKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("securestore: empty path")
	}
	return &FileStore{path: path, key: key}, nil
}

func (s *FileStore) Load() (*model.Session, error) {
	payload, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("securestore: read: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("securestore: cipher: %w", err)
	}
	if len(payload) <= aead.NonceSize() {
		return nil, fmt.Errorf("securestore: truncated file")
	}
	nonce, ciphertext := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("securestore: decrypt: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, fmt.Errorf("securestore: decode: %w", err)
	}
	return &sess, nil
}

func (s *FileStore) Save(sess *model.Session) error {
	if sess == nil {
		return s.Clear()
	}
	plain, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("securestore: encode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return fmt.Errorf("securestore: cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("securestore: nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, plain, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("securestore: mkdir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("securestore: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("securestore: remove: %w", err)
	}
	return nil
}

func decodeKey(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrInvalidKey
	}
	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil && len(decoded) == chacha20poly1305.KeySize {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil && len(decoded) == chacha20poly1305.KeySize {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(trimmed); err == nil && len(decoded) == chacha20poly1305.KeySize {
		return decoded, nil
	}
	if len(trimmed) == chacha20poly1305.KeySize {
		return []byte(trimmed), nil
	}
	return nil, ErrInvalidKey
}
