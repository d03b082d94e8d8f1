package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrCredentialsNotFound is returned when a profile has nothing stored
var ErrCredentialsNotFound = errors.New("credentials not found")

// StorageBackend persists serialized credentials per profile
type StorageBackend interface {
	Save(profile string, data []byte) error
	Load(profile string) ([]byte, error)
	// Delete returns ErrCredentialsNotFound when nothing was stored
	Delete(profile string) error
	List() ([]string, error)
	Name() string
}

func notFound(profile string) error {
	return fmt.Errorf("%w for profile '%s'", ErrCredentialsNotFound, profile)
}

// KeyringStorage keeps credentials in the system keyring. The keyring cannot
// be enumerated, so profile names are tracked in profiles.json.
type KeyringStorage struct {
	serviceName string
	indexFile   string
}

// NewKeyringStorage creates a keyring backend whose profile index lives in dir
func NewKeyringStorage(serviceName, dir string) *KeyringStorage {
	return &KeyringStorage{
		serviceName: serviceName,
		indexFile:   filepath.Join(dir, "profiles.json"),
	}
}

func (s *KeyringStorage) Save(profile string, data []byte) error {
	if err := keyring.Set(s.serviceName, profile, string(data)); err != nil {
		return fmt.Errorf("failed to save credentials to keyring: %w", err)
	}
	return s.updateIndex(profile, true)
}

func (s *KeyringStorage) Load(profile string) ([]byte, error) {
	data, err := keyring.Get(s.serviceName, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, notFound(profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from keyring: %w", err)
	}
	return []byte(data), nil
}

func (s *KeyringStorage) Delete(profile string) error {
	err := keyring.Delete(s.serviceName, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		_ = s.updateIndex(profile, false)
		return notFound(profile)
	}
	if err != nil {
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return s.updateIndex(profile, false)
}

func (s *KeyringStorage) List() ([]string, error) {
	data, err := os.ReadFile(s.indexFile)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var profiles []string
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("corrupt profile index %s: %w", s.indexFile, err)
	}
	return profiles, nil
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

func (s *KeyringStorage) updateIndex(profile string, present bool) error {
	profiles, err := s.List()
	if err != nil {
		return err
	}
	set := make(map[string]bool, len(profiles)+1)
	for _, p := range profiles {
		set[p] = true
	}
	if set[profile] == present {
		return nil
	}
	if present {
		set[profile] = true
	} else {
		delete(set, profile)
	}

	updated := make([]string, 0, len(set))
	for p := range set {
		updated = append(updated, p)
	}
	sort.Strings(updated)
	data, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.indexFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.indexFile, data, 0600)
}

// FileStorage keeps one file per profile under <dir>/credentials. With a
// key the files are sealed with AES-GCM; without one they are plain JSON.
type FileStorage struct {
	dir  string
	ext  string
	name string
	aead cipher.AEAD
}

// NewEncryptedFileStorage creates an AES-GCM file backend. The key is
// generated on first use and kept next to the credentials.
func NewEncryptedFileStorage(baseDir string) (*FileStorage, error) {
	key, err := getOrCreateEncryptionKey(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &FileStorage{
		dir:  filepath.Join(baseDir, "credentials"),
		ext:  ".enc",
		name: "encrypted-file",
		aead: aead,
	}, nil
}

// NewPlainFileStorage creates an unencrypted file backend, for development
func NewPlainFileStorage(baseDir string) *FileStorage {
	return &FileStorage{
		dir:  filepath.Join(baseDir, "credentials"),
		ext:  ".json",
		name: "plain-file",
	}
}

func (s *FileStorage) Save(profile string, data []byte) error {
	if s.aead != nil {
		nonce := make([]byte, s.aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
		data = s.aead.Seal(nonce, nonce, data, nil)
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path(profile), data, 0600)
}

func (s *FileStorage) Load(profile string) ([]byte, error) {
	data, err := os.ReadFile(s.path(profile))
	if os.IsNotExist(err) {
		return nil, notFound(profile)
	}
	if err != nil {
		return nil, err
	}
	if s.aead == nil {
		return data, nil
	}

	size := s.aead.NonceSize()
	if len(data) < size {
		return nil, fmt.Errorf("invalid ciphertext")
	}
	plaintext, err := s.aead.Open(nil, data[:size], data[size:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return plaintext, nil
}

func (s *FileStorage) Delete(profile string) error {
	err := os.Remove(s.path(profile))
	if os.IsNotExist(err) {
		return notFound(profile)
	}
	return err
}

func (s *FileStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	profiles := []string{}
	for _, entry := range entries {
		if name := entry.Name(); !entry.IsDir() && strings.HasSuffix(name, s.ext) {
			profiles = append(profiles, strings.TrimSuffix(name, s.ext))
		}
	}
	return profiles, nil
}

func (s *FileStorage) Name() string {
	return s.name
}

func (s *FileStorage) path(profile string) string {
	return filepath.Join(s.dir, profile+s.ext)
}

// getOrCreateEncryptionKey loads the 32-byte key from <baseDir>/.keyfile,
// replacing a missing or malformed one
func getOrCreateEncryptionKey(baseDir string) ([]byte, error) {
	keyFile := filepath.Join(baseDir, ".keyfile")
	if data, err := os.ReadFile(keyFile); err == nil {
		if key, err := base64.StdEncoding.DecodeString(string(data)); err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyFile, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// ListProfiles lists every profile with stored credentials
func (m *Manager) ListProfiles() ([]string, error) {
	return m.storage.List()
}
