package auth

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
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	vaultVersion = 2

	// PassphraseEnv overrides the generated passphrase file.
	PassphraseEnv = "IGSYNC_PASSPHRASE"
)

// EncryptedFileStore keeps all secrets in one AES-GCM sealed file. The key is
// derived from a passphrase with PBKDF2 and a per-file salt.
type EncryptedFileStore struct {
	path       string
	passphrase []byte
	mu         sync.RWMutex
}

// vaultFile is the on-disk layout. Byte slices are base64 in JSON.
type vaultFile struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Sealed   []byte    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// vault is the decrypted file. A nil salt means nothing was written yet.
type vault struct {
	salt    []byte
	secrets map[string]Secret
}

// NewEncryptedFileStore opens the store at path. The passphrase comes from
// IGSYNC_PASSPHRASE or a .passphrase file generated next to path.
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	passphrase, err := loadPassphrase(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

// Path returns the encrypted file location
func (e *EncryptedFileStore) Path() string {
	return e.path
}

// Store saves a secret to the encrypted file
func (e *EncryptedFileStore) Store(secret *Secret) error {
	if secret == nil || ValidateName(secret.Name) != nil {
		return ErrInvalidSecret
	}
	return e.update(func(secrets map[string]Secret) error {
		secrets[secret.Name] = *secret
		return nil
	})
}

// Retrieve gets a secret from the encrypted file
func (e *EncryptedFileStore) Retrieve(name string) (*Secret, error) {
	if name == "" {
		return nil, ErrInvalidSecret
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.open()
	if err != nil {
		return nil, err
	}
	secret, ok := v.secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return &secret, nil
}

// List returns all stored secrets
func (e *EncryptedFileStore) List() ([]*Secret, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, err := e.open()
	if err != nil {
		return nil, err
	}
	secrets := make([]*Secret, 0, len(v.secrets))
	for _, secret := range v.secrets {
		s := secret
		secrets = append(secrets, &s)
	}
	return secrets, nil
}

// Delete removes a secret. Removing the last one removes the file.
func (e *EncryptedFileStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidSecret
	}
	return e.update(func(secrets map[string]Secret) error {
		if _, ok := secrets[name]; !ok {
			return ErrSecretNotFound
		}
		delete(secrets, name)
		return nil
	})
}

// Exists checks if a secret exists
func (e *EncryptedFileStore) Exists(name string) bool {
	secret, err := e.Retrieve(name)
	return err == nil && secret != nil
}

// update applies fn to the decrypted secrets and writes the result back
func (e *EncryptedFileStore) update(fn func(map[string]Secret) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.open()
	if err != nil {
		return err
	}
	if err := fn(v.secrets); err != nil {
		return err
	}
	if len(v.secrets) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return e.seal(v)
}

// open reads and decrypts the file. A missing file is an empty vault.
func (e *EncryptedFileStore) open() (*vault, error) {
	content, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return &vault{secrets: map[string]Secret{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", e.path, err)
	}

	var file vaultFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", e.path, err)
	}
	aead, err := e.cipher(file.Salt)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(file.Sealed) < n {
		return nil, errors.New("sealed data too short")
	}
	plaintext, err := aead.Open(nil, file.Sealed[:n], file.Sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets (wrong passphrase?): %w", err)
	}

	v := &vault{salt: file.Salt, secrets: map[string]Secret{}}
	if err := json.Unmarshal(plaintext, &v.secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return v, nil
}

// seal encrypts the vault and replaces the file atomically
func (e *EncryptedFileStore) seal(v *vault) error {
	if v.salt == nil {
		v.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, v.salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	aead, err := e.cipher(v.salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(v.secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	content, err := json.MarshalIndent(vaultFile{
		Version:  vaultVersion,
		Salt:     v.salt,
		Sealed:   aead.Seal(nonce, nonce, plaintext, nil),
		Modified: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file data: %w", err)
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) cipher(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.passphrase, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// loadPassphrase returns IGSYNC_PASSPHRASE, or the .passphrase file in dir,
// creating it with a random value on first use.
func loadPassphrase(dir string) ([]byte, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return []byte(pass), nil
	}

	path := filepath.Join(dir, ".passphrase")
	if content, err := os.ReadFile(path); err == nil && len(content) > 0 {
		return content, nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := []byte(base64.URLEncoding.EncodeToString(b))
	if err := os.WriteFile(path, pass, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}
