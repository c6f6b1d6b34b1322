package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Secret is a named value referenced from config as ${secret:NAME}
type Secret struct {
	Name         string    `json:"name"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// SecretStore is the interface for storing and retrieving secrets
type SecretStore interface {
	// Store saves a secret under its name
	Store(secret *Secret) error

	// Retrieve gets the secret with the given name
	Retrieve(name string) (*Secret, error)

	// List returns all stored secrets
	List() ([]*Secret, error)

	// Delete removes the secret with the given name
	Delete(name string) error

	// Exists checks if a secret is stored under name
	Exists(name string) bool
}

// Manager handles secret storage with fallback mechanisms
type Manager struct {
	stores []SecretStore
}

// NewManager creates a secret manager backed by the system keyring when it
// is available, an encrypted file in dir, and IGSYNC_SECRET_* variables.
// An empty dir selects the platform config directory.
func NewManager(dir string) (*Manager, error) {
	var stores []SecretStore

	// Try keyring first (system keychain)
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if dir == "" {
		var err error
		dir, err = getConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(dir, "secrets.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over explicit stores, tried in order.
func NewManagerWithStores(stores ...SecretStore) *Manager {
	return &Manager{stores: stores}
}

// Set stores value under name using the first store that accepts it
func (m *Manager) Set(name, value string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if value == "" {
		return errors.New("secret value is required")
	}

	secret := &Secret{Name: name, Value: value, LastModified: time.Now()}

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(secret); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store secret: %w", lastErr)
	}
	return errors.New("no available secret stores")
}

// Retrieve gets the secret from the first store that has it
func (m *Manager) Retrieve(name string) (*Secret, error) {
	for _, store := range m.stores {
		if secret, err := store.Retrieve(name); err == nil && secret != nil {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// Secret returns the value stored under name. It satisfies
// config.SecretResolver.
func (m *Manager) Secret(name string) (string, error) {
	secret, err := m.Retrieve(name)
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}

// List returns all stored secrets across stores, sorted by name
func (m *Manager) List() ([]*Secret, error) {
	byName := make(map[string]*Secret)

	for _, store := range m.stores {
		secrets, err := store.List()
		if err != nil {
			continue
		}
		for _, secret := range secrets {
			// Use the most recently modified version
			if existing, ok := byName[secret.Name]; !ok || secret.LastModified.After(existing.LastModified) {
				byName[secret.Name] = secret
			}
		}
	}

	result := make([]*Secret, 0, len(byName))
	for _, secret := range byName {
		result = append(result, secret)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes the secret from all stores
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrSecretNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete secret: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}

	return nil
}

// ValidateName accepts names usable inside a ${secret:NAME} placeholder
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidSecret
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidSecret, name, r)
		}
	}
	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igsync")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igsync")
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igsync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igsync")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeSecret creates a copy of the secret with its value masked
func SanitizeSecret(secret *Secret) *Secret {
	if secret == nil {
		return nil
	}

	return &Secret{
		Name:         secret.Name,
		Value:        maskString(secret.Value),
		LastModified: secret.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// envName maps a secret name to its IGSYNC_SECRET_* variable.
func envName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return envPrefix + strings.ToUpper(r.Replace(name))
}

// Errors
var (
	ErrSecretNotFound   = errors.New("secret not found")
	ErrInvalidSecret    = errors.New("invalid secret name")
	ErrStoreUnavailable = errors.New("secret store unavailable")
)
