package auth

import (
	"os"
	"strings"
	"time"
)

const envPrefix = "IGSYNC_SECRET_"

// EnvironmentStore implements SecretStore over IGSYNC_SECRET_* variables.
// It is read-only and mainly serves CI where no keyring exists.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based secret store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(secret *Secret) error {
	return ErrStoreUnavailable
}

// Retrieve reads IGSYNC_SECRET_<NAME>, with - and . mapped to _
func (e *EnvironmentStore) Retrieve(name string) (*Secret, error) {
	if name == "" {
		return nil, ErrInvalidSecret
	}
	value := os.Getenv(envName(name))
	if value == "" {
		return nil, ErrSecretNotFound
	}
	return &Secret{Name: name, Value: value, LastModified: time.Now()}, nil
}

// List returns every non-empty IGSYNC_SECRET_* variable
func (e *EnvironmentStore) List() ([]*Secret, error) {
	var secrets []*Secret
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, envPrefix) || key == envPrefix {
			continue
		}
		secrets = append(secrets, &Secret{
			Name:  strings.ToLower(strings.TrimPrefix(key, envPrefix)),
			Value: value,
		})
	}
	return secrets, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the variable for name is set
func (e *EnvironmentStore) Exists(name string) bool {
	return name != "" && os.Getenv(envName(name)) != ""
}
