package auth

import (
	"sync"
)

// MockStore implements SecretStore in memory for tests
type MockStore struct {
	secrets map[string]*Secret
	mu      sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock secret store
func NewMockStore() *MockStore {
	return &MockStore{
		secrets: make(map[string]*Secret),
	}
}

// NewMockManager returns a manager over a single fresh MockStore
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}

// Store saves a copy of the secret
func (m *MockStore) Store(secret *Secret) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if secret == nil || secret.Name == "" {
		return ErrInvalidSecret
	}

	cp := *secret
	m.secrets[secret.Name] = &cp
	return nil
}

// Retrieve gets a copy of the secret
func (m *MockStore) Retrieve(name string) (*Secret, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidSecret
	}

	secret, ok := m.secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	cp := *secret
	return &cp, nil
}

// List returns copies of all secrets
func (m *MockStore) List() ([]*Secret, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	secrets := make([]*Secret, 0, len(m.secrets))
	for _, secret := range m.secrets {
		cp := *secret
		secrets = append(secrets, &cp)
	}
	return secrets, nil
}

// Delete removes a secret
func (m *MockStore) Delete(name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.secrets[name]; !ok {
		return ErrSecretNotFound
	}
	delete(m.secrets, name)
	return nil
}

// Exists checks if a secret is stored
func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.secrets[name]
	return ok
}

// Count returns the number of stored secrets
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}
