package auth

import "sync"

// MockStore implements CredentialStore in memory for tests
type MockStore struct {
	mu   sync.RWMutex
	sets map[string]CredentialSet

	// Error injection
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{sets: make(map[string]CredentialSet)}
}

func (m *MockStore) Store(set *CredentialSet) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if set == nil || set.Name == "" {
		return ErrInvalidCredentials
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[set.Name] = *set
	return nil
}

func (m *MockStore) Retrieve(name string) (*CredentialSet, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &set, nil
}

func (m *MockStore) List() ([]*CredentialSet, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sets := make([]*CredentialSet, 0, len(m.sets))
	for _, set := range m.sets {
		set := set
		sets = append(sets, &set)
	}
	return sets, nil
}

func (m *MockStore) Delete(name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sets[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.sets, name)
	return nil
}

func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sets[name]
	return ok
}

// Count returns the number of stored sets
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sets)
}

// NewMockManager creates a Manager with a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
