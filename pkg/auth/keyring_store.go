package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "twtracker"
	keyringPrefix  = "apikey_"
	// keyringIndex holds the JSON list of stored set names
	keyringIndex = "index"
)

// KeyringStore implements CredentialStore using the system keychain.
// The keychain cannot enumerate entries, so the store keeps its own name index.
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore returns a store if the system keyring is usable
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

// IsKeyringAvailable reports whether the system keychain can be used
func IsKeyringAvailable() bool {
	_, err := NewKeyringStore()
	return err == nil
}

func (k *KeyringStore) Store(set *CredentialSet) error {
	if set == nil || set.Name == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to marshal credential set: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if err := keyring.Set(keyringService, keyringPrefix+set.Name, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	names, err := k.names()
	if err != nil {
		return err
	}
	for _, n := range names {
		if n == set.Name {
			return nil
		}
	}
	return k.saveNames(append(names, set.Name))
}

func (k *KeyringStore) Retrieve(name string) (*CredentialSet, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var set CredentialSet
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential set: %w", err)
	}
	return &set, nil
}

func (k *KeyringStore) List() ([]*CredentialSet, error) {
	k.mu.Lock()
	names, err := k.names()
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var sets []*CredentialSet
	for _, name := range names {
		set, err := k.Retrieve(name)
		if errors.Is(err, ErrCredentialsNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func (k *KeyringStore) Delete(name string) error {
	if name == "" {
		return ErrInvalidCredentials
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	err := keyring.Delete(keyringService, keyringPrefix+name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrCredentialsNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	names, err := k.names()
	if err != nil {
		return err
	}
	kept := names[:0]
	for _, n := range names {
		if n != name {
			kept = append(kept, n)
		}
	}
	return k.saveNames(kept)
}

func (k *KeyringStore) Exists(name string) bool {
	if name == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+name)
	return err == nil
}

func (k *KeyringStore) names() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return names, nil
}

func (k *KeyringStore) saveNames(names []string) error {
	sort.Strings(names)
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to update keyring index: %w", err)
	}
	return nil
}
