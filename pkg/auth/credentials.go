package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// CredentialSet is one platform application key pair plus optional user tokens.
// A lane owns exactly one credential set.
type CredentialSet struct {
	Name             string    `json:"name"`
	AppKey           string    `json:"app_key"`
	AppSecret        string    `json:"app_secret"`
	OAuthToken       string    `json:"oauth_token,omitempty"`
	OAuthTokenSecret string    `json:"oauth_token_secret,omitempty"`
	BearerToken      string    `json:"bearer_token,omitempty"`
	LastModified     time.Time `json:"last_modified"`
}

// Validate checks that the set can obtain an app-only token
func (c *CredentialSet) Validate() error {
	if c.Name == "" {
		return errors.New("credential set name is required")
	}
	if c.BearerToken != "" {
		return nil
	}
	if c.AppKey == "" {
		return fmt.Errorf("credential set %q: app_key is required", c.Name)
	}
	if c.AppSecret == "" {
		return fmt.Errorf("credential set %q: app_secret is required", c.Name)
	}
	return nil
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	Store(set *CredentialSet) error
	Retrieve(name string) (*CredentialSet, error)
	List() ([]*CredentialSet, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager backed by the system keyring when
// available, an encrypted file, and the environment.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over explicit stores, in priority order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves a credential set in the first store that accepts it
func (m *Manager) Store(set *CredentialSet) error {
	if set == nil {
		return ErrInvalidCredentials
	}
	if err := set.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	set.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(set)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets a credential set from the first store that has it
func (m *Manager) Retrieve(name string) (*CredentialSet, error) {
	for _, store := range m.stores {
		if set, err := store.Retrieve(name); err == nil && set != nil {
			return set, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
}

// List returns the sets of every store sorted by name. When a name appears
// in several stores the most recently modified copy wins.
func (m *Manager) List() ([]*CredentialSet, error) {
	byName := make(map[string]*CredentialSet)

	for _, store := range m.stores {
		sets, err := store.List()
		if err != nil {
			continue
		}
		for _, set := range sets {
			if existing, ok := byName[set.Name]; !ok || set.LastModified.After(existing.LastModified) {
				byName[set.Name] = set
			}
		}
	}

	result := make([]*CredentialSet, 0, len(byName))
	for _, set := range byName {
		result = append(result, set)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes a credential set from every store
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrCredentialsNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, name)
	}
	return nil
}

// getConfigDir returns the per-user configuration directory
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "twtracker")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "twtracker")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "twtracker")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "twtracker")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy with secrets masked, for display
func Sanitize(set *CredentialSet) *CredentialSet {
	if set == nil {
		return nil
	}
	masked := *set
	masked.AppKey = maskString(set.AppKey)
	masked.AppSecret = maskString(set.AppSecret)
	masked.OAuthToken = maskString(set.OAuthToken)
	masked.OAuthTokenSecret = maskString(set.OAuthTokenSecret)
	masked.BearerToken = maskString(set.BearerToken)
	return &masked
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
