package auth

import (
	"os"
	"time"
)

// Environment variables read by EnvironmentStore
const (
	EnvAppKey      = "TWTRACKER_APP_KEY"
	EnvAppSecret   = "TWTRACKER_APP_SECRET"
	EnvBearerToken = "TWTRACKER_BEARER_TOKEN"
	envSetName     = "env"
)

// EnvironmentStore exposes a single read-only credential set named "env"
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(*CredentialSet) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*CredentialSet, error) {
	if name != "" && name != envSetName {
		return nil, ErrCredentialsNotFound
	}

	set := &CredentialSet{
		Name:         envSetName,
		AppKey:       os.Getenv(EnvAppKey),
		AppSecret:    os.Getenv(EnvAppSecret),
		BearerToken:  os.Getenv(EnvBearerToken),
		LastModified: time.Now(),
	}
	if set.Validate() != nil {
		return nil, ErrCredentialsNotFound
	}
	return set, nil
}

func (e *EnvironmentStore) List() ([]*CredentialSet, error) {
	set, err := e.Retrieve("")
	if err != nil {
		return nil, nil
	}
	return []*CredentialSet{set}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
