package proxy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
)

// Endpoint is a single outbound proxy
type Endpoint struct {
	Address string `json:"proxy"`
	Type    string `json:"type,omitempty"`
}

// URL returns the proxy URL, defaulting the scheme to Type or http
func (e Endpoint) URL() (*url.URL, error) {
	raw := e.Address
	if !strings.Contains(raw, "://") {
		scheme := e.Type
		if scheme == "" {
			scheme = "http"
		}
		raw = scheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", e.Address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing host", e.Address)
	}
	return u, nil
}

func (e Endpoint) String() string {
	return e.Address
}

// UnmarshalJSON accepts either "host:port" or {"proxy": "...", "type": "..."}
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = Endpoint{Address: s}
		return nil
	}

	type plain Endpoint
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Endpoint(p)
	return nil
}

// LoadFile reads a JSON array of endpoints. Entries that do not parse as
// proxy URLs are a configuration error.
func LoadFile(path string) ([]Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxies file: %w", err)
	}

	var endpoints []Endpoint
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return nil, errs.NewConfigurationError(path, "invalid proxies file: %v", err)
	}
	for i, ep := range endpoints {
		if _, err := ep.URL(); err != nil {
			return nil, errs.NewConfigurationError(path, "entry %d: %v", i, err)
		}
	}
	return endpoints, nil
}

// SaveFile writes endpoints as a JSON array
func SaveFile(path string, endpoints []Endpoint) error {
	data, err := json.MarshalIndent(endpoints, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proxies: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
