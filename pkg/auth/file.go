package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
)

// credentialsFile is the shape of config.json: {"apikeys": {"<name>": {...}}}
type credentialsFile struct {
	APIKeys map[string]CredentialSet `json:"apikeys"`
}

// LoadFile reads credential sets from a config.json file, sorted by name
func LoadFile(path string) ([]*CredentialSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errs.NewConfigurationError(path, "invalid credentials file: %v", err)
	}

	sets := make([]*CredentialSet, 0, len(file.APIKeys))
	for name, set := range file.APIKeys {
		set := set
		set.Name = name
		if err := set.Validate(); err != nil {
			return nil, errs.NewConfigurationError(path, "%v", err)
		}
		sets = append(sets, &set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}

// Resolve merges the credentials file (if path is set and present) with the
// sets held by the manager. File entries win on name clashes. Having no
// credential set at all is a configuration error.
func Resolve(path string, manager *Manager) ([]*CredentialSet, error) {
	byName := make(map[string]*CredentialSet)

	if manager != nil {
		stored, err := manager.List()
		if err != nil {
			return nil, err
		}
		for _, set := range stored {
			byName[set.Name] = set
		}
	}

	if path != "" {
		fromFile, err := LoadFile(path)
		switch {
		case err == nil:
			for _, set := range fromFile {
				byName[set.Name] = set
			}
		case errors.Is(err, fs.ErrNotExist) && len(byName) > 0:
			// stored sets are enough
		default:
			return nil, err
		}
	}

	if len(byName) == 0 {
		return nil, errs.NewConfigurationError("apikeys", "no credential sets configured")
	}

	sets := make([]*CredentialSet, 0, len(byName))
	for _, set := range byName {
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].Name < sets[j].Name })
	return sets, nil
}
