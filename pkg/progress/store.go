package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	errs "github.com/XinsongDu/Twitter-Tracker/pkg/errors"
	"github.com/XinsongDu/Twitter-Tracker/pkg/logger"
	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
	"github.com/XinsongDu/Twitter-Tracker/pkg/storage"
)

// Mirror receives every committed target after the files are written
type Mirror interface {
	Put(ctx context.Context, kind models.Kind, id string, target models.Target) error
}

// Store persists the target map of one crawl mode. Every commit rewrites
// the progress file and the dated snapshot for the day.
type Store struct {
	path      string
	outputDir string
	kind      models.Kind
	logger    logger.Logger
	mirror    Mirror
	now       func() time.Time

	mu      sync.Mutex
	targets map[string]models.Target
}

// NewStore creates a store for the progress file at path
func NewStore(path, outputDir string, kind models.Kind, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		path:      path,
		outputDir: outputDir,
		kind:      kind,
		logger:    log.WithField("component", "progress"),
		now:       time.Now,
		targets:   make(map[string]models.Target),
	}
}

// WithMirror attaches a mirror that is updated after each commit
func (s *Store) WithMirror(m Mirror) *Store {
	s.mirror = m
	return s
}

// WithClock replaces the clock used to name snapshot directories
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Path returns the progress file location
func (s *Store) Path() string {
	return s.path
}

// Kind returns the crawl mode of the stored targets
func (s *Store) Kind() models.Kind {
	return s.kind
}

// SnapshotName is the dated snapshot file name for kind
func SnapshotName(kind models.Kind) string {
	if kind == models.KindUser {
		return "users.json"
	}
	return "search.json"
}

// Load reads the progress file. A missing or empty file, or one without
// targets, is a configuration error.
func (s *Store) Load() (map[string]models.Target, error) {
	targets, err := s.read()
	if os.IsNotExist(err) {
		return nil, errs.NewConfigurationError(s.path, "progress file does not exist")
	}
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errs.NewConfigurationError(s.path, "no targets to track")
	}

	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()

	s.logger.InfoWithFields("Progress loaded", map[string]interface{}{
		"path":    s.path,
		"targets": len(targets),
		"active":  countActive(targets),
	})
	return copyTargets(targets), nil
}

// read decodes the progress file and fills ID and Kind
func (s *Store) read() (map[string]models.Target, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errs.NewConfigurationError(s.path, "progress file is empty")
	}

	var raw map[string]models.Target
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.NewConfigurationError(s.path, "invalid progress file: %v", err)
	}

	targets := make(map[string]models.Target, len(raw))
	for id, t := range raw {
		t.ID = id
		t.Kind = s.kind
		if err := t.Validate(); err != nil {
			return nil, errs.NewConfigurationError(s.path, "%v", err)
		}
		targets[id] = t
	}
	return targets, nil
}

// Commit records the outcome of one run. The watermark never moves
// backwards and a removed target stays removed.
func (s *Store) Commit(ctx context.Context, id string, target models.Target) error {
	s.mu.Lock()
	if prev, ok := s.targets[id]; ok {
		if target.SinceID < prev.SinceID {
			target.SinceID = prev.SinceID
		}
		target.Removed = target.Removed || prev.Removed
		if target.Extra == nil {
			target.Extra = prev.Extra
		}
	}
	target.ID = id
	target.Kind = s.kind
	s.targets[id] = target

	err := s.persist()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.DebugWithFields("Progress committed", map[string]interface{}{
		"target":   id,
		"since_id": target.SinceID,
		"removed":  target.Removed,
	})

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, s.kind, id, target); err != nil {
			s.logger.WithError(err).WarnWithFields("Progress mirror update failed", map[string]interface{}{
				"target": id,
			})
		}
	}
	return nil
}

// Upsert adds targets that are not yet tracked and saves the file. An
// absent progress file is created.
func (s *Store) Upsert(targets ...models.Target) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.targets) == 0 {
		existing, err := s.read()
		switch {
		case err == nil:
			s.targets = existing
		case os.IsNotExist(err):
		default:
			return 0, err
		}
	}

	added := 0
	for _, t := range targets {
		t.Kind = s.kind
		if err := t.Validate(); err != nil {
			return 0, err
		}
		if _, ok := s.targets[t.ID]; ok {
			continue
		}
		s.targets[t.ID] = t
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, s.writeFile(s.path)
}

// Targets returns a snapshot sorted by id
func (s *Store) Targets() []models.Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the stored target for id
func (s *Store) Get(id string) (models.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	return t, ok
}

// Backup copies the progress file to <path>.backup
func (s *Store) Backup() error {
	src, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open progress file for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(s.path + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy progress file to backup: %w", err)
	}

	s.logger.Debug("Progress file backed up")
	return nil
}

// persist writes the progress file, then the dated snapshot. Callers hold mu.
func (s *Store) persist() error {
	if err := s.writeFile(s.path); err != nil {
		return err
	}
	snapshot := filepath.Join(storage.DayDir(s.outputDir, s.now()), SnapshotName(s.kind))
	return s.writeFile(snapshot)
}

func (s *Store) writeFile(path string) error {
	data, err := json.MarshalIndent(s.targets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := storage.WriteAtomic(path, data, 0644); err != nil {
		return errs.NewTransient(errs.ErrorTypeStorage, 0, "failed to save progress", err)
	}
	return nil
}

func countActive(targets map[string]models.Target) int {
	n := 0
	for _, t := range targets {
		if !t.Removed {
			n++
		}
	}
	return n
}

func copyTargets(in map[string]models.Target) map[string]models.Target {
	out := make(map[string]models.Target, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
