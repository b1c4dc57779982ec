package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/XinsongDu/Twitter-Tracker/pkg/models"
)

// DayLayout names the dated output directories
const DayLayout = "20060102"

// Manager appends crawled records to dated NDJSON files
type Manager struct {
	outputDir string

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	written int64
}

// NewManager creates a new storage manager
func NewManager(outputDir string) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{
		outputDir: outputDir,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// DayDir returns <out>/<YYYYMMDD> for now
func (m *Manager) DayDir(now time.Time) string {
	return DayDir(m.outputDir, now)
}

// DayDir returns <outputDir>/<YYYYMMDD> for now
func DayDir(outputDir string, now time.Time) string {
	return filepath.Join(outputDir, now.Format(DayLayout))
}

// AppendRecords appends one raw JSON line per record to <day>/<name>.
// The file is opened in append mode so earlier runs of the day are kept.
func (m *Manager) AppendRecords(now time.Time, name string, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	dir := m.DayDir(now)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create day directory: %w", err)
	}
	path := filepath.Join(dir, name)

	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open output file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, r := range records {
		w.Write(r.Raw)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	m.mu.Lock()
	m.written += int64(len(records))
	m.mu.Unlock()
	return nil
}

// lockFor serializes writers of the same file
func (m *Manager) lockFor(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}

// GetOutputDir returns the output directory path
func (m *Manager) GetOutputDir() string {
	return m.outputDir
}

// GetWrittenCount returns the number of records appended by this manager
func (m *Manager) GetWrittenCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// WriteAtomic replaces path with data via a synced temporary file and rename
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + ".tmp"
	out, err := os.OpenFile(tempFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := out.Write(data); err != nil {
		out.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
