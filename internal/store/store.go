// Package store keeps the upload and monitor session history of a
// workspace, plus the raw captures of monitor sessions.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MaxRecords bounds each history file; the oldest records go first.
const MaxRecords = 200

const (
	uploadsFile  = "uploads.json"
	sessionsFile = "sessions.json"
)

// Store persists history as JSON arrays under root/history and session
// captures under root/logs.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at the given directory (typically .cloudeditor/).
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) AddUpload(r UploadRecord) error {
	return appendRecord(s, uploadsFile, r)
}

func (s *Store) AddSession(r SessionRecord) error {
	return appendRecord(s, sessionsFile, r)
}

// Uploads returns the upload history, oldest first.
func (s *Store) Uploads() ([]UploadRecord, error) {
	return loadRecords[UploadRecord](s, uploadsFile)
}

// Sessions returns the monitor session history, oldest first.
func (s *Store) Sessions() ([]SessionRecord, error) {
	return loadRecords[SessionRecord](s, sessionsFile)
}

// OpenLog creates the capture file for a session on port opened at now.
func (s *Store) OpenLog(port string, now time.Time) (*os.File, error) {
	dir := filepath.Join(s.root, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s-%s.log", sanitize(filepath.Base(port)), now.Format("20060102-150405"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}

func appendRecord[T any](s *Store, filename string, record T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := readFile[T](s.path(filename))
	if err != nil {
		return err
	}
	records = append(records, record)
	if len(records) > MaxRecords {
		records = records[len(records)-MaxRecords:]
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(s.path(filename), data)
}

func loadRecords[T any](s *Store, filename string) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readFile[T](s.path(filename))
}

func (s *Store) path(filename string) string {
	return filepath.Join(s.root, "history", filename)
}

// readFile treats a missing file as empty history. A corrupt one is an
// error so that appending never silently drops it.
func readFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// writeFile replaces path through a rename so readers never see a
// partial file.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
