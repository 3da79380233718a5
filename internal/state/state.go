// Package state persists the device state across an emulated deep sleep.
// The default location is on tmpfs so the state survives a process restart
// but not a power loss, which is what separates a wake from a cold start.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweeney/feedback-buttons/internal/logic"
)

// DefaultPath is the retained state file.
const DefaultPath = "/run/feedback-buttons/state.json"

// Store loads and saves the retained device state.
type Store interface {
	// Load returns the retained state. found is false when nothing was retained,
	// in which case state is logic.ColdState().
	Load() (state logic.DeviceState, found bool, err error)
	Save(state logic.DeviceState) error
	// Clear removes the retained state so the next start is a cold start.
	Clear() error
}

// FileStore keeps the state as JSON in a single file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is a cold start.
func (s *FileStore) Load() (logic.DeviceState, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return logic.ColdState(), false, nil
	}
	if err != nil {
		return logic.ColdState(), false, fmt.Errorf("read state %s: %w", s.path, err)
	}

	st := logic.ColdState()
	if err := json.Unmarshal(data, &st); err != nil {
		return logic.ColdState(), false, fmt.Errorf("parse state %s: %w", s.path, err)
	}
	return st, true, nil
}

// Save writes the state atomically: temp file in the same directory, then rename.
func (s *FileStore) Save(st logic.DeviceState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// Clear removes the state file. A missing file is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	state logic.DeviceState
	found bool

	// SaveError, if set, will be returned by Save.
	SaveError error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: logic.ColdState()}
}

// Load returns the last saved state.
func (m *MemoryStore) Load() (logic.DeviceState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.found, nil
}

// Save retains st.
func (m *MemoryStore) Save(st logic.DeviceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.state = st
	m.found = true
	return nil
}

// Clear forgets the retained state.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = logic.ColdState()
	m.found = false
	return nil
}
