// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runstate persists summaries of script runs so that the last outcome
// can be reported after the process exits.
package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bartekus/webstore/internal/fsutil"
)

// DefaultDir is the state directory used when none is configured.
const DefaultDir = ".webstore/run"

// StateStore handles reading and writing run state.
type StateStore struct {
	baseDir string
}

// NewStateStore creates a store at the given base directory (e.g. .webstore/run).
func NewStateStore(baseDir string) *StateStore {
	return &StateStore{baseDir: baseDir}
}

func (s *StateStore) lastRunPath() string {
	return filepath.Join(s.baseDir, "last-run.json")
}

func (s *StateStore) runPath(id string) string {
	return filepath.Join(s.baseDir, "runs", id+".json")
}

// ReadLastRun loads the last execution summary. It returns nil, nil when no
// run has been recorded.
func (s *StateStore) ReadLastRun() (*Run, error) {
	return readRun(s.lastRunPath())
}

// ReadRun loads a run by id.
func (s *StateStore) ReadRun(id string) (*Run, error) {
	return readRun(s.runPath(id))
}

func readRun(path string) (*Run, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening run file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var run Run
	if err := json.NewDecoder(f).Decode(&run); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", path, err)
	}
	return &run, nil
}

// WriteRun saves run under its id and as the last run.
func (s *StateStore) WriteRun(run Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	data = append(data, '\n')

	if err := fsutil.AtomicWrite(s.runPath(run.ID), data); err != nil {
		return err
	}
	return fsutil.AtomicWrite(s.lastRunPath(), data)
}

// Reset clears the state directory.
func (s *StateStore) Reset() error {
	return os.RemoveAll(s.baseDir)
}
