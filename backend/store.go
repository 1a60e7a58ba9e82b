// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c2FmZQ/storage"
)

// DocStore reads and writes the JSON documents of a league. Every
// document is a flat object; values are kept as raw JSON so keys this
// code does not know about survive a read-modify-write cycle.
//
// All writes go through the storage layer, which writes to a temp file
// and renames, so a crash mid-write never leaves a torn document.
type DocStore struct {
	DataDir string
	storage *storage.Storage
	locks   *fileLocks
}

// NewDocStore creates a DocStore rooted at dataDir.
func NewDocStore(dataDir string, s *storage.Storage) *DocStore {
	return &DocStore{
		DataDir: dataDir,
		storage: s,
		locks:   &fileLocks{},
	}
}

// Relative paths of a league's documents. The league id is a validated
// subdomain label, so it is safe to join into a path.
func infoPath(league string) string {
	return filepath.Join(league, "info.json")
}

func sessionPath(league, date string) string {
	return filepath.Join(league, date+".json")
}

func rankingsPath(league, year string) string {
	return filepath.Join(league, "rankings-"+year+".json")
}

func disciplinePath(league string) string {
	return filepath.Join(league, "discipline.json")
}

// A DocOp mutates a document in place. Ops passed to a single Apply
// call run under one lock and one read-modify-write; if any op returns
// an error the file is left untouched.
type DocOp func(doc map[string]json.RawMessage) error

// SetKey marshals v and stores it under key, replacing any existing
// value.
func SetKey(key string, v any) DocOp {
	return func(doc map[string]json.RawMessage) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("json.Marshal %q: %w", key, err)
		}
		doc[key] = b
		return nil
	}
}

// SetKeyIfAbsent stores v under key only when the key is missing.
func SetKeyIfAbsent(key string, v any) DocOp {
	return func(doc map[string]json.RawMessage) error {
		if _, ok := doc[key]; ok {
			return nil
		}
		return SetKey(key, v)(doc)
	}
}

// RemoveKey deletes key from the document. Removing a missing key is
// not an error.
func RemoveKey(key string) DocOp {
	return func(doc map[string]json.RawMessage) error {
		delete(doc, key)
		return nil
	}
}

// Lock locks a single document path. The returned func unlocks it.
func (s *DocStore) Lock(path string) func() {
	return s.locks.Lock(path)
}

// LockPair locks two document paths in a deadlock-safe order.
func (s *DocStore) LockPair(a, b string) func() {
	return s.locks.LockPair(a, b)
}

// Get returns the document at path. A missing file maps to ErrNotFound.
func (s *DocStore) Get(path string) (map[string]json.RawMessage, error) {
	defer s.locks.Lock(path)()
	return s.getLocked(path)
}

func (s *DocStore) getLocked(path string) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := s.storage.ReadDataFile(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%q: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("storage.ReadDataFile: %w", err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	return doc, nil
}

// GetKey unmarshals the value stored under key at path into v. Both a
// missing file and a missing key map to ErrNotFound.
func (s *DocStore) GetKey(path, key string, v any) error {
	doc, err := s.Get(path)
	if err != nil {
		return err
	}
	raw, ok := doc[key]
	if !ok {
		return fmt.Errorf("%q key %q: %w", path, key, ErrNotFound)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("json.Unmarshal %q: %w", key, err)
	}
	return nil
}

// Apply runs ops against the document at path under its lock and
// persists the result. A missing file starts as an empty document.
func (s *DocStore) Apply(path string, ops ...DocOp) error {
	defer s.locks.Lock(path)()
	return s.applyLocked(path, ops...)
}

// applyLocked is Apply for callers already holding the path's lock,
// e.g. an operation that locked a pair of documents.
func (s *DocStore) applyLocked(path string, ops ...DocOp) error {
	var doc map[string]json.RawMessage
	if err := s.storage.ReadDataFile(path, &doc); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage.ReadDataFile: %w", err)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}
	for _, op := range ops {
		if err := op(doc); err != nil {
			return err
		}
	}
	if err := s.storage.SaveDataFile(path, doc); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// Exists reports whether a document exists at path without reading it.
func (s *DocStore) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(s.DataDir, path))
	return err == nil
}

// Load reads the typed file at path. A missing file maps to
// ErrNotFound.
func (s *DocStore) Load(path string, v any) error {
	defer s.locks.Lock(path)()
	return s.loadLocked(path, v)
}

func (s *DocStore) loadLocked(path string, v any) error {
	if err := s.storage.ReadDataFile(path, v); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%q: %w", path, ErrNotFound)
		}
		return fmt.Errorf("storage.ReadDataFile: %w", err)
	}
	return nil
}

// Save writes the typed file at path.
func (s *DocStore) Save(path string, v any) error {
	defer s.locks.Lock(path)()
	return s.saveLocked(path, v)
}

func (s *DocStore) saveLocked(path string, v any) error {
	if err := s.storage.SaveDataFile(path, v); err != nil {
		return fmt.Errorf("storage.SaveDataFile: %w", err)
	}
	return nil
}

// ListSessionDates returns every session date of a league, ascending.
// Only filenames of the YYYY-MM-DD.json form count.
func (s *DocStore) ListSessionDates(leagueID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, leagueID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("os.ReadDir: %w", err)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := strings.CutSuffix(e.Name(), ".json")
		if ok && isValidDate(date) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// Remove deletes the file at path. Removing a missing file is not an
// error.
func (s *DocStore) Remove(path string) error {
	defer s.locks.Lock(path)()
	if err := os.Remove(filepath.Join(s.DataDir, path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("os.Remove: %w", err)
	}
	return nil
}
