// Package tracker records which source files have already been ingested so
// that unchanged files are skipped on the next run.
package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Stats summarizes the tracking store.
type Stats struct {
	Count    int    `json:"count"`
	Location string `json:"location"`
}

// state is the on-disk representation.
type state struct {
	Signatures []string          `json:"signatures"`
	Paths      map[string]string `json:"paths"`
}

// Store maps source paths to the signature they had when last processed.
// A Store has a single writer; it is not safe for concurrent use.
type Store struct {
	path       string
	signatures map[string]struct{}
	paths      map[string]string
	logger     *slog.Logger
}

// Open loads the tracking store at path. A missing or unreadable store is
// treated as empty and logged; it never fails.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:       path,
		signatures: make(map[string]struct{}),
		paths:      make(map[string]string),
		logger:     logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("tracking store unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("tracking store corrupt, starting empty", "path", path, "error", err)
		return s
	}
	for _, sig := range st.Signatures {
		s.signatures[sig] = struct{}{}
	}
	for p, sig := range st.Paths {
		s.paths[p] = sig
	}
	logger.Debug("tracking store loaded", "path", path, "files", len(s.paths))
	return s
}

// Signature fingerprints a file from its absolute path, size and
// modification time. If the file cannot be stat'ed, the path alone is used.
func Signature(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		return hashOf(abs)
	}
	return hashOf(abs, strconv.FormatInt(info.Size(), 10), strconv.FormatInt(info.ModTime().UnixNano(), 10))
}

func hashOf(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// IsProcessed reports whether path is up to date: its current signature
// equals the one recorded when it was last marked.
func (s *Store) IsProcessed(path string) bool {
	_, ok := s.signatures[Signature(path)]
	return ok
}

// MarkProcessed records the current signature of path, replacing any
// previous signature for the same path.
func (s *Store) MarkProcessed(path string) {
	k := key(path)
	if old, ok := s.paths[k]; ok {
		delete(s.signatures, old)
	}
	sig := Signature(path)
	s.signatures[sig] = struct{}{}
	s.paths[k] = sig
}

// Forget drops every tracked path for which match returns true and returns
// how many were dropped.
func (s *Store) Forget(match func(path string) bool) int {
	n := 0
	for p, sig := range s.paths {
		if !match(p) {
			continue
		}
		delete(s.signatures, sig)
		delete(s.paths, p)
		n++
	}
	return n
}

// Save writes the store to disk atomically.
func (s *Store) Save() error {
	st := state{
		Signatures: make([]string, 0, len(s.signatures)),
		Paths:      s.paths,
	}
	for sig := range s.signatures {
		st.Signatures = append(st.Signatures, sig)
	}
	sort.Strings(st.Signatures)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tracking store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create tracking directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tracking-*")
	if err != nil {
		return fmt.Errorf("failed to create temp tracking file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write tracking store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write tracking store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace tracking store: %w", err)
	}
	return nil
}

// Stats returns the number of tracked files and where the store lives.
func (s *Store) Stats() Stats {
	return Stats{Count: len(s.paths), Location: s.path}
}

// Clear deletes the persisted store and resets in-memory state.
func (s *Store) Clear() error {
	s.signatures = make(map[string]struct{})
	s.paths = make(map[string]string)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove tracking store: %w", err)
	}
	return nil
}
