// Package store persists chunk results as JSON Lines.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgallion1/docjudge/internal/model"
	"github.com/rotisserie/eris"
)

// maxLine bounds a single stored record; chunk text plus key info stays far
// below this.
const maxLine = 16 << 20

// JSONLStore appends one ChunkResult per line to a file.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONLStore(path string) *JSONLStore {
	return &JSONLStore{path: path}
}

// Path returns the backing file.
func (s *JSONLStore) Path() string { return s.path }

// Save appends a single result.
func (s *JSONLStore) Save(r model.ChunkResult) error {
	return s.SaveMany([]model.ChunkResult{r})
}

// SaveMany appends results in order, creating the file and its parent
// directories when needed.
func (s *JSONLStore) SaveMany(results []model.ChunkResult) error {
	if len(results) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create store dir %s", dir)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "open store %s", s.path)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		if r.KeyInfo == nil {
			r.KeyInfo = map[string]any{}
		}
		if r.Topics == nil {
			r.Topics = []string{}
		}
		if err := enc.Encode(r); err != nil {
			f.Close()
			return eris.Wrapf(err, "encode chunk %d", r.ChunkID)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return eris.Wrapf(err, "write store %s", s.path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "close store %s", s.path)
	}
	return nil
}

// LoadAll reads every stored result in file order. A missing file yields
// no results; blank lines are skipped.
func (s *JSONLStore) LoadAll() ([]model.ChunkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.ChunkResult{}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open store %s", s.path)
	}
	defer f.Close()

	out := []model.ChunkResult{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var r model.ChunkResult
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, eris.Wrapf(err, "%s line %d", s.path, line)
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "read store %s", s.path)
	}
	return out, nil
}
