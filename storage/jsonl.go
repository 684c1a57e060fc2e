// JSON Lines session files.
//
// Information Hiding:
// - Line layout: one header line, one line per entry, an optional outcome line
// - File naming per run and fsync after every write

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/llmchain/chain"
)

const maxLineSize = 64 << 20

// line is one JSON Lines record. Exactly one field is set.
type line struct {
	Header  *chain.Header  `json:"header,omitempty"`
	Entry   *chain.Entry   `json:"entry,omitempty"`
	Outcome *chain.Outcome `json:"outcome,omitempty"`
}

// JSONLStore writes each run to its own JSON Lines file.
type JSONLStore struct {
	mu     sync.Mutex
	dir    string
	single string
	// current is the run begun on a single-file store.
	current string
}

// NewJSONLStore stores runs as <dir>/<run id>.jsonl, creating dir if needed.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &JSONLStore{dir: dir}, nil
}

// NewJSONLFile stores a single run at path. Beginning a run truncates it.
func NewJSONLFile(path string) *JSONLStore {
	return &JSONLStore{single: path}
}

func (s *JSONLStore) path(runID string) string {
	if s.single != "" {
		return s.single
	}
	return filepath.Join(s.dir, runID+".jsonl")
}

// Begin creates the run file and writes the header line.
func (s *JSONLStore) Begin(ctx context.Context, h chain.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(h.RunID)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	if s.single != "" {
		s.current = h.RunID
	}
	return writeLine(f, line{Header: &h})
}

// Append writes one entry line and syncs the file.
func (s *JSONLStore) Append(ctx context.Context, runID string, e chain.Entry) error {
	return s.append(runID, line{Entry: &e})
}

// Finish writes the outcome line.
func (s *JSONLStore) Finish(ctx context.Context, runID string, o chain.Outcome) error {
	return s.append(runID, line{Outcome: &o})
}

func (s *JSONLStore) append(runID string, l line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.single != "" && runID != s.current {
		return fmt.Errorf("append to %s: %w", runID, ErrRunNotFound)
	}
	f, err := os.OpenFile(s.path(runID), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("append to %s: %w", runID, ErrRunNotFound)
		}
		return fmt.Errorf("failed to open history file: %w", err)
	}
	return writeLine(f, l)
}

// writeLine writes, syncs and closes f.
func writeLine(f *os.File, l line) error {
	data, err := json.Marshal(l)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to encode history line: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write history line: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync history file: %w", err)
	}
	return f.Close()
}

// Load reads a run file back.
func (s *JSONLStore) Load(ctx context.Context, runID string) (*chain.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := ReadJSONLFile(s.path(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", runID, ErrRunNotFound)
		}
		return nil, err
	}
	if h.Header.RunID != runID {
		return nil, fmt.Errorf("load %s: %w", runID, ErrRunNotFound)
	}
	return h, nil
}

// ListRuns lists the run ids found on disk, sorted.
func (s *JSONLStore) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.single != "" {
		h, err := ReadJSONLFile(s.single)
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []string{h.Header.RunID}, nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list history directory: %w", err)
	}
	runs := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	sort.Strings(runs)
	return runs, nil
}

// Close is a no-op; files are closed after every write.
func (s *JSONLStore) Close() error { return nil }

// ReadJSONLFile parses a session file.
func ReadJSONLFile(path string) (*chain.History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h, err := ReadJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// ReadJSONL parses session lines. The first line must be the header.
func ReadJSONL(r io.Reader) (*chain.History, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var h *chain.History
	n := 0
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}

		switch {
		case l.Header != nil:
			if h != nil {
				return nil, fmt.Errorf("line %d: second header", n)
			}
			h = &chain.History{Header: *l.Header, Entries: []chain.Entry{}}
		case h == nil:
			return nil, fmt.Errorf("line %d: expected header first", n)
		case l.Entry != nil:
			if h.Outcome != nil {
				return nil, fmt.Errorf("line %d: entry after outcome", n)
			}
			h.Entries = append(h.Entries, *l.Entry)
		case l.Outcome != nil:
			o := *l.Outcome
			h.Outcome = &o
		default:
			return nil, fmt.Errorf("line %d: unknown record", n)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if h == nil {
		return nil, errors.New("empty history")
	}
	return h, nil
}

// Verify JSONLStore implements Store
var _ Store = (*JSONLStore)(nil)
