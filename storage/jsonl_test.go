package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLStoreContract(t *testing.T) {
	s, err := NewJSONLStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONLStore failed: %v", err)
	}
	exerciseStore(t, s)
}

func TestJSONLFileContract(t *testing.T) {
	exerciseStore(t, NewJSONLFile(filepath.Join(t.TempDir(), "sessions", "run.jsonl")))
}

func TestJSONLLayout(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONLStore(dir)
	ctx := context.Background()

	_ = s.Begin(ctx, sampleHeader("run-1"))
	for _, e := range sampleEntries() {
		_ = s.Append(ctx, "run-1", e)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run-1.jsonl"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], `{"header":{"run_id":"run-1"`) {
		t.Errorf("unexpected header line: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], `{"entry":{"step_id":"A"`) {
		t.Errorf("unexpected entry line: %s", lines[1])
	}
}

func TestJSONLStoreListRuns(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONLStore(dir)
	ctx := context.Background()

	_ = s.Begin(ctx, sampleHeader("b"))
	_ = s.Begin(ctx, sampleHeader("a"))
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0] != "a" || runs[1] != "b" {
		t.Errorf("expected [a b], got %v", runs)
	}
}

func TestJSONLFileListRunsWhenMissing(t *testing.T) {
	s := NewJSONLFile(filepath.Join(t.TempDir(), "none.jsonl"))
	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %v", runs)
	}
}

func TestReadJSONLRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":           "",
		"entry first":     `{"entry":{"step_id":"A"}}`,
		"two headers":     `{"header":{"run_id":"x"}}` + "\n" + `{"header":{"run_id":"y"}}`,
		"unknown record":  `{"header":{"run_id":"x"}}` + "\n" + `{}`,
		"not json":        `{"header":`,
		"entry after end": `{"header":{"run_id":"x"}}` + "\n" + `{"outcome":{"state":"completed"}}` + "\n" + `{"entry":{"step_id":"A"}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadJSONL(strings.NewReader(input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestReadJSONLSkipsBlankLines(t *testing.T) {
	input := `{"header":{"run_id":"x","input_var":"input","input":"i"}}` + "\n\n" +
		`{"entry":{"step_id":"A","response":"r","source":"dispatched"}}` + "\n"
	h, err := ReadJSONL(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSONL failed: %v", err)
	}
	if len(h.Entries) != 1 || h.Entries[0].Response != "r" {
		t.Errorf("unexpected entries: %+v", h.Entries)
	}
}
