package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
)

// createTestStore opens a fresh store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// runAndSave executes g under cfg and writes the result as run id.
func runAndSave(t *testing.T, s *Store, id string, g ir.Graph, cfg engine.RunConfig) (Run, *engine.State) {
	t.Helper()
	st, err := cfg.NewState(g, engine.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatalf("NewState() failed: %v", err)
	}
	out, err := st.Run(cfg.Limit())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	run, err := s.SaveRun(context.Background(), id, st, out, cfg)
	if err != nil {
		t.Fatalf("SaveRun() failed: %v", err)
	}
	return run, st
}
