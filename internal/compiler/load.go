package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/dfsim/internal/ir"
)

// Supported graph description extensions.
const (
	ExtCUE  = ".cue"
	ExtHCL  = ".hcl"
	ExtJSON = ".json"
)

// LoadGraph reads a graph description, choosing the front end by file
// extension. A directory is loaded as a CUE package. A graph without a
// name takes the base name of its source.
func LoadGraph(path string) (ir.Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ir.Graph{}, fmt.Errorf("stat graph source: %w", err)
	}

	var g ir.Graph
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir() || ext == ExtCUE:
		g, err = LoadCUEGraph(path)
	case ext == ExtHCL:
		g, err = LoadHCLGraph(path)
	case ext == ExtJSON:
		g, err = loadJSONGraph(path)
	default:
		return ir.Graph{}, fmt.Errorf("unsupported graph source %q: want %s, %s or %s", path, ExtCUE, ExtHCL, ExtJSON)
	}
	if err != nil {
		return ir.Graph{}, err
	}

	if g.Name == "" {
		g.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return g, nil
}

// loadJSONGraph reads the JSON form written by ir.Graph's encoder, which is
// also what run records store.
func loadJSONGraph(path string) (ir.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Graph{}, fmt.Errorf("read graph source: %w", err)
	}
	var g ir.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return ir.Graph{}, &CompileError{Field: "json", Message: err.Error()}
	}
	if g.Edges == nil {
		g.Edges = []ir.Edge{}
	}
	return g, nil
}

// FindGraphFiles returns the graph descriptions directly inside dir,
// sorted by name.
func FindGraphFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ExtCUE, ExtHCL, ExtJSON:
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
