package store

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/testutil"
)

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cfg := engine.RunConfig{
		Inputs:   map[string]ir.Value{"a": ir.Int(7)},
		MaxSteps: 50,
	}
	written, st := runAndSave(t, s, "run-1", testutil.SumGraph(), cfg)

	if written.Seq != 1 {
		t.Errorf("Seq = %d, want 1", written.Seq)
	}
	if written.GraphHash == "" || written.TraceHash == "" {
		t.Fatal("WriteRun did not fill digests")
	}

	got, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if !reflect.DeepEqual(got, written) {
		t.Errorf("ReadRun() = %+v\nwant %+v", got, written)
	}
	if got.Status != engine.StatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if got.Return != ir.Int(17) {
		t.Errorf("Return = %v, want 17", got.Return)
	}

	trace, err := s.ReadTrace(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	if !reflect.DeepEqual(trace, st.Trace()) {
		t.Errorf("ReadTrace() differs from engine trace\ngot  %+v\nwant %+v", trace, st.Trace())
	}
	hash, err := ir.TraceHash(trace)
	if err != nil {
		t.Fatal(err)
	}
	if hash != got.TraceHash {
		t.Errorf("reloaded trace hash %s, recorded %s", hash, got.TraceHash)
	}
}

func TestWriteRun_MemoryAndSeed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	cfg := engine.RunConfig{
		Memory:  map[int64]ir.Value{2: ir.Text("seeded")},
		OneShot: true,
	}
	written, st := runAndSave(t, s, "mem", testutil.MemoryGraph(2), cfg)

	if written.Return != ir.Text("seeded") {
		t.Errorf("Return = %v, want seeded", written.Return)
	}

	got, err := s.ReadRun(ctx, "mem")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if !reflect.DeepEqual(got.Config, cfg) {
		t.Errorf("Config = %+v, want %+v", got.Config, cfg)
	}

	cells, err := s.ReadMemory(ctx, "mem")
	if err != nil {
		t.Fatalf("ReadMemory() failed: %v", err)
	}
	if !reflect.DeepEqual(cells, st.Memory()) {
		t.Errorf("ReadMemory() = %+v, want %+v", cells, st.Memory())
	}

	trace, err := s.ReadTrace(ctx, "mem")
	if err != nil {
		t.Fatalf("ReadTrace() failed: %v", err)
	}
	var writes []ir.MemoryWrite
	for _, rec := range trace {
		writes = append(writes, rec.Writes...)
	}
	want := []ir.MemoryWrite{{Node: "st", Address: 1, Value: ir.Int(42)}}
	if !reflect.DeepEqual(writes, want) {
		t.Errorf("writes = %+v, want %+v", writes, want)
	}
}

func TestWriteRun_StuckRunHasNoReturn(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	written, _ := runAndSave(t, s, "stuck", testutil.MemoryGraph(2), engine.RunConfig{OneShot: true})
	if written.Status != engine.StatusStuck {
		t.Fatalf("Status = %v, want stuck", written.Status)
	}

	got, err := s.ReadRun(ctx, "stuck")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if got.Return != nil {
		t.Errorf("Return = %v, want none", got.Return)
	}
	if got.LimitReached {
		t.Error("LimitReached set for a run that ran dry")
	}
}

func TestWriteRun_LimitReached(t *testing.T) {
	s := createTestStore(t)

	written, _ := runAndSave(t, s, "bounded", testutil.MemoryGraph(2), engine.RunConfig{MaxSteps: 6})
	if !written.LimitReached || written.Steps != 6 {
		t.Errorf("LimitReached=%v Steps=%d, want true 6", written.LimitReached, written.Steps)
	}
}

func TestWriteRun_DuplicateIDFails(t *testing.T) {
	s := createTestStore(t)
	runAndSave(t, s, "dup", testutil.SumGraph(), engine.RunConfig{})

	st, err := engine.New(testutil.SumGraph(), nil)
	if err != nil {
		t.Fatal(err)
	}
	out, _ := st.Run(10)
	if _, err := s.SaveRun(context.Background(), "dup", st, out, engine.RunConfig{}); err == nil {
		t.Error("second SaveRun with the same id succeeded")
	}

	runs, err := s.ListRuns(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRuns() = %d runs, want 1 (failed write must roll back)", len(runs))
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadRun(context.Background(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadRun() error = %v, want sql.ErrNoRows", err)
	}
	_, err = s.LatestRun(context.Background())
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("LatestRun() error = %v, want sql.ErrNoRows", err)
	}
}
