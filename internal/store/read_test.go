package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/roach88/dfsim/internal/engine"
	"github.com/roach88/dfsim/internal/ir"
	"github.com/roach88/dfsim/internal/queryir"
	"github.com/roach88/dfsim/internal/testutil"
)

func TestListRuns_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runAndSave(t, s, "b", testutil.SumGraph(), engine.RunConfig{})
	runAndSave(t, s, "a", testutil.BranchGraph(), engine.RunConfig{})
	runAndSave(t, s, "c", testutil.SumGraph(), engine.RunConfig{})

	runs, err := s.ListRuns(ctx, "")
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if want := []string{"b", "a", "c"}; !equalStrings(ids, want) {
		t.Errorf("ListRuns() ids = %v, want %v (write order)", ids, want)
	}

	sums, err := s.ListRuns(ctx, "sum")
	if err != nil {
		t.Fatalf("ListRuns(sum) failed: %v", err)
	}
	if len(sums) != 2 {
		t.Errorf("ListRuns(sum) = %d runs, want 2", len(sums))
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if latest.ID != "c" || latest.Seq != 3 {
		t.Errorf("LatestRun() = %s seq %d, want c seq 3", latest.ID, latest.Seq)
	}
}

func TestListRuns_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)
	runs, err := s.ListRuns(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("ListRuns() = %#v, want empty slice", runs)
	}
}

func TestQueryFirings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, st := runAndSave(t, s, "loop", testutil.CounterLoopGraph(3), engine.RunConfig{})

	tests := []struct {
		name string
		pred queryir.Predicate
	}{
		{"carry", queryir.NodeEquals{Node: "c"}},
		{"steers", queryir.KindEquals{Kind: ir.KindFalseSteer}},
		{"stalls", queryir.Produced{Value: false}},
		{"window", queryir.And{Predicates: []queryir.Predicate{
			queryir.StepRange{From: 3, To: 6},
			queryir.KindEquals{Kind: ir.KindBinaryOp},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.QueryFirings(ctx, queryir.Select{Run: "loop", Filter: tt.pred})
			if err != nil {
				t.Fatalf("QueryFirings() failed: %v", err)
			}
			want := st.Firings(tt.pred)
			if len(got) != len(want) {
				t.Fatalf("QueryFirings() = %d firings, live trace has %d", len(got), len(want))
			}
			for i := range want {
				if got[i].Step != want[i].Step || got[i].Node != want[i].Node || got[i].Output != want[i].Output {
					t.Errorf("firing %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestQueryFirings_Limit(t *testing.T) {
	s := createTestStore(t)
	runAndSave(t, s, "loop", testutil.CounterLoopGraph(3), engine.RunConfig{})

	got, err := s.QueryFirings(context.Background(), queryir.Select{Run: "loop", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("QueryFirings() = %d firings, want 2", len(got))
	}
}

func TestQueryFirings_InvalidQuery(t *testing.T) {
	s := createTestStore(t)
	if _, err := s.QueryFirings(context.Background(), queryir.Select{}); err == nil {
		t.Error("QueryFirings() accepted a query without a run id")
	}
}

func TestDeleteRun_Cascades(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	runAndSave(t, s, "gone", testutil.MemoryGraph(1), engine.RunConfig{})

	if err := s.DeleteRun(ctx, "gone"); err != nil {
		t.Fatalf("DeleteRun() failed: %v", err)
	}
	for _, table := range []string{"steps", "firings", "memory_writes", "memory_cells"} {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after delete", table, n)
		}
	}

	if err := s.DeleteRun(ctx, "gone"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second DeleteRun() = %v, want sql.ErrNoRows", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
