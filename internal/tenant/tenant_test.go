package tenant

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/internal/logging"
	"github.com/pagevault/pageserver/internal/metrics"
	"github.com/pagevault/pageserver/internal/record"
	"github.com/pagevault/pageserver/internal/tenantconf"
	"github.com/pagevault/pageserver/pkg/types"
)

func newTestTenant(t *testing.T) *Tenant {
	t.Helper()
	tn := New(Config{
		TenantID: ids.TenantID("tenant-x"),
		RootDir:  t.TempDir(),
		Conf:     tenantconf.Defaults(),
		Metrics:  metrics.NewCollector(nil),
		Logger:   logging.New(),
	})
	return tn
}

func TestTenant_Activate_NoTimelines(t *testing.T) {
	tn := newTestTenant(t)
	if err := tn.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if tn.State() != StateActive {
		t.Fatalf("State() = %v, want Active", tn.State())
	}
}

func TestTenant_SetStopping_OnlyFromActive(t *testing.T) {
	tn := newTestTenant(t)
	if err := tn.SetStopping(); err == nil {
		t.Fatalf("expected SetStopping from Loading to fail")
	}
	if err := tn.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := tn.SetStopping(); err != nil {
		t.Fatalf("SetStopping from Active failed: %v", err)
	}
}

func TestTenant_CreateTimeline_ThenGetAndPut(t *testing.T) {
	tn := newTestTenant(t)
	ctx := context.Background()

	tl, err := tn.CreateTimeline(ctx, ids.TimelineID("tl1"), 0, 150000)
	if err != nil {
		t.Fatalf("CreateTimeline failed: %v", err)
	}
	if tl.State().String() != "Active" {
		t.Fatalf("created timeline state = %v, want Active", tl.State())
	}

	got, err := tn.Get(ids.TimelineID("tl1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != tl {
		t.Fatalf("Get returned a different timeline than CreateTimeline")
	}

	if err := tl.Put(ctx, testKey(1), 1, &record.Delta{Kind: record.KindImage, Fields: map[string]interface{}{"a": 1.0}}); err != nil {
		t.Fatalf("Put on created timeline failed: %v", err)
	}
}

func TestTenant_CreateTimeline_DuplicateFails(t *testing.T) {
	tn := newTestTenant(t)
	ctx := context.Background()

	if _, err := tn.CreateTimeline(ctx, ids.TimelineID("tl1"), 0, 1); err != nil {
		t.Fatalf("first CreateTimeline failed: %v", err)
	}
	if _, err := tn.CreateTimeline(ctx, ids.TimelineID("tl1"), 0, 1); err == nil {
		t.Fatalf("expected second CreateTimeline with same id to fail")
	}
}

func TestTenant_BranchTimeline_RejectsLsnBelowCutoff(t *testing.T) {
	tn := newTestTenant(t)
	ctx := context.Background()

	source, err := tn.CreateTimeline(ctx, ids.TimelineID("source"), 0, 1)
	if err != nil {
		t.Fatalf("CreateTimeline failed: %v", err)
	}
	if err := source.Put(ctx, testKey(1), 10, &record.Delta{Kind: record.KindImage, Fields: map[string]interface{}{"a": 1.0}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := source.FreezeAndFlush(ctx); err != nil {
		t.Fatalf("FreezeAndFlush failed: %v", err)
	}
	if _, err := source.Gc(ctx, 5); err != nil {
		t.Fatalf("Gc failed: %v", err)
	}

	branchDir := filepath.Join(tn.RootDir, "timelines", "branch")
	if _, err := tn.BranchTimeline(ctx, "source", "branch", 1, branchDir); err == nil {
		t.Fatalf("expected branch at lsn below gc cutoff to fail")
	}

	if _, err := tn.BranchTimeline(ctx, "source", "branch", 5, branchDir); err != nil {
		t.Fatalf("expected branch at lsn == gc cutoff to succeed: %v", err)
	}
}

func TestTenant_GcIteration_RetainsChildBranchPoint(t *testing.T) {
	tn := newTestTenant(t)
	ctx := context.Background()

	source, err := tn.CreateTimeline(ctx, ids.TimelineID("source"), 0, 1)
	if err != nil {
		t.Fatalf("CreateTimeline failed: %v", err)
	}
	for i := types.Lsn(1); i <= 100; i++ {
		if err := source.Put(ctx, testKey(byte(i%255)), i, &record.Delta{Kind: record.KindImage, Fields: map[string]interface{}{"a": float64(i)}}); err != nil {
			t.Fatalf("Put failed at lsn %d: %v", i, err)
		}
	}
	if err := source.FreezeAndFlush(ctx); err != nil {
		t.Fatalf("FreezeAndFlush failed: %v", err)
	}

	branchDir := filepath.Join(tn.RootDir, "timelines", "branch")
	if _, err := tn.BranchTimeline(ctx, "source", "branch", 10, branchDir); err != nil {
		t.Fatalf("BranchTimeline failed: %v", err)
	}

	result, err := tn.GcIteration(ctx)
	if err != nil {
		t.Fatalf("GcIteration failed: %v", err)
	}
	sourceResult, ok := result.PerTimeline["source"]
	if !ok {
		t.Fatalf("expected a gc result for source")
	}
	if sourceResult.LayersRemoved != 0 {
		t.Fatalf("source LayersRemoved = %d, want 0: its only layer holds the child's branch point", sourceResult.LayersRemoved)
	}
	if _, ok := result.PerTimeline["branch"]; !ok {
		t.Fatalf("expected a gc result for branch")
	}
}

func testKey(b byte) types.Key {
	var k types.Key
	k[0] = b
	return k
}
