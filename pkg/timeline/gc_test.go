package timeline

import (
	"context"
	"testing"

	"github.com/pagevault/pageserver/internal/record"
)

func TestTimeline_Gc_DropsLayersBelowCutoff(t *testing.T) {
	tl := newTestTimeline(t, 1<<20, nil)
	ctx := context.Background()

	if err := tl.Put(ctx, testKey(1), 1, &record.Delta{Kind: record.KindImage, Fields: map[string]interface{}{"a": 1.0}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tl.FreezeAndFlush(ctx); err != nil {
		t.Fatalf("FreezeAndFlush failed: %v", err)
	}

	if err := tl.Put(ctx, testKey(2), 10, &record.Delta{Kind: record.KindImage, Fields: map[string]interface{}{"b": 2.0}}); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if err := tl.FreezeAndFlush(ctx); err != nil {
		t.Fatalf("second FreezeAndFlush failed: %v", err)
	}

	result, err := tl.Gc(ctx, 5)
	if err != nil {
		t.Fatalf("Gc failed: %v", err)
	}
	if result.LayersRemoved != 1 {
		t.Fatalf("LayersRemoved = %d, want 1", result.LayersRemoved)
	}

	droppedOut, err := tl.GetPage(ctx, testKey(1), 1)
	if err != nil {
		t.Fatalf("GetPage for key dropped by gc failed: %v", err)
	}
	droppedImg, err := record.Decode(droppedOut)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(droppedImg.Fields) != 0 {
		t.Fatalf("Fields = %v, want empty after the only layer covering key 1 was gc'd", droppedImg.Fields)
	}

	out, err := tl.GetPage(ctx, testKey(2), 10)
	if err != nil {
		t.Fatalf("GetPage for retained key failed: %v", err)
	}
	img, err := record.Decode(out)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if img.Fields["b"] != 2.0 {
		t.Fatalf("Fields[b] = %v, want 2.0", img.Fields["b"])
	}
}

func TestTimeline_Gc_NoLayersBelowCutoff_IsNoOp(t *testing.T) {
	tl := newTestTimeline(t, 1<<20, nil)
	ctx := context.Background()

	if err := tl.Put(ctx, testKey(1), 1, &record.Delta{Kind: record.KindImage, Fields: map[string]interface{}{"a": 1.0}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tl.FreezeAndFlush(ctx); err != nil {
		t.Fatalf("FreezeAndFlush failed: %v", err)
	}

	result, err := tl.Gc(ctx, 0)
	if err != nil {
		t.Fatalf("Gc failed: %v", err)
	}
	if result.LayersRemoved != 0 {
		t.Fatalf("LayersRemoved = %d, want 0", result.LayersRemoved)
	}
}
