package historic

import (
	"errors"
	"testing"

	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/types"
)

func keyAt(b byte) types.Key {
	var k types.Key
	k[0] = b
	return k
}

func fullRange() types.KeyRange {
	return types.KeyRange{Lo: types.MinKey, Hi: types.MaxKey}
}

func TestSet_GetReconstructPath_ImageOnly(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Image, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 10, Hi: 11}, FileID: "img-10"},
	})
	if err != nil {
		t.Fatalf("MakeHistoric failed: %v", err)
	}

	path := next.GetReconstructPath(keyAt(5), 20)
	if len(path) != 1 || path[0].FileID != "img-10" {
		t.Fatalf("path = %v, want single image layer", path)
	}
}

func TestSet_GetReconstructPath_DeltaChainToImage(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Image, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 10, Hi: 11}, FileID: "img-10"},
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 11, Hi: 20}, FileID: "delta-11-20"},
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 20, Hi: 30}, FileID: "delta-20-30"},
	})
	if err != nil {
		t.Fatalf("MakeHistoric failed: %v", err)
	}

	path := next.GetReconstructPath(keyAt(5), 25)
	wantOrder := []string{"delta-20-30", "delta-11-20", "img-10"}
	if len(path) != len(wantOrder) {
		t.Fatalf("path length = %d, want %d: %v", len(path), len(wantOrder), path)
	}
	for i, want := range wantOrder {
		if path[i].FileID != want {
			t.Errorf("path[%d] = %s, want %s", i, path[i].FileID, want)
		}
	}
}

func TestSet_GetReconstructPath_NoImage(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 11, Hi: 20}, FileID: "delta-11-20"},
	})
	if err != nil {
		t.Fatalf("MakeHistoric failed: %v", err)
	}

	path := next.GetReconstructPath(keyAt(5), 15)
	if len(path) != 1 || path[0].FileID != "delta-11-20" {
		t.Fatalf("path = %v, want single delta layer with no base image", path)
	}
}

func TestSet_MakeHistoric_RejectsOverlap(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 10, Hi: 20}, FileID: "d1"},
	})
	if err != nil {
		t.Fatalf("first MakeHistoric failed: %v", err)
	}

	_, err = next.MakeHistoric([]*Descriptor{
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 15, Hi: 25}, FileID: "d2"},
	})
	var overlapErr *pverrors.LayerOverlapError
	if !errors.As(err, &overlapErr) {
		t.Fatalf("overlapping MakeHistoric = %v, want LayerOverlapError", err)
	}
}

func TestSet_MakeHistoric_RejectsOverlapAcrossKinds(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Image, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 10, Hi: 20}, FileID: "img"},
	})
	if err != nil {
		t.Fatalf("first MakeHistoric failed: %v", err)
	}

	_, err = next.MakeHistoric([]*Descriptor{
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 15, Hi: 25}, FileID: "delta"},
	})
	var overlapErr *pverrors.LayerOverlapError
	if !errors.As(err, &overlapErr) {
		t.Fatalf("overlapping Image/Delta MakeHistoric = %v, want LayerOverlapError", err)
	}
}

func TestSet_MakeHistoric_COW_OldSnapshotUnaffected(t *testing.T) {
	s := New()
	first, err := s.MakeHistoric([]*Descriptor{
		{Kind: Image, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 1, Hi: 2}, FileID: "img-1"},
	})
	if err != nil {
		t.Fatalf("first MakeHistoric failed: %v", err)
	}

	before := first.Descriptors()

	_, err = first.MakeHistoric([]*Descriptor{
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 2, Hi: 5}, FileID: "delta-2-5"},
	})
	if err != nil {
		t.Fatalf("second MakeHistoric failed: %v", err)
	}

	after := first.Descriptors()
	if len(after) != len(before) {
		t.Fatalf("original set mutated: had %d descriptors, now %d", len(before), len(after))
	}
}

func TestSet_GetReconstructPath_KeyOutOfRange(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Image, KeyRange: types.KeyRange{Lo: keyAt(10), Hi: keyAt(20)}, LsnRange: types.LsnRange{Lo: 1, Hi: 2}, FileID: "img"},
	})
	if err != nil {
		t.Fatalf("MakeHistoric failed: %v", err)
	}

	path := next.GetReconstructPath(keyAt(5), 100)
	if len(path) != 0 {
		t.Fatalf("GetReconstructPath for out-of-range key = %v, want empty", path)
	}
}

func TestSet_Retain_DropsBelowCutoff(t *testing.T) {
	s := New()
	next, err := s.MakeHistoric([]*Descriptor{
		{Kind: Image, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 1, Hi: 2}, FileID: "img-1"},
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 2, Hi: 10}, FileID: "delta-2-10"},
		{Kind: Delta, KeyRange: fullRange(), LsnRange: types.LsnRange{Lo: 10, Hi: 50}, FileID: "delta-10-50"},
	})
	if err != nil {
		t.Fatalf("MakeHistoric failed: %v", err)
	}

	retained, dropped := next.Retain(func(d *Descriptor) bool {
		return d.LsnRange.Hi > 10
	})

	if len(dropped) != 2 {
		t.Fatalf("dropped = %v, want 2 layers below cutoff", dropped)
	}
	remaining := retained.Descriptors()
	if len(remaining) != 1 || remaining[0].FileID != "delta-10-50" {
		t.Fatalf("retained = %v, want only delta-10-50", remaining)
	}

	// Original generation is untouched.
	if len(next.Descriptors()) != 3 {
		t.Fatalf("original set mutated by Retain")
	}
}
