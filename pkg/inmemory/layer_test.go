package inmemory

import (
	"testing"

	pverrors "github.com/pagevault/pageserver/pkg/errors"
	"github.com/pagevault/pageserver/pkg/types"
)

func key(b byte) types.Key {
	var k types.Key
	k[0] = b
	return k
}

func TestLayer_PutGet_NewestFirst(t *testing.T) {
	l := New(1, 1<<20)

	k := key(1)
	if err := l.Put(k, 1, []byte("v1")); err != nil {
		t.Fatalf("Put lsn 1 failed: %v", err)
	}
	if err := l.Put(k, 2, []byte("v2")); err != nil {
		t.Fatalf("Put lsn 2 failed: %v", err)
	}
	if err := l.Put(k, 3, []byte("v3")); err != nil {
		t.Fatalf("Put lsn 3 failed: %v", err)
	}

	got := l.Get(k, 3)
	want := []string{"v3", "v2", "v1"}
	if len(got) != len(want) {
		t.Fatalf("Get returned %d entries, want %d", len(got), len(want))
	}
	for i, w := range want {
		if string(got[i]) != w {
			t.Errorf("Get[%d] = %q, want %q", i, got[i], w)
		}
	}
}

func TestLayer_Get_RespectsLsnCeiling(t *testing.T) {
	l := New(1, 1<<20)
	k := key(1)
	l.Put(k, 1, []byte("v1"))
	l.Put(k, 5, []byte("v5"))

	got := l.Get(k, 3)
	if len(got) != 1 || string(got[0]) != "v1" {
		t.Fatalf("Get(lsn=3) = %v, want only v1", got)
	}
}

func TestLayer_Put_DuplicateKeyLsn(t *testing.T) {
	l := New(1, 1<<20)
	k := key(1)
	if err := l.Put(k, 1, []byte("v1")); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	err := l.Put(k, 1, []byte("v1-again"))
	if _, ok := err.(*pverrors.DuplicateKeyError); !ok {
		t.Fatalf("Put duplicate (key,lsn) = %v, want DuplicateKeyError", err)
	}
}

func TestLayer_Put_AfterFreeze(t *testing.T) {
	l := New(1, 1<<20)
	l.Freeze()

	err := l.Put(key(1), 1, []byte("v1"))
	if _, ok := err.(*pverrors.FrozenLayerError); !ok {
		t.Fatalf("Put after Freeze = %v, want FrozenLayerError", err)
	}
}

func TestLayer_Freeze_Idempotent(t *testing.T) {
	l := New(1, 1<<20)
	l.Freeze()
	l.Freeze()
	if !l.IsFrozen() {
		t.Fatalf("expected layer to remain frozen")
	}
}

func TestLayer_Put_ExceedsBudget(t *testing.T) {
	l := New(1, 4)
	if err := l.Put(key(1), 1, []byte("abcd")); err != nil {
		t.Fatalf("Put within budget failed: %v", err)
	}
	err := l.Put(key(2), 2, []byte("e"))
	if _, ok := err.(*pverrors.LayerFullError); !ok {
		t.Fatalf("Put over budget = %v, want LayerFullError", err)
	}
}

func TestLayer_Get_UnknownKey(t *testing.T) {
	l := New(1, 1<<20)
	if got := l.Get(key(9), 100); got != nil {
		t.Fatalf("Get unknown key = %v, want nil", got)
	}
}

func TestLayer_Keys_SortedAndDeduped(t *testing.T) {
	l := New(1, 1<<20)
	l.Put(key(3), 1, []byte("a"))
	l.Put(key(1), 1, []byte("b"))
	l.Put(key(1), 2, []byte("c"))
	l.Put(key(2), 1, []byte("d"))

	keys := l.Keys()
	if len(keys) != 3 {
		t.Fatalf("Keys() len = %d, want 3", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if !keys[i-1].Less(keys[i]) {
			t.Fatalf("Keys() not sorted ascending at index %d", i)
		}
	}
}

func TestLayer_AllForKey_AscendingLsn(t *testing.T) {
	l := New(1, 1<<20)
	k := key(1)
	l.Put(k, 3, []byte("c"))
	l.Put(k, 1, []byte("a"))
	l.Put(k, 2, []byte("b"))

	all := l.AllForKey(k)
	if len(all) != 3 {
		t.Fatalf("AllForKey len = %d, want 3", len(all))
	}
	for i, want := range []types.Lsn{1, 2, 3} {
		if all[i].Lsn != want {
			t.Errorf("AllForKey[%d].Lsn = %d, want %d", i, all[i].Lsn, want)
		}
	}
}

func TestLayer_SizeBytes_TracksPuts(t *testing.T) {
	l := New(1, 1<<20)
	l.Put(key(1), 1, []byte("abc"))
	l.Put(key(2), 1, []byte("de"))
	if got := l.SizeBytes(); got != 5 {
		t.Fatalf("SizeBytes() = %d, want 5", got)
	}
}
