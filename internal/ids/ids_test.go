package ids

import "testing"

func TestNewTenantID_Unique(t *testing.T) {
	a := NewTenantID()
	b := NewTenantID()
	if a == b {
		t.Fatalf("expected distinct tenant ids, got two copies of %q", a)
	}
	if a == "" {
		t.Fatalf("expected a non-empty tenant id")
	}
}

func TestNewTimelineID_Unique(t *testing.T) {
	a := NewTimelineID()
	b := NewTimelineID()
	if a == b {
		t.Fatalf("expected distinct timeline ids, got two copies of %q", a)
	}
}
