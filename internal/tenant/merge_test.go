package tenant

import (
	"testing"

	"github.com/pagevault/pageserver/internal/metadata"
)

func TestMergeLocalRemoteMetadata_BothMissingFails(t *testing.T) {
	if _, _, err := MergeLocalRemoteMetadata(nil, nil); err == nil {
		t.Fatalf("expected error when both local and remote are nil")
	}
}

func TestMergeLocalRemoteMetadata_OnlyLocal(t *testing.T) {
	local := &metadata.Metadata{DiskConsistentLsn: 10}
	picked, isLocal, err := MergeLocalRemoteMetadata(local, nil)
	if err != nil {
		t.Fatalf("MergeLocalRemoteMetadata failed: %v", err)
	}
	if !isLocal || picked != local {
		t.Fatalf("expected local picked, got picked=%v isLocal=%v", picked, isLocal)
	}
}

func TestMergeLocalRemoteMetadata_OnlyRemote(t *testing.T) {
	remote := &metadata.Metadata{DiskConsistentLsn: 10}
	picked, isLocal, err := MergeLocalRemoteMetadata(nil, remote)
	if err != nil {
		t.Fatalf("MergeLocalRemoteMetadata failed: %v", err)
	}
	if isLocal || picked != remote {
		t.Fatalf("expected remote picked, got picked=%v isLocal=%v", picked, isLocal)
	}
}

func TestMergeLocalRemoteMetadata_LocalDominates(t *testing.T) {
	local := &metadata.Metadata{DiskConsistentLsn: 20, LatestGcCutoffLsn: 5}
	remote := &metadata.Metadata{DiskConsistentLsn: 10, LatestGcCutoffLsn: 5}
	picked, isLocal, err := MergeLocalRemoteMetadata(local, remote)
	if err != nil {
		t.Fatalf("MergeLocalRemoteMetadata failed: %v", err)
	}
	if !isLocal || picked != local {
		t.Fatalf("expected local to dominate, got picked=%v isLocal=%v", picked, isLocal)
	}
}

func TestMergeLocalRemoteMetadata_Tie(t *testing.T) {
	local := &metadata.Metadata{DiskConsistentLsn: 10, LatestGcCutoffLsn: 5}
	remote := &metadata.Metadata{DiskConsistentLsn: 10, LatestGcCutoffLsn: 5}
	picked, isLocal, err := MergeLocalRemoteMetadata(local, remote)
	if err != nil {
		t.Fatalf("MergeLocalRemoteMetadata failed: %v", err)
	}
	if !isLocal || picked != local {
		t.Fatalf("expected local on a tie, got picked=%v isLocal=%v", picked, isLocal)
	}
}

func TestMergeLocalRemoteMetadata_RemoteAheadFails(t *testing.T) {
	local := &metadata.Metadata{DiskConsistentLsn: 5, LatestGcCutoffLsn: 5}
	remote := &metadata.Metadata{DiskConsistentLsn: 10, LatestGcCutoffLsn: 5}
	if _, _, err := MergeLocalRemoteMetadata(local, remote); err == nil {
		t.Fatalf("expected error when remote is ahead of local")
	}
}

func TestMergeLocalRemoteMetadata_MixedAheadFails(t *testing.T) {
	local := &metadata.Metadata{DiskConsistentLsn: 20, LatestGcCutoffLsn: 1}
	remote := &metadata.Metadata{DiskConsistentLsn: 10, LatestGcCutoffLsn: 5}
	if _, _, err := MergeLocalRemoteMetadata(local, remote); err == nil {
		t.Fatalf("expected error when local and remote each lead in a different dimension")
	}
}
