package tenant

import (
	"github.com/cockroachdb/errors"

	"github.com/pagevault/pageserver/internal/metadata"
)

// MergeLocalRemoteMetadata picks the authoritative metadata between a
// locally persisted copy and one downloaded from remote storage, and
// reports whether the pick was the local one.
//
// Local is updated first on every flush, so local strictly ahead of
// remote is the ordinary "crashed before the upload finished" case.
// Remote strictly ahead of local in either dimension means some other
// writer touched this timeline's remote state after our last flush,
// which should not happen under this store's single-writer-per-tenant
// model; that combination is treated as split-brain and rejected.
func MergeLocalRemoteMetadata(local, remote *metadata.Metadata) (picked *metadata.Metadata, isLocal bool, err error) {
	switch {
	case local == nil && remote == nil:
		return nil, false, errors.New("tenant: no local or remote metadata to merge")
	case local != nil && remote == nil:
		return local, true, nil
	case local == nil && remote != nil:
		return remote, false, nil
	}

	consistentCmp := local.DiskConsistentLsn.Compare(remote.DiskConsistentLsn)
	gcCutoffCmp := local.LatestGcCutoffLsn.Compare(remote.LatestGcCutoffLsn)

	switch {
	case consistentCmp >= 0 && gcCutoffCmp >= 0:
		return local, true, nil
	default:
		return nil, false, errors.Newf(
			"tenant: remote metadata appears to be ahead of local metadata: local=%+v remote=%+v",
			local, remote)
	}
}
