// Package errors holds the tagged error types the storage layer
// returns for expected, named failure conditions. Callers type-switch
// or errors.As on these; anything unexpected is wrapped with
// github.com/cockroachdb/errors further up the call stack instead of
// being added here.
package errors

import (
	"fmt"

	"github.com/pagevault/pageserver/pkg/types"
)

// Kind classifies a tagged error along the five axes named for the
// store's error handling design: transient conditions a caller should
// retry, client misuse, on-disk/invariant integrity breaks, operations
// rejected by a state machine, and fatal conditions that move a
// tenant or timeline to Broken.
type Kind int

const (
	KindClient Kind = iota
	KindIntegrity
	KindState
	KindFatal
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindIntegrity:
		return "integrity"
	case KindState:
		return "state"
	case KindFatal:
		return "fatal"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// TenantNotFoundError is returned when an operation names a tenant id
// the page server has no record of.
type TenantNotFoundError struct {
	TenantID string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenant %q not found", e.TenantID)
}

func (e *TenantNotFoundError) Kind() Kind { return KindClient }

// TenantAlreadyExistsError is returned by tenant creation when the id
// is already attached or loading.
type TenantAlreadyExistsError struct {
	TenantID string
}

func (e *TenantAlreadyExistsError) Error() string {
	return fmt.Sprintf("tenant %q already exists", e.TenantID)
}

func (e *TenantAlreadyExistsError) Kind() Kind { return KindClient }

// TimelineNotFoundError is returned when an operation names a timeline
// id that does not exist under its tenant.
type TimelineNotFoundError struct {
	TimelineID string
}

func (e *TimelineNotFoundError) Error() string {
	return fmt.Sprintf("timeline %q not found", e.TimelineID)
}

func (e *TimelineNotFoundError) Kind() Kind { return KindClient }

// TimelineAlreadyExistsError is returned by timeline creation racing
// against an in-flight or completed creation of the same id.
type TimelineAlreadyExistsError struct {
	TimelineID string
}

func (e *TimelineAlreadyExistsError) Error() string {
	return fmt.Sprintf("timeline %q already exists", e.TimelineID)
}

func (e *TimelineAlreadyExistsError) Kind() Kind { return KindClient }

// LayerNotFoundError is returned when reconstruction needs a layer
// that the layer map has no record of, typically after a racing
// compaction or GC dropped it.
type LayerNotFoundError struct {
	Key types.Key
	Lsn types.Lsn
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("no layer covers key %x at lsn %d", e.Key, e.Lsn)
}

func (e *LayerNotFoundError) Kind() Kind { return KindIntegrity }

// NoReconstructDataError describes a reconstruct path for a key that
// bottoms out without hitting an image layer: the keyspace has no
// base image to replay deltas onto. Timeline.GetPage does not return
// it; a key with no image to start from is reconstructed from an
// empty base image.
type NoReconstructDataError struct {
	Key types.Key
}

func (e *NoReconstructDataError) Error() string {
	return fmt.Sprintf("no reconstruct data for key %x: missing base image", e.Key)
}

func (e *NoReconstructDataError) Kind() Kind { return KindIntegrity }

// DuplicateKeyError is returned by an in-memory layer's put when a
// record for the same (key, lsn) is already present.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key violation: key %q already exists in unique index", e.Key)
}

func (e *DuplicateKeyError) Kind() Kind { return KindClient }

// LayerOverlapError is returned when inserting a historic layer would
// violate the no-overlap invariant: two layers with overlapping LSN
// ranges covering the same key.
type LayerOverlapError struct {
	NewRange      types.KeyRange
	ExistingRange types.KeyRange
}

func (e *LayerOverlapError) Error() string {
	return fmt.Sprintf("layer range %v overlaps existing layer range %v in an overlapping lsn range", e.NewRange, e.ExistingRange)
}

func (e *LayerOverlapError) Kind() Kind { return KindIntegrity }

// InvalidStateTransitionError is returned when a tenant or timeline
// state machine is asked to move to a state unreachable from its
// current one.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %q to %q", e.From, e.To)
}

func (e *InvalidStateTransitionError) Kind() Kind { return KindState }

// GateShutdownError is returned by an LsnGate operation attempted
// after the gate has been shut down.
type GateShutdownError struct {
	Component string
}

func (e *GateShutdownError) Error() string {
	return fmt.Sprintf("%s: lsn gate is shut down", e.Component)
}

func (e *GateShutdownError) Kind() Kind { return KindState }

// FrozenLayerError is returned by an in-memory layer's put once it has
// been frozen. The layer-map writer path guarantees this is
// unreachable, but the layer checks it defensively anyway.
type FrozenLayerError struct{}

func (e *FrozenLayerError) Error() string {
	return "in-memory layer is frozen, no further writes accepted"
}

func (e *FrozenLayerError) Kind() Kind { return KindState }

// LayerFullError is returned when an in-memory layer has exceeded its
// configured size budget and must be frozen before accepting more
// writes.
type LayerFullError struct {
	SizeBytes int64
}

func (e *LayerFullError) Error() string {
	return fmt.Sprintf("in-memory layer full at %d bytes, freeze required", e.SizeBytes)
}

func (e *LayerFullError) Kind() Kind { return KindState }

// AncestorDetachedError is returned when a timeline's ancestor has
// been garbage collected past the point this timeline branched from.
type AncestorDetachedError struct {
	TimelineID  string
	AncestorID  string
	AncestorLsn types.Lsn
	GcCutoffLsn types.Lsn
}

func (e *AncestorDetachedError) Error() string {
	return fmt.Sprintf("timeline %q branched from %q at lsn %d, which is behind the ancestor's gc cutoff %d",
		e.TimelineID, e.AncestorID, e.AncestorLsn, e.GcCutoffLsn)
}

func (e *AncestorDetachedError) Kind() Kind { return KindIntegrity }

// MissingAncestorsError is returned by tree_sort_timelines when one or
// more timelines name an ancestor id that is not itself present in the
// set being sorted.
type MissingAncestorsError struct {
	TimelineIDs []string
}

func (e *MissingAncestorsError) Error() string {
	return fmt.Sprintf("timelines with missing ancestors: %v", e.TimelineIDs)
}

func (e *MissingAncestorsError) Kind() Kind { return KindIntegrity }

// InvalidBranchLsnError is returned when a requested branch point lies
// below the source timeline's effective GC cutoff, so the ancestor
// data the branch would need to read has already been collected.
type InvalidBranchLsnError struct {
	StartLsn   types.Lsn
	CutoffLsn  types.Lsn
}

func (e *InvalidBranchLsnError) Error() string {
	return fmt.Sprintf("invalid branch start lsn %d: below effective cutoff %d", e.StartLsn, e.CutoffLsn)
}

func (e *InvalidBranchLsnError) Kind() Kind { return KindClient }
