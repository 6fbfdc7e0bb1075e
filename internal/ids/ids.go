// Package ids generates the identifiers a tenant and its timelines
// are keyed by: time-ordered UUIDv7 strings, the same generator the
// rest of this codebase's lineage uses for record keys.
package ids

import "github.com/google/uuid"

// TenantID identifies one tenant.
type TenantID string

// TimelineID identifies one timeline within a tenant.
type TimelineID string

// NewTenantID generates a fresh, roughly time-ordered tenant id.
func NewTenantID() TenantID {
	return TenantID(generate())
}

// NewTimelineID generates a fresh, roughly time-ordered timeline id.
func NewTimelineID() TimelineID {
	return TimelineID(generate())
}

func generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the entropy source is broken; there is
		// no sane recovery, and every caller needs an id to proceed.
		panic(err)
	}
	return id.String()
}
