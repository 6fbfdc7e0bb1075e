package tenant

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/pagevault/pageserver/internal/ids"
	"github.com/pagevault/pageserver/internal/metadata"
	pverrors "github.com/pagevault/pageserver/pkg/errors"
)

// LoadEntry is one timeline's on-disk metadata as discovered while
// scanning a tenant's timelines directory, input to TreeSortTimelines.
type LoadEntry struct {
	TimelineID ids.TimelineID
	Metadata   *metadata.Metadata
}

// TreeSortTimelines orders entries so that every timeline's ancestor
// appears before it, working from a queue of ancestor-less ("now")
// entries and a pending map of ancestor id -> its waiting children:
// popping a ready entry appends its own children to the queue. Any
// entries left in the pending map once the queue drains name
// timelines whose ancestor was never present in the input, and fail
// together as one MissingAncestorsError.
func TreeSortTimelines(entries []LoadEntry) ([]LoadEntry, error) {
	result := make([]LoadEntry, 0, len(entries))
	now := make([]LoadEntry, 0, len(entries))
	later := make(map[ids.TimelineID][]LoadEntry)

	for _, e := range entries {
		if e.Metadata.HasAncestor {
			ancestorID := ids.TimelineID(e.Metadata.AncestorTimelineID)
			later[ancestorID] = append(later[ancestorID], e)
		} else {
			now = append(now, e)
		}
	}

	// Deterministic popping order: sort the initial root set so two
	// runs over the same input produce the same load order.
	sortEntries(now)

	for len(now) > 0 {
		e := now[len(now)-1]
		now = now[:len(now)-1]
		result = append(result, e)
		if children, ok := later[e.TimelineID]; ok {
			delete(later, e.TimelineID)
			sortEntries(children)
			now = append(now, children...)
		}
	}

	if len(later) > 0 {
		orphanAncestors := maps.Keys(later)
		slices.Sort(orphanAncestors)
		var orphans []string
		for _, ancestorID := range orphanAncestors {
			for _, e := range later[ancestorID] {
				orphans = append(orphans, string(e.TimelineID))
			}
		}
		slices.Sort(orphans)
		return nil, &pverrors.MissingAncestorsError{TimelineIDs: orphans}
	}

	return result, nil
}

func sortEntries(entries []LoadEntry) {
	slices.SortFunc(entries, func(a, b LoadEntry) bool {
		return a.TimelineID < b.TimelineID
	})
}
