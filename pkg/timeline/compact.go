package timeline

import "context"

// Compact is a minimal stand-in for full delta-chain compaction
// (rewriting overlapping delta layers into fewer, wider image/delta
// layers so a reconstruct path stays short). The layout and scheduling
// of real compaction is left unspecified; this just force-flushes any
// open in-memory layer, which is the one piece of compaction's
// job that every caller actually depends on today.
func (t *Timeline) Compact(ctx context.Context) error {
	return t.FreezeAndFlush(ctx)
}
