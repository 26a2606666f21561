package repair

import (
	"context"

	"repairstate/internal/ring"
)

// RangeReplicas is one owned token range and the replicas that own it.
type RangeReplicas struct {
	Range    ring.TokenRange
	Replicas ring.NodeSet
}

// ReplicationState reports the current ownership of a table's token ranges.
// Implementations must be safe for concurrent use.
type ReplicationState interface {
	// TokenRangeToReplicas returns the live ownership of table ordered by
	// range start. An empty result is valid.
	TokenRangeToReplicas(ctx context.Context, table TableReference) ([]RangeReplicas, error)
}

// HistoryProvider streams the repair history of a table.
// Implementations must be safe for concurrent use.
type HistoryProvider interface {
	// Iterate returns the entries of table completed within [from, to],
	// newest first. A from of Unrepaired leaves the lower bound open.
	// Entries rejected by accept may be skipped by the provider.
	Iterate(ctx context.Context, table TableReference, to, from int64, accept func(Entry) bool) (EntryIterator, error)
}

// EntryIterator is a pull iterator over history entries. Callers must call
// Close when done, whether or not the iterator was exhausted.
type EntryIterator interface {
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}
