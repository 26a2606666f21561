// Package repair computes the repair state of a table's token ranges.
//
// A StateFactory reconciles the current range ownership of a table, a
// newest-first scan of its repair history and the previously computed
// Snapshot into a new Snapshot. States are kept either per vnode or per
// sub-range, in which case a vnode is split wherever parts of it were
// repaired at different times.
//
// The package performs no I/O of its own; ownership and history come from
// the ReplicationState and HistoryProvider collaborators.
package repair
