package repair

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repairstate/internal/clock"
	"repairstate/internal/ring"
)

const now int64 = 1_000_000

var (
	testTable = TableReference{Keyspace: "ks", Table: "tb"}

	nodeA = ring.Node{ID: "a", Addr: "10.0.0.1"}
	nodeB = ring.Node{ID: "b", Addr: "10.0.0.2"}
	nodeC = ring.Node{ID: "c", Addr: "10.0.0.3"}
)

func tr(start, end int64) ring.TokenRange {
	return ring.MustTokenRange(start, end)
}

func replicas(nodes ...ring.Node) ring.NodeSet {
	return ring.NewNodeSet(nodes...)
}

func success(r ring.TokenRange, at int64, set ring.NodeSet) Entry {
	return NewEntry(r, at, set, StatusSuccess)
}

func failed(r ring.TokenRange, at int64, set ring.NodeSet) Entry {
	return NewEntry(r, at, set, StatusFailed)
}

// MockReplicationState is a mock implementation of ReplicationState
type MockReplicationState struct {
	mock.Mock
}

func (m *MockReplicationState) TokenRangeToReplicas(ctx context.Context, table TableReference) ([]RangeReplicas, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RangeReplicas), args.Error(1)
}

// MockHistoryProvider is a mock implementation of HistoryProvider
type MockHistoryProvider struct {
	mock.Mock
}

func (m *MockHistoryProvider) Iterate(ctx context.Context, table TableReference, to, from int64, accept func(Entry) bool) (EntryIterator, error) {
	args := m.Called(ctx, table, to, from, accept)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(EntryIterator), args.Error(1)
}

// staticReplication returns a fixed ownership.
type staticReplication []RangeReplicas

func (s staticReplication) TokenRangeToReplicas(context.Context, TableReference) ([]RangeReplicas, error) {
	out := make([]RangeReplicas, len(s))
	copy(out, s)
	return out, nil
}

// staticHistory serves a fixed set of entries newest first. Unless filter is
// set it ignores the time bounds and the accept function.
type staticHistory struct {
	entries []Entry
	filter  bool

	calls int
	last  *sliceIterator
}

func (h *staticHistory) Iterate(_ context.Context, _ TableReference, to, from int64, accept func(Entry) bool) (EntryIterator, error) {
	h.calls++
	entries := make([]Entry, 0, len(h.entries))
	for _, e := range h.entries {
		if h.filter && (e.CompletedAt > to || e.CompletedAt < from || !accept(e)) {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CompletedAt > entries[j].CompletedAt
	})
	h.last = &sliceIterator{entries: entries}
	return h.last, nil
}

// sliceIterator walks a slice, then reports err.
type sliceIterator struct {
	entries  []Entry
	pos      int
	err      error
	closeErr error
	closed   bool
}

func (it *sliceIterator) Next() bool {
	if it.closed || it.pos >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Entry() Entry {
	return it.entries[it.pos-1]
}

func (it *sliceIterator) Err() error {
	if it.pos >= len(it.entries) {
		return it.err
	}
	return nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	return it.closeErr
}

func newTestFactory(t *testing.T, owned []RangeReplicas, history HistoryProvider, g Granularity) *StateFactory {
	return NewStateFactory(staticReplication(owned), history, FactoryOptions{
		Granularity: g,
		Clock:       clock.NewManual(time.UnixMilli(now)),
		Logger:      zaptest.NewLogger(t),
	})
}

// snapshotOf builds a previous snapshot from states.
func snapshotOf(states ...VnodeState) *Snapshot {
	s := NewSnapshot(NewVnodeStates(states), GroupByReplicas(states), now-1)
	return &s
}

func requireInvariantPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok, "expected an invariant panic")
		var ie *InvariantError
		require.ErrorAs(t, err, &ie)
	}()
	fn()
}
