package repair

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"repairstate/internal/clock"
	"repairstate/internal/ring"
)

// FactoryOptions configures a StateFactory. The zero value tracks vnode
// granularity with an unbounded history scan on the system clock.
type FactoryOptions struct {
	Granularity Granularity
	// HistoryLookback bounds how far back history is scanned. Zero means
	// no bound beyond the previous snapshot.
	HistoryLookback time.Duration
	Clock           clock.Clock
	Logger          *zap.Logger
}

// StateFactory calculates repair state snapshots. It holds no mutable state
// and may be used for many tables concurrently.
type StateFactory struct {
	replication ReplicationState
	history     HistoryProvider
	granularity Granularity
	lookback    time.Duration
	clock       clock.Clock
	logger      *zap.Logger
}

// NewStateFactory creates a factory reading ownership from replication and
// repair evidence from history.
func NewStateFactory(replication ReplicationState, history HistoryProvider, opts FactoryOptions) *StateFactory {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &StateFactory{
		replication: replication,
		history:     history,
		granularity: opts.Granularity,
		lookback:    opts.HistoryLookback,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Granularity returns the granularity of the snapshots the factory builds.
func (f *StateFactory) Granularity() Granularity {
	return f.granularity
}

// CalculateNewState reconciles the current ownership of table, its repair
// history and the previous snapshot, if any, into a new snapshot.
//
// Errors from the collaborators are returned as is.
func (f *StateFactory) CalculateNewState(ctx context.Context, table TableReference, previous *Snapshot) (Snapshot, error) {
	now := clock.NowMillis(f.clock)

	owned, err := f.replication.TokenRangeToReplicas(ctx, table)
	if err != nil {
		return Snapshot{}, err
	}

	calc := newCalculation(f.granularity, f.normalize(table, owned))

	from := Unrepaired
	if previous != nil {
		from = previous.LastCompletedAt()
	}
	if f.lookback > 0 {
		from = max(from, now-f.lookback.Milliseconds())
	}
	calc.to, calc.from = now, from

	scanned := 0
	if len(calc.owned) > 0 {
		if scanned, err = f.scan(ctx, table, calc); err != nil {
			return Snapshot{}, err
		}
	}

	var prev []VnodeState
	if previous != nil {
		prev = previous.VnodeStates().states
	}
	states := calc.resolve(prev)
	snapshot := NewSnapshot(states, GroupByReplicas(states.states), now)

	f.logger.Debug("Calculated repair state",
		zap.Stringer("table", table),
		zap.Stringer("granularity", f.granularity),
		zap.Int("owned_ranges", len(calc.owned)),
		zap.Int("entries_scanned", scanned),
		zap.Bool("early_stop", calc.done()),
		zap.Int("states", states.Len()),
		zap.Int64("from", from),
		zap.Int64("last_completed_at", snapshot.LastCompletedAt()))

	return snapshot, nil
}

// scan feeds history into calc until it is exhausted or every owned range
// has been satisfied.
func (f *StateFactory) scan(ctx context.Context, table TableReference, calc *calculation) (int, error) {
	it, err := f.history.Iterate(ctx, table, calc.to, calc.from, calc.accept)
	if err != nil {
		return 0, err
	}

	scanned := 0
	for !calc.done() && it.Next() {
		scanned++
		calc.record(it.Entry())
	}
	if err := it.Err(); err != nil {
		_ = it.Close()
		return scanned, err
	}
	if err := it.Close(); err != nil {
		return scanned, err
	}
	return scanned, nil
}

// normalize orders ownership by range start and drops exact duplicates and
// empty ranges.
func (f *StateFactory) normalize(table TableReference, owned []RangeReplicas) []RangeReplicas {
	out := make([]RangeReplicas, 0, len(owned))
	seen := make(map[ring.TokenRange]bool, len(owned))
	for _, rr := range owned {
		if rr.Range.Start == rr.Range.End {
			f.logger.Debug("Skipping empty owned range",
				zap.Stringer("table", table),
				zap.Stringer("range", rr.Range))
			continue
		}
		if seen[rr.Range] {
			continue
		}
		seen[rr.Range] = true
		out = append(out, rr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Range.Compare(out[j].Range) < 0
	})
	return out
}

// calculation is the working state of one CalculateNewState call.
type calculation struct {
	granularity Granularity
	owned       []RangeReplicas
	index       rangeIndex
	to, from    int64

	exact     []int64    // vnode: newest exact evidence per owned range
	evidence  []coverage // sub-range: evidence per owned range
	satisfied []bool
	remaining int
}

func newCalculation(g Granularity, owned []RangeReplicas) *calculation {
	ranges := make([]ring.TokenRange, len(owned))
	for i, rr := range owned {
		ranges[i] = rr.Range
	}
	c := &calculation{
		granularity: g,
		owned:       owned,
		index:       newRangeIndex(ranges),
		satisfied:   make([]bool, len(owned)),
		remaining:   len(owned),
	}
	if g == SubRangeGranularity {
		c.evidence = make([]coverage, len(owned))
	} else {
		c.exact = make([]int64, len(owned))
		for i := range c.exact {
			c.exact[i] = Unrepaired
		}
	}
	return c
}

// owner returns the owned range an entry may count for.
func (c *calculation) owner(e Entry) (int, bool) {
	if !e.IsSuccessful() {
		return -1, false
	}
	i, ok := c.index.find(e.Range)
	if !ok {
		return -1, false
	}
	if c.granularity == VnodeGranularity && c.owned[i].Range != e.Range {
		return -1, false
	}
	if !c.owned[i].Replicas.Equal(e.Replicas) {
		return -1, false
	}
	return i, true
}

// accept is the filter handed to the history provider.
func (c *calculation) accept(e Entry) bool {
	_, ok := c.owner(e)
	return ok
}

// record applies one history entry. Providers are not trusted to have
// applied the filter or the time bounds.
func (c *calculation) record(e Entry) {
	if e.CompletedAt > c.to || e.CompletedAt < c.from {
		return
	}
	i, ok := c.owner(e)
	if !ok {
		return
	}

	owner := c.owned[i].Range
	if c.granularity == VnodeGranularity {
		c.exact[i] = max(c.exact[i], e.CompletedAt)
		c.satisfy(i)
		return
	}

	for _, s := range clip(owner, e.Range, e.CompletedAt) {
		c.evidence[i] = c.evidence[i].add(s)
	}
	if c.evidence[i].covers(owner.Size()) {
		c.satisfy(i)
	}
}

func (c *calculation) satisfy(i int) {
	if !c.satisfied[i] {
		c.satisfied[i] = true
		c.remaining--
	}
}

// done reports whether every owned range has evidence throughout.
func (c *calculation) done() bool {
	return c.remaining == 0
}

// resolve combines the recorded evidence with the previous states.
func (c *calculation) resolve(previous []VnodeState) VnodeStates {
	var states []VnodeState
	ranges := make([]ring.TokenRange, len(c.owned))

	for i, rr := range c.owned {
		ranges[i] = rr.Range
		if c.granularity == VnodeGranularity {
			at := max(c.exact[i], fallback(rr.Range, previous))
			states = append(states, NewVnodeState(rr.Range, rr.Replicas, at))
			continue
		}

		merged := coverage{{lo: 0, hi: rr.Range.Size(), at: Unrepaired}}
		for _, p := range previous {
			for _, s := range clip(rr.Range, p.Range, p.RepairedAt) {
				merged = merged.add(s)
			}
		}
		for _, s := range c.evidence[i] {
			merged = merged.add(s)
		}
		states = append(states, merged.states(rr.Range, rr.Replicas)...)
	}

	if c.granularity == SubRangeGranularity {
		return NewSubRangeStates(ranges, states)
	}
	return NewVnodeStates(states)
}

// fallback returns the value r inherits from previous states: the oldest
// value among the states covering it, or Unrepaired if any part of r is not
// covered.
func fallback(r ring.TokenRange, previous []VnodeState) int64 {
	var covered coverage
	for _, p := range previous {
		for _, s := range clip(r, p.Range, p.RepairedAt) {
			covered = covered.add(s)
		}
	}
	if !covered.covers(r.Size()) {
		return Unrepaired
	}
	return covered.minAt()
}
