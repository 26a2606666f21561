package repair

import (
	"fmt"
	"sort"
	"strings"

	"repairstate/internal/ring"
)

// Granularity selects how repair state is tracked inside an owned range.
type Granularity int

const (
	// VnodeGranularity keeps exactly one state per owned range.
	VnodeGranularity Granularity = iota
	// SubRangeGranularity splits an owned range wherever its parts were
	// repaired at different times.
	SubRangeGranularity
)

func (g Granularity) String() string {
	switch g {
	case VnodeGranularity:
		return "vnode"
	case SubRangeGranularity:
		return "sub_range"
	default:
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
}

// ParseGranularity parses "vnode" or "sub_range". The empty string means vnode.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vnode":
		return VnodeGranularity, nil
	case "sub_range", "sub-range", "subrange":
		return SubRangeGranularity, nil
	}
	return 0, fmt.Errorf("unknown repair granularity %q", s)
}

// VnodeStates is an immutable, start-ordered collection of non-overlapping
// repair states.
type VnodeStates struct {
	granularity Granularity
	states      []VnodeState
}

// NewVnodeStates builds a vnode-granularity collection, one state per owned
// range. It panics with *InvariantError if two states overlap.
func NewVnodeStates(states []VnodeState) VnodeStates {
	sorted := sortedStates(states)
	mustBeDisjoint(sorted)
	return VnodeStates{granularity: VnodeGranularity, states: sorted}
}

// NewSubRangeStates builds a sub-range-granularity collection. Every state
// must lie inside one of vnodes. Adjacent states inside the same vnode with
// equal replicas and repaired-at are merged. It panics with *InvariantError
// if two states overlap or a state lies outside every vnode.
func NewSubRangeStates(vnodes []ring.TokenRange, states []VnodeState) VnodeStates {
	sorted := sortedStates(states)
	mustBeDisjoint(sorted)

	owners := make([]ring.TokenRange, len(vnodes))
	copy(owners, vnodes)
	sort.Slice(owners, func(i, j int) bool { return owners[i].Compare(owners[j]) < 0 })
	index := newRangeIndex(owners)

	owner := make([]int, len(sorted))
	for i, s := range sorted {
		o, ok := index.find(s.Range)
		if !ok {
			panic(&InvariantError{Msg: fmt.Sprintf("sub-range %s lies outside every vnode", s.Range)})
		}
		owner[i] = o
	}

	merged := make([]VnodeState, 0, len(sorted))
	mergedOwner := make([]int, 0, len(sorted))
	for i, s := range sorted {
		if n := len(merged); n > 0 && mergedOwner[n-1] == owner[i] && joinable(merged[n-1], s) {
			merged[n-1].Range.End = s.Range.End
			continue
		}
		merged = append(merged, s)
		mergedOwner = append(mergedOwner, owner[i])
	}

	// A wrapping vnode can leave its pieces at both ends of the order.
	if n := len(merged); n > 1 && mergedOwner[0] == mergedOwner[n-1] && joinable(merged[n-1], merged[0]) {
		merged[n-1].Range.End = merged[0].Range.End
		merged = merged[1:]
	}

	return VnodeStates{granularity: SubRangeGranularity, states: merged}
}

// joinable reports whether b directly follows a and can be merged into it.
func joinable(a, b VnodeState) bool {
	return a.Range.End == b.Range.Start &&
		a.Range.Start != b.Range.End &&
		a.RepairedAt == b.RepairedAt &&
		a.Replicas.Equal(b.Replicas)
}

func sortedStates(states []VnodeState) []VnodeState {
	sorted := make([]VnodeState, len(states))
	copy(sorted, states)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Range.Compare(sorted[j].Range) < 0
	})
	return sorted
}

func mustBeDisjoint(states []VnodeState) {
	ranges := make([]ring.TokenRange, len(states))
	for i, s := range states {
		if s.Range.Start == s.Range.End {
			panic(&InvariantError{Msg: fmt.Sprintf("empty range %s", s.Range)})
		}
		ranges[i] = s.Range
	}
	if i, j, found := ring.FirstOverlap(ranges); found {
		panic(&InvariantError{Msg: fmt.Sprintf("ranges %s and %s overlap", ranges[i], ranges[j])})
	}
}

// Granularity returns the granularity the collection was built with.
func (v VnodeStates) Granularity() Granularity {
	return v.granularity
}

// States returns the states ordered by range start.
func (v VnodeStates) States() []VnodeState {
	out := make([]VnodeState, len(v.states))
	copy(out, v.states)
	return out
}

// Len returns the number of states.
func (v VnodeStates) Len() int {
	return len(v.states)
}

// LastRepairedAt returns the oldest repaired-at over all states, or
// Unrepaired if there are none.
func (v VnodeStates) LastRepairedAt() int64 {
	if len(v.states) == 0 {
		return Unrepaired
	}
	oldest := v.states[0].RepairedAt
	for _, s := range v.states[1:] {
		oldest = min(oldest, s.RepairedAt)
	}
	return oldest
}

// Find returns the state whose range holds token.
func (v VnodeStates) Find(token int64) (VnodeState, bool) {
	i := locate(len(v.states), func(i int) ring.TokenRange { return v.states[i].Range }, token)
	if i < 0 {
		return VnodeState{}, false
	}
	return v.states[i], true
}

// Equal reports whether both collections hold equal states with the same
// granularity.
func (v VnodeStates) Equal(other VnodeStates) bool {
	if v.granularity != other.granularity || len(v.states) != len(other.states) {
		return false
	}
	for i := range v.states {
		if !v.states[i].Equal(other.states[i]) {
			return false
		}
	}
	return true
}
