package repair

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairstate/internal/ring"
)

func TestNewVnodeStates_SortsByStart(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	states := NewVnodeStates([]VnodeState{
		NewVnodeState(tr(5, 0), ab, 3),
		NewVnodeState(tr(0, 2), ab, 1),
		NewVnodeState(tr(2, 5), ab, 2),
	})

	assert.Equal(t, VnodeGranularity, states.Granularity())
	assert.Equal(t, []VnodeState{
		NewVnodeState(tr(0, 2), ab, 1),
		NewVnodeState(tr(2, 5), ab, 2),
		NewVnodeState(tr(5, 0), ab, 3),
	}, states.States())
	assert.Equal(t, 3, states.Len())
	assert.Equal(t, int64(1), states.LastRepairedAt())
}

func TestNewVnodeStates_NoMerging(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	states := NewVnodeStates([]VnodeState{
		NewVnodeState(tr(0, 2), ab, 1),
		NewVnodeState(tr(2, 5), ab, 1),
	})
	assert.Equal(t, 2, states.Len())
}

func TestNewVnodeStates_RejectsOverlap(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	tests := map[string][]VnodeState{
		"overlapping": {NewVnodeState(tr(0, 5), ab, 1), NewVnodeState(tr(3, 8), ab, 1)},
		"duplicate":   {NewVnodeState(tr(0, 5), ab, 1), NewVnodeState(tr(0, 5), ab, 2)},
		"wrapping":    {NewVnodeState(tr(100, -100), ab, 1), NewVnodeState(tr(-300, -200), ab, 1)},
		"empty range": {NewVnodeState(ring.TokenRange{Start: 4, End: 4}, ab, 1)},
	}
	for name, states := range tests {
		t.Run(name, func(t *testing.T) {
			requireInvariantPanic(t, func() { NewVnodeStates(states) })
			requireInvariantPanic(t, func() { NewSubRangeStates([]ring.TokenRange{tr(math.MinInt64, math.MaxInt64)}, states) })
		})
	}
}

func TestNewSubRangeStates_Coalesces(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	ac := replicas(nodeA, nodeC)
	vnodes := []ring.TokenRange{tr(0, 10), tr(10, 20)}

	states := NewSubRangeStates(vnodes, []VnodeState{
		NewVnodeState(tr(3, 6), ab, 1),
		NewVnodeState(tr(0, 3), ab, 1),
		NewVnodeState(tr(6, 10), ab, 2),
		NewVnodeState(tr(10, 12), ab, 2), // next vnode
		NewVnodeState(tr(12, 15), ac, 2), // other replicas
		NewVnodeState(tr(16, 20), ac, 2), // not adjacent
	})

	assert.Equal(t, SubRangeGranularity, states.Granularity())
	assert.Equal(t, []VnodeState{
		NewVnodeState(tr(0, 6), ab, 1),
		NewVnodeState(tr(6, 10), ab, 2),
		NewVnodeState(tr(10, 12), ab, 2),
		NewVnodeState(tr(12, 15), ac, 2),
		NewVnodeState(tr(16, 20), ac, 2),
	}, states.States())
}

func TestNewSubRangeStates_MergesAcrossRingEnd(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	vnodes := []ring.TokenRange{tr(0, 5), tr(5, 0)}

	states := NewSubRangeStates(vnodes, []VnodeState{
		NewVnodeState(tr(-50, 0), ab, 7),
		NewUnrepairedState(tr(0, 5), ab),
		NewUnrepairedState(tr(5, 100), ab),
		NewVnodeState(tr(100, -50), ab, 7),
	})

	assert.Equal(t, []VnodeState{
		NewUnrepairedState(tr(0, 5), ab),
		NewUnrepairedState(tr(5, 100), ab),
		NewVnodeState(tr(100, 0), ab, 7),
	}, states.States())
}

func TestNewSubRangeStates_RejectsStateOutsideVnodes(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	requireInvariantPanic(t, func() {
		NewSubRangeStates([]ring.TokenRange{tr(0, 10)}, []VnodeState{NewVnodeState(tr(5, 15), ab, 1)})
	})
}

func TestVnodeStates_Find(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	states := NewVnodeStates([]VnodeState{
		NewVnodeState(tr(-10, 0), ab, 1),
		NewVnodeState(tr(0, 10), ab, 2),
		NewVnodeState(tr(20, -10), ab, 3),
	})

	tests := []struct {
		token int64
		want  int64
		found bool
	}{
		{-10, 3, true},
		{-9, 1, true},
		{0, 1, true},
		{1, 2, true},
		{10, 2, true},
		{15, 0, false},
		{21, 3, true},
		{math.MaxInt64, 3, true},
		{math.MinInt64, 3, true},
	}
	for _, tt := range tests {
		s, ok := states.Find(tt.token)
		require.Equal(t, tt.found, ok, "token %d", tt.token)
		if ok {
			assert.Equal(t, tt.want, s.RepairedAt, "token %d", tt.token)
		}
	}

	_, ok := VnodeStates{}.Find(0)
	assert.False(t, ok)
}

func TestVnodeStates_EmptyIsUnrepaired(t *testing.T) {
	assert.Equal(t, Unrepaired, NewVnodeStates(nil).LastRepairedAt())
	assert.Equal(t, 0, NewSubRangeStates(nil, nil).Len())
}

func TestVnodeStates_StatesIsACopy(t *testing.T) {
	states := NewVnodeStates([]VnodeState{NewVnodeState(tr(0, 1), replicas(nodeA), 1)})
	got := states.States()
	got[0].RepairedAt = 99
	assert.Equal(t, int64(1), states.States()[0].RepairedAt)
}

func TestVnodeStates_Equal(t *testing.T) {
	ab := replicas(nodeA, nodeB)
	a := NewVnodeStates([]VnodeState{NewVnodeState(tr(0, 1), ab, 1)})
	b := NewVnodeStates([]VnodeState{NewVnodeState(tr(0, 1), replicas(nodeB, nodeA), 1)})
	c := NewSubRangeStates([]ring.TokenRange{tr(0, 1)}, []VnodeState{NewVnodeState(tr(0, 1), ab, 1)})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "granularity differs")
	assert.False(t, a.Equal(NewVnodeStates(nil)))
}

func TestParseGranularity(t *testing.T) {
	for in, want := range map[string]Granularity{
		"":          VnodeGranularity,
		"vnode":     VnodeGranularity,
		"VNODE":     VnodeGranularity,
		"sub_range": SubRangeGranularity,
		"sub-range": SubRangeGranularity,
	} {
		got, err := ParseGranularity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseGranularity("token")
	assert.Error(t, err)
	assert.Equal(t, "sub_range", SubRangeGranularity.String())
}
