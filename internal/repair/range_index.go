package repair

import (
	"sort"

	"repairstate/internal/ring"
)

// rangeIndex finds the range holding a token or covering another range among
// pairwise disjoint ranges sorted by start.
type rangeIndex struct {
	ranges []ring.TokenRange
	exact  map[ring.TokenRange]int
}

func newRangeIndex(sorted []ring.TokenRange) rangeIndex {
	exact := make(map[ring.TokenRange]int, len(sorted))
	for i, r := range sorted {
		if _, dup := exact[r]; !dup {
			exact[r] = i
		}
	}
	return rangeIndex{ranges: sorted, exact: exact}
}

// containing returns the index of the range holding token, or -1.
func (x rangeIndex) containing(token int64) int {
	return locate(len(x.ranges), func(i int) ring.TokenRange { return x.ranges[i] }, token)
}

// find returns the index of the range equal to r, or else of the range that
// covers r.
func (x rangeIndex) find(r ring.TokenRange) (int, bool) {
	if i, ok := x.exact[r]; ok {
		return i, true
	}
	// Any covering range must hold r.End.
	i := x.containing(r.End)
	if i >= 0 && x.ranges[i].Covers(r) {
		return i, true
	}
	return -1, false
}

// locate binary-searches n disjoint ranges sorted by start for the one
// holding token. Only the last range can wrap.
func locate(n int, at func(int) ring.TokenRange, token int64) int {
	if n == 0 {
		return -1
	}
	i := sort.Search(n, func(i int) bool { return at(i).Start >= token }) - 1
	if i >= 0 && at(i).Contains(token) {
		return i
	}
	if at(n - 1).Contains(token) {
		return n - 1
	}
	return -1
}
