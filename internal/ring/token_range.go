package ring

import (
	"fmt"
	"math"
	"sort"
)

// TokenRange is the interval (Start, End] on the signed 64-bit token ring.
// A range with End < Start wraps past math.MaxInt64 back to math.MinInt64.
type TokenRange struct {
	Start int64
	End   int64
}

// NewTokenRange returns the range (start, end]. Start and end must differ.
func NewTokenRange(start, end int64) (TokenRange, error) {
	if start == end {
		return TokenRange{}, fmt.Errorf("invalid token range (%d, %d]: start equals end", start, end)
	}
	return TokenRange{Start: start, End: end}, nil
}

// MustTokenRange is like NewTokenRange but panics on invalid input.
func MustTokenRange(start, end int64) TokenRange {
	r, err := NewTokenRange(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// IsWrapping reports whether the range crosses the end of the ring.
func (r TokenRange) IsWrapping() bool {
	return r.End < r.Start
}

// Equal reports whether both endpoints match.
func (r TokenRange) Equal(other TokenRange) bool {
	return r == other
}

// Contains reports whether token lies in (Start, End].
func (r TokenRange) Contains(token int64) bool {
	if r.IsWrapping() {
		return token > r.Start || token <= r.End
	}
	return token > r.Start && token <= r.End
}

// Covers reports whether other is wholly contained in r.
func (r TokenRange) Covers(other TokenRange) bool {
	outer := r.intervals()
	for _, in := range other.intervals() {
		covered := false
		for _, out := range outer {
			if out.lo <= in.lo && in.hi <= out.hi {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// Overlaps reports whether r and other share at least one token.
func (r TokenRange) Overlaps(other TokenRange) bool {
	for _, a := range r.intervals() {
		for _, b := range other.intervals() {
			if a.lo <= b.hi && b.lo <= a.hi {
				return true
			}
		}
	}
	return false
}

// Size returns the number of tokens in the range.
func (r TokenRange) Size() uint64 {
	return uint64(r.End) - uint64(r.Start)
}

// Compare orders ranges by start token, then end token. The order is only
// meant for deterministic iteration and says nothing about ring position.
func (r TokenRange) Compare(other TokenRange) int {
	switch {
	case r.Start < other.Start:
		return -1
	case r.Start > other.Start:
		return 1
	case r.End < other.End:
		return -1
	case r.End > other.End:
		return 1
	}
	return 0
}

func (r TokenRange) String() string {
	return fmt.Sprintf("(%d,%d]", r.Start, r.End)
}

// FirstOverlap returns the indexes of two ranges that share a token, or
// false if the ranges are pairwise disjoint.
func FirstOverlap(ranges []TokenRange) (int, int, bool) {
	type piece struct {
		interval
		idx int
	}

	pieces := make([]piece, 0, len(ranges)+1)
	for i, r := range ranges {
		for _, iv := range r.intervals() {
			pieces = append(pieces, piece{interval: iv, idx: i})
		}
	}
	if len(pieces) < 2 {
		return -1, -1, false
	}
	sort.Slice(pieces, func(a, b int) bool {
		return pieces[a].lo < pieces[b].lo
	})

	reach := pieces[0]
	for _, p := range pieces[1:] {
		if p.lo <= reach.hi {
			return reach.idx, p.idx, true
		}
		reach = p
	}
	return -1, -1, false
}

// interval is an inclusive, non-wrapping run of tokens [lo, hi].
type interval struct {
	lo, hi int64
}

// intervals splits the range into at most two non-wrapping inclusive intervals.
func (r TokenRange) intervals() []interval {
	if !r.IsWrapping() {
		return []interval{{lo: r.Start + 1, hi: r.End}}
	}
	if r.Start == math.MaxInt64 {
		return []interval{{lo: math.MinInt64, hi: r.End}}
	}
	return []interval{
		{lo: math.MinInt64, hi: r.End},
		{lo: r.Start + 1, hi: math.MaxInt64},
	}
}
