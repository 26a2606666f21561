package repair

import "repairstate/internal/ring"

// span is the repaired-at value of the offsets (lo, hi] inside an owned
// range, where offset k is the k-th token after the range start.
type span struct {
	lo, hi uint64
	at     int64
}

// offset returns the position of token relative to start on the ring.
func offset(start, token int64) uint64 {
	return uint64(token) - uint64(start)
}

// clip returns the part of r inside owner as spans relative to owner.Start.
func clip(owner, r ring.TokenRange, at int64) []span {
	size := owner.Size()
	ps := offset(owner.Start, r.Start)
	pe := offset(owner.Start, r.End)

	if ps < pe {
		hi := min(pe, size)
		if ps >= hi {
			return nil
		}
		return []span{{lo: ps, hi: hi, at: at}}
	}

	// r passes owner.Start: it holds (ps, max] and [0, pe] in offset space.
	var out []span
	if pe > 0 {
		out = append(out, span{lo: 0, hi: min(pe, size), at: at})
	}
	if ps < size {
		out = append(out, span{lo: ps, hi: size, at: at})
	}
	return out
}

// coverage is a sorted list of disjoint spans. Adjacent spans with equal
// values are kept merged.
type coverage []span

// add returns c with s laid over it. Where s meets existing spans the later
// repaired-at wins.
func (c coverage) add(s span) coverage {
	if s.lo >= s.hi {
		return c
	}
	out := make(coverage, 0, len(c)+2)
	i := 0
	for ; i < len(c) && c[i].hi <= s.lo; i++ {
		out = out.push(c[i])
	}

	cur := s.lo
	for ; i < len(c) && c[i].lo < s.hi; i++ {
		e := c[i]
		if e.lo < cur {
			out = out.push(span{lo: e.lo, hi: cur, at: e.at})
		} else if cur < e.lo {
			out = out.push(span{lo: cur, hi: e.lo, at: s.at})
		}
		hi := min(e.hi, s.hi)
		out = out.push(span{lo: max(e.lo, cur), hi: hi, at: max(e.at, s.at)})
		cur = hi
		if e.hi > s.hi {
			out = out.push(span{lo: s.hi, hi: e.hi, at: e.at})
		}
	}
	if cur < s.hi {
		out = out.push(span{lo: cur, hi: s.hi, at: s.at})
	}

	for ; i < len(c); i++ {
		out = out.push(c[i])
	}
	return out
}

func (c coverage) push(s span) coverage {
	if s.lo >= s.hi {
		return c
	}
	if n := len(c); n > 0 && c[n-1].hi == s.lo && c[n-1].at == s.at {
		c[n-1].hi = s.hi
		return c
	}
	return append(c, s)
}

// covers reports whether the spans leave no gap in (0, size].
func (c coverage) covers(size uint64) bool {
	if len(c) == 0 || c[0].lo != 0 {
		return false
	}
	for i := 1; i < len(c); i++ {
		if c[i].lo != c[i-1].hi {
			return false
		}
	}
	return c[len(c)-1].hi == size
}

// minAt returns the lowest value in c, or Unrepaired if c is empty.
func (c coverage) minAt() int64 {
	if len(c) == 0 {
		return Unrepaired
	}
	lowest := c[0].at
	for _, s := range c[1:] {
		lowest = min(lowest, s.at)
	}
	return lowest
}

// states maps the spans of owner back to token ranges.
func (c coverage) states(owner ring.TokenRange, replicas ring.NodeSet) []VnodeState {
	out := make([]VnodeState, 0, len(c))
	for _, s := range c {
		r := ring.TokenRange{
			Start: int64(uint64(owner.Start) + s.lo),
			End:   int64(uint64(owner.Start) + s.hi),
		}
		out = append(out, NewVnodeState(r, replicas, s.at))
	}
	return out
}
