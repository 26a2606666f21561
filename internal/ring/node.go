package ring

import (
	"sort"
	"strings"
)

// Node represents a physical node in the cluster. Replica-set membership is
// decided by Addr alone.
type Node struct {
	ID   string
	Addr string
}

func (n Node) String() string {
	if n.ID == "" || n.ID == n.Addr {
		return n.Addr
	}
	return n.ID + "@" + n.Addr
}

// NodeSet is an immutable set of nodes keyed by address. The zero value is
// the empty set.
type NodeSet struct {
	nodes []Node // sorted by Addr, unique
}

// NewNodeSet builds a set from nodes. Later duplicates of an address are dropped.
func NewNodeSet(nodes ...Node) NodeSet {
	if len(nodes) == 0 {
		return NodeSet{}
	}
	sorted := make([]Node, 0, len(nodes))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.Addr] {
			continue
		}
		seen[n.Addr] = true
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Addr < sorted[j].Addr
	})
	return NodeSet{nodes: sorted}
}

// Nodes returns the members ordered by address.
func (s NodeSet) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the number of members.
func (s NodeSet) Len() int {
	return len(s.nodes)
}

// IsEmpty reports whether the set has no members.
func (s NodeSet) IsEmpty() bool {
	return len(s.nodes) == 0
}

// Contains reports whether a node with the given address is a member.
func (s NodeSet) Contains(addr string) bool {
	i := sort.Search(len(s.nodes), func(i int) bool {
		return s.nodes[i].Addr >= addr
	})
	return i < len(s.nodes) && s.nodes[i].Addr == addr
}

// Equal reports whether both sets hold the same addresses.
func (s NodeSet) Equal(other NodeSet) bool {
	if len(s.nodes) != len(other.nodes) {
		return false
	}
	for i := range s.nodes {
		if s.nodes[i].Addr != other.nodes[i].Addr {
			return false
		}
	}
	return true
}

// Key returns a canonical string for the set, usable as a map key.
func (s NodeSet) Key() string {
	addrs := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		addrs[i] = n.Addr
	}
	return strings.Join(addrs, ",")
}

func (s NodeSet) String() string {
	return "{" + s.Key() + "}"
}
