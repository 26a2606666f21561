package ring

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
)

// vnode represents a virtual node on the ring.
type vnode struct {
	token  int64
	nodeID string
}

// Ring is a token ring with virtual nodes. Each vnode owns the token range
// that ends at its own token and starts at the previous vnode's token.
type Ring struct {
	mu            sync.RWMutex
	vnodesPerNode int
	vnodes        []vnode         // sorted by token, tokens unique
	nodes         map[string]Node // nodeID -> Node
}

// NewRing creates a new token ring.
func NewRing(vnodesPerNode int) *Ring {
	if vnodesPerNode <= 0 {
		vnodesPerNode = 16 // default
	}
	return &Ring{
		vnodesPerNode: vnodesPerNode,
		vnodes:        make([]vnode, 0),
		nodes:         make(map[string]Node),
	}
}

// SetNodes rebuilds the ring with the given nodes.
// This is deterministic: the same nodes produce the same tokens.
func (r *Ring) SetNodes(nodes []Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodes = make(map[string]Node)
	r.vnodes = make([]vnode, 0, len(nodes)*r.vnodesPerNode)

	for _, node := range nodes {
		r.nodes[node.ID] = node
		for _, token := range r.generateTokens(node.ID) {
			r.vnodes = append(r.vnodes, vnode{token: token, nodeID: node.ID})
		}
	}

	sort.Slice(r.vnodes, func(i, j int) bool {
		return r.vnodes[i].token < r.vnodes[j].token
	})
	r.vnodes = dedupeTokens(r.vnodes)
}

// AddNode adds a node with generated tokens. Adding a known node is a no-op.
func (r *Ring) AddNode(node Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.ID]; exists {
		return
	}

	r.nodes[node.ID] = node
	for _, token := range r.generateTokens(node.ID) {
		r.insertVnode(vnode{token: token, nodeID: node.ID})
	}
}

// AddNodeWithTokens adds a node owning exactly the given tokens.
func (r *Ring) AddNodeWithTokens(node Node, tokens []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.ID]; exists {
		return fmt.Errorf("node %s already in ring", node.ID)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("node %s: no tokens given", node.ID)
	}
	seen := make(map[int64]bool, len(tokens))
	for _, token := range tokens {
		if seen[token] || r.indexOf(token) >= 0 {
			return fmt.Errorf("node %s: token %d already owned", node.ID, token)
		}
		seen[token] = true
	}

	r.nodes[node.ID] = node
	for _, token := range tokens {
		r.insertVnode(vnode{token: token, nodeID: node.ID})
	}
	return nil
}

// RemoveNode removes a node and all of its vnodes.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[nodeID]; !exists {
		return
	}

	delete(r.nodes, nodeID)
	kept := make([]vnode, 0, len(r.vnodes))
	for _, v := range r.vnodes {
		if v.nodeID != nodeID {
			kept = append(kept, v)
		}
	}
	r.vnodes = kept
}

// ReplaceNode hands every token of oldID to node, which must not be in the
// ring yet. Token ranges stay the same; only their owner changes.
func (r *Ring) ReplaceNode(oldID string, node Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[oldID]; !exists {
		return fmt.Errorf("node %s not in ring", oldID)
	}
	if _, exists := r.nodes[node.ID]; exists {
		return fmt.Errorf("node %s already in ring", node.ID)
	}

	delete(r.nodes, oldID)
	r.nodes[node.ID] = node
	for i := range r.vnodes {
		if r.vnodes[i].nodeID == oldID {
			r.vnodes[i].nodeID = node.ID
		}
	}
	return nil
}

// GetNodes returns all nodes in the ring ordered by ID.
func (r *Ring) GetNodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// Tokens returns every vnode token in ring order.
func (r *Ring) Tokens() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]int64, len(r.vnodes))
	for i, v := range r.vnodes {
		tokens[i] = v.token
	}
	return tokens
}

// TokenRanges returns the range owned by each vnode, ordered by start token.
// The last range wraps from the highest token back to the lowest. A ring with
// fewer than two tokens has no representable ranges.
func (r *Ring) TokenRanges() []TokenRange {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.vnodes)
	if n < 2 {
		return []TokenRange{}
	}

	ranges := make([]TokenRange, 0, n)
	for i := 1; i < n; i++ {
		ranges = append(ranges, TokenRange{Start: r.vnodes[i-1].token, End: r.vnodes[i].token})
	}
	ranges = append(ranges, TokenRange{Start: r.vnodes[n-1].token, End: r.vnodes[0].token})
	return ranges
}

// ResponsibleNode returns the node owning the vnode whose range contains token.
// Returns (Node, true) if found, (Node{}, false) if ring is empty.
func (r *Ring) ResponsibleNode(token int64) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 {
		return Node{}, false
	}

	node, exists := r.nodes[r.vnodes[r.ownerIndex(token)].nodeID]
	return node, exists
}

// PreferenceList returns up to k distinct nodes, starting with the owner of
// token and walking the ring clockwise.
func (r *Ring) PreferenceList(token int64, k int) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 || k <= 0 {
		return []Node{}
	}
	return r.walk(r.ownerIndex(token), k)
}

// ReplicatedRange is a token range with the nodes replicating it, owner first.
type ReplicatedRange struct {
	Range    TokenRange
	Replicas []Node
}

// ReplicatedRanges returns every token range with its first k distinct nodes,
// read under one lock so ranges and replicas agree.
func (r *Ring) ReplicatedRanges(k int) []ReplicatedRange {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.vnodes)
	if n < 2 || k <= 0 {
		return []ReplicatedRange{}
	}

	out := make([]ReplicatedRange, 0, n)
	for i := 1; i < n; i++ {
		out = append(out, ReplicatedRange{
			Range:    TokenRange{Start: r.vnodes[i-1].token, End: r.vnodes[i].token},
			Replicas: r.walk(i, k),
		})
	}
	return append(out, ReplicatedRange{
		Range:    TokenRange{Start: r.vnodes[n-1].token, End: r.vnodes[0].token},
		Replicas: r.walk(0, k),
	})
}

// walk collects up to k distinct nodes clockwise from vnode idx. Caller must
// hold the lock.
func (r *Ring) walk(idx, k int) []Node {
	seen := make(map[string]bool)
	result := make([]Node, 0, k)

	for i := 0; i < len(r.vnodes) && len(result) < k; i++ {
		pos := (idx + i) % len(r.vnodes)
		nodeID := r.vnodes[pos].nodeID
		if !seen[nodeID] {
			seen[nodeID] = true
			if node, exists := r.nodes[nodeID]; exists {
				result = append(result, node)
			}
		}
	}

	return result
}

// TokenForKey maps a partition key onto the ring.
func TokenForKey(key string) int64 {
	return hashString(key)
}

// ownerIndex returns the index of the first vnode with token >= t, wrapping
// to the first vnode. Caller must hold the lock and the ring must not be empty.
func (r *Ring) ownerIndex(t int64) int {
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].token >= t
	})
	if idx >= len(r.vnodes) {
		idx = 0
	}
	return idx
}

// indexOf returns the position of token, or -1. Caller must hold the lock.
func (r *Ring) indexOf(token int64) int {
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].token >= token
	})
	if idx < len(r.vnodes) && r.vnodes[idx].token == token {
		return idx
	}
	return -1
}

// insertVnode inserts v in token order, skipping tokens already owned.
func (r *Ring) insertVnode(v vnode) {
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].token >= v.token
	})
	if idx < len(r.vnodes) && r.vnodes[idx].token == v.token {
		return
	}
	r.vnodes = append(r.vnodes, vnode{})
	copy(r.vnodes[idx+1:], r.vnodes[idx:])
	r.vnodes[idx] = v
}

func (r *Ring) generateTokens(nodeID string) []int64 {
	tokens := make([]int64, r.vnodesPerNode)
	for i := range tokens {
		tokens[i] = hashString(fmt.Sprintf("%s-vnode-%d", nodeID, i))
	}
	return tokens
}

// dedupeTokens drops vnodes whose token is already taken; vnodes must be sorted.
func dedupeTokens(vnodes []vnode) []vnode {
	if len(vnodes) < 2 {
		return vnodes
	}
	out := vnodes[:1]
	for _, v := range vnodes[1:] {
		if v.token != out[len(out)-1].token {
			out = append(out, v)
		}
	}
	return out
}

// hashString computes a 64-bit FNV-1a hash of the string as a ring token.
func hashString(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
