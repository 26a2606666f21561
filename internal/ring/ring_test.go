package ring

import (
	"fmt"
	"math"
	"testing"
)

func threeNodes() []Node {
	return []Node{
		{ID: "node1", Addr: "127.0.0.1:7000"},
		{ID: "node2", Addr: "127.0.0.2:7000"},
		{ID: "node3", Addr: "127.0.0.3:7000"},
	}
}

func TestRing_ResponsibleNode(t *testing.T) {
	ring := NewRing(16)
	ring.SetNodes(threeNodes())

	// Test that same token always maps to same node (determinism)
	token := TokenForKey("test-key-123")
	node1, found1 := ring.ResponsibleNode(token)
	if !found1 {
		t.Fatal("Expected to find a responsible node")
	}

	node2, found2 := ring.ResponsibleNode(token)
	if !found2 {
		t.Fatal("Expected to find a responsible node")
	}

	if node1.ID != node2.ID {
		t.Errorf("Determinism failed: same token mapped to different nodes: %s vs %s", node1.ID, node2.ID)
	}
}

func TestRing_ResponsibleNodeOwnsRangeEndingAtToken(t *testing.T) {
	ring := NewRing(1)
	if err := ring.AddNodeWithTokens(Node{ID: "a", Addr: "10.0.0.1"}, []int64{-100, 100}); err != nil {
		t.Fatal(err)
	}
	if err := ring.AddNodeWithTokens(Node{ID: "b", Addr: "10.0.0.2"}, []int64{0}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		token int64
		want  string
	}{
		{-100, "a"},
		{-99, "b"},
		{0, "b"},
		{1, "a"},
		{100, "a"},
		{101, "a"}, // wraps to the first vnode
		{math.MinInt64, "a"},
	}
	for _, tt := range tests {
		node, ok := ring.ResponsibleNode(tt.token)
		if !ok {
			t.Fatalf("no owner for token %d", tt.token)
		}
		if node.ID != tt.want {
			t.Errorf("ResponsibleNode(%d) = %s, want %s", tt.token, node.ID, tt.want)
		}
	}
}

func TestRing_Determinism(t *testing.T) {
	ring1 := NewRing(16)
	ring2 := NewRing(16)

	ring1.SetNodes(threeNodes())
	ring2.SetNodes(threeNodes())

	r1 := ring1.TokenRanges()
	r2 := ring2.TokenRanges()
	if len(r1) != len(r2) {
		t.Fatalf("range count differs: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Errorf("range %d differs: %s vs %s", i, r1[i], r2[i])
		}
	}
}

func TestRing_Distribution(t *testing.T) {
	ring := NewRing(128)
	ring.SetNodes(threeNodes())

	distribution := make(map[string]int)
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		node, found := ring.ResponsibleNode(TokenForKey(fmt.Sprintf("key-%d", i)))
		if !found {
			t.Fatalf("Expected to find node for key-%d", i)
		}
		distribution[node.ID]++
	}

	if len(distribution) != 3 {
		t.Errorf("Expected 3 nodes to have keys, got %d", len(distribution))
	}

	for nodeID, count := range distribution {
		percentage := float64(count) / float64(numKeys) * 100
		if percentage > 90 {
			t.Errorf("Node %s has %.2f%% of keys (too high)", nodeID, percentage)
		}
	}
}

func TestRing_TokenRangesPartitionRing(t *testing.T) {
	ring := NewRing(8)
	ring.SetNodes(threeNodes())

	ranges := ring.TokenRanges()
	tokens := ring.Tokens()
	if len(ranges) != len(tokens) {
		t.Fatalf("Expected %d ranges, got %d", len(tokens), len(ranges))
	}

	var total uint64
	wrapping := 0
	for i, r := range ranges {
		total += r.Size()
		if r.IsWrapping() {
			wrapping++
		}
		for j := i + 1; j < len(ranges); j++ {
			if r.Overlaps(ranges[j]) {
				t.Errorf("ranges %s and %s overlap", r, ranges[j])
			}
		}
	}
	if wrapping != 1 {
		t.Errorf("Expected exactly one wrapping range, got %d", wrapping)
	}
	// Sizes add up to 2^64, which overflows to zero.
	if total != 0 {
		t.Errorf("Expected ranges to cover the whole ring, total size %d", total)
	}
}

func TestRing_TokenRangesTooFewTokens(t *testing.T) {
	ring := NewRing(1)
	if got := ring.TokenRanges(); len(got) != 0 {
		t.Errorf("Expected no ranges for empty ring, got %v", got)
	}
	ring.SetNodes([]Node{{ID: "solo", Addr: "10.0.0.1"}})
	if got := ring.TokenRanges(); len(got) != 0 {
		t.Errorf("Expected no ranges for single token, got %v", got)
	}
}

func TestRing_NodeRemoval(t *testing.T) {
	ring := NewRing(16)
	ring.SetNodes(threeNodes())

	ring.RemoveNode("node2")

	for i := 0; i < 50; i++ {
		node, found := ring.ResponsibleNode(TokenForKey(fmt.Sprintf("key%d", i)))
		if !found {
			t.Errorf("Expected to find node for key%d after removal", i)
		}
		if node.ID == "node2" {
			t.Errorf("key%d still mapped to removed node node2", i)
		}
	}

	if len(ring.Tokens()) != 32 {
		t.Errorf("Expected 32 tokens after removal, got %d", len(ring.Tokens()))
	}
	for _, node := range ring.GetNodes() {
		if node.ID == "node2" {
			t.Error("node2 should be removed from ring")
		}
	}
}

func TestRing_AddNode(t *testing.T) {
	ring := NewRing(16)
	ring.SetNodes([]Node{{ID: "node1", Addr: "127.0.0.1:7000"}})

	ring.AddNode(Node{ID: "node2", Addr: "127.0.0.2:7000"})
	ring.AddNode(Node{ID: "node2", Addr: "127.0.0.2:7000"}) // no-op

	allNodes := ring.GetNodes()
	if len(allNodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(allNodes))
	}
	if allNodes[0].ID != "node1" || allNodes[1].ID != "node2" {
		t.Errorf("Expected node1 and node2 in ID order, got %v", allNodes)
	}
	if len(ring.Tokens()) != 32 {
		t.Errorf("Expected 32 tokens, got %d", len(ring.Tokens()))
	}
}

func TestRing_AddNodeWithTokens(t *testing.T) {
	ring := NewRing(4)
	if err := ring.AddNodeWithTokens(Node{ID: "a", Addr: "10.0.0.1"}, []int64{10, 20}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		node   Node
		tokens []int64
	}{
		{"known node", Node{ID: "a", Addr: "10.0.0.1"}, []int64{30}},
		{"no tokens", Node{ID: "b", Addr: "10.0.0.2"}, nil},
		{"taken token", Node{ID: "b", Addr: "10.0.0.2"}, []int64{20}},
		{"duplicate token", Node{ID: "b", Addr: "10.0.0.2"}, []int64{30, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ring.AddNodeWithTokens(tt.node, tt.tokens); err == nil {
				t.Error("Expected error")
			}
		})
	}

	want := []TokenRange{{Start: 10, End: 20}, {Start: 20, End: 10}}
	got := ring.TokenRanges()
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRing_ReplaceNode(t *testing.T) {
	ring := NewRing(8)
	ring.SetNodes(threeNodes())
	before := ring.TokenRanges()

	replacement := Node{ID: "node4", Addr: "127.0.0.4:7000"}
	if err := ring.ReplaceNode("node2", replacement); err != nil {
		t.Fatal(err)
	}
	if err := ring.ReplaceNode("node2", replacement); err == nil {
		t.Error("Expected error replacing a node that is gone")
	}
	if err := ring.ReplaceNode("node1", replacement); err == nil {
		t.Error("Expected error replacing with a node already in the ring")
	}

	after := ring.TokenRanges()
	if len(before) != len(after) {
		t.Fatalf("range count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("range %d changed: %s -> %s", i, before[i], after[i])
		}
	}
	for _, r := range after {
		node, _ := ring.ResponsibleNode(r.End)
		if node.ID == "node2" {
			t.Errorf("range %s still owned by node2", r)
		}
	}
}

func TestRing_EmptyRing(t *testing.T) {
	ring := NewRing(16)
	node, found := ring.ResponsibleNode(42)
	if found {
		t.Error("Expected no node found for empty ring")
	}
	if node.ID != "" {
		t.Error("Expected empty node for empty ring")
	}
	if got := ring.PreferenceList(42, 3); len(got) != 0 {
		t.Errorf("Expected empty preference list, got %v", got)
	}
}

func TestRing_PreferenceList(t *testing.T) {
	ring := NewRing(16)
	ring.SetNodes(threeNodes())

	token := TokenForKey("test-key")
	prefList := ring.PreferenceList(token, 3)

	if len(prefList) != 3 {
		t.Errorf("Expected preference list of length 3, got %d", len(prefList))
	}

	seen := make(map[string]bool)
	for _, node := range prefList {
		if seen[node.ID] {
			t.Errorf("Duplicate node %s in preference list", node.ID)
		}
		seen[node.ID] = true
	}

	responsible, _ := ring.ResponsibleNode(token)
	if prefList[0].ID != responsible.ID {
		t.Errorf("First node in preference list should be responsible node: got %s, expected %s", prefList[0].ID, responsible.ID)
	}
}

func TestRing_PreferenceListPartial(t *testing.T) {
	ring := NewRing(16)
	ring.SetNodes(threeNodes()[:2])

	prefList := ring.PreferenceList(TokenForKey("key"), 5)
	if len(prefList) != 2 {
		t.Errorf("Expected preference list of length 2 (only 2 nodes), got %d", len(prefList))
	}
}

func TestRing_ReplicatedRanges(t *testing.T) {
	ring := NewRing(1)
	for _, n := range []struct {
		node  Node
		token int64
	}{
		{Node{ID: "a", Addr: "10.0.0.1"}, -100},
		{Node{ID: "b", Addr: "10.0.0.2"}, 0},
		{Node{ID: "c", Addr: "10.0.0.3"}, 100},
	} {
		if err := ring.AddNodeWithTokens(n.node, []int64{n.token}); err != nil {
			t.Fatal(err)
		}
	}

	got := ring.ReplicatedRanges(2)
	want := []struct {
		r   TokenRange
		ids []string
	}{
		{TokenRange{Start: -100, End: 0}, []string{"b", "c"}},
		{TokenRange{Start: 0, End: 100}, []string{"c", "a"}},
		{TokenRange{Start: 100, End: -100}, []string{"a", "b"}},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d ranges, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Range != w.r {
			t.Errorf("range %d = %s, want %s", i, got[i].Range, w.r)
		}
		var ids []string
		for _, n := range got[i].Replicas {
			ids = append(ids, n.ID)
		}
		if fmt.Sprint(ids) != fmt.Sprint(w.ids) {
			t.Errorf("replicas of %s = %v, want %v", w.r, ids, w.ids)
		}
		// Agrees with the preference list of the range's end token.
		prefs := ring.PreferenceList(w.r.End, 2)
		if prefs[0].ID != w.ids[0] || prefs[1].ID != w.ids[1] {
			t.Errorf("preference list of %d = %v, want %v", w.r.End, prefs, w.ids)
		}
	}

	if got := NewRing(4).ReplicatedRanges(3); len(got) != 0 {
		t.Errorf("Expected no ranges on an empty ring, got %v", got)
	}
}
