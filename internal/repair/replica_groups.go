package repair

import (
	"sort"

	"repairstate/internal/ring"
)

// ReplicaRepairGroup is the set of ranges sharing one replica set.
type ReplicaRepairGroup struct {
	Replicas        ring.NodeSet
	Ranges          []ring.TokenRange // ordered by start
	LastCompletedAt int64             // oldest repaired-at in the group
}

func (g ReplicaRepairGroup) clone() ReplicaRepairGroup {
	ranges := make([]ring.TokenRange, len(g.Ranges))
	copy(ranges, g.Ranges)
	g.Ranges = ranges
	return g
}

// GroupByReplicas groups states by replica set. Groups are ordered by
// LastCompletedAt, oldest first, then by their first range.
func GroupByReplicas(states []VnodeState) []ReplicaRepairGroup {
	byKey := make(map[string]int)
	var groups []ReplicaRepairGroup

	for _, s := range sortedStates(states) {
		key := s.Replicas.Key()
		i, ok := byKey[key]
		if !ok {
			i = len(groups)
			byKey[key] = i
			groups = append(groups, ReplicaRepairGroup{
				Replicas:        s.Replicas,
				LastCompletedAt: s.RepairedAt,
			})
		}
		g := &groups[i]
		g.Ranges = append(g.Ranges, s.Range)
		g.LastCompletedAt = min(g.LastCompletedAt, s.RepairedAt)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].LastCompletedAt != groups[j].LastCompletedAt {
			return groups[i].LastCompletedAt < groups[j].LastCompletedAt
		}
		return groups[i].Ranges[0].Compare(groups[j].Ranges[0]) < 0
	})
	return groups
}
