package repair

// Snapshot is one computed picture of a table's repair coverage.
type Snapshot struct {
	lastCompletedAt int64
	states          VnodeStates
	groups          []ReplicaRepairGroup
	createdAt       int64
}

// NewSnapshot creates a snapshot whose last-completed-at is the oldest
// repaired-at among states.
func NewSnapshot(states VnodeStates, groups []ReplicaRepairGroup, createdAt int64) Snapshot {
	return NewSnapshotWithLastCompletedAt(states.LastRepairedAt(), states, groups, createdAt)
}

// NewSnapshotWithLastCompletedAt creates a snapshot carrying an explicit
// last-completed-at, for callers reusing an earlier calculation.
func NewSnapshotWithLastCompletedAt(lastCompletedAt int64, states VnodeStates, groups []ReplicaRepairGroup, createdAt int64) Snapshot {
	g := make([]ReplicaRepairGroup, len(groups))
	for i, group := range groups {
		g[i] = group.clone()
	}
	return Snapshot{
		lastCompletedAt: lastCompletedAt,
		states:          states,
		groups:          g,
		createdAt:       createdAt,
	}
}

// LastCompletedAt returns the time by which every range had been repaired,
// or Unrepaired.
func (s Snapshot) LastCompletedAt() int64 {
	return s.lastCompletedAt
}

func (s Snapshot) VnodeStates() VnodeStates {
	return s.states
}

// ReplicaRepairGroups returns the states grouped by replica set, most
// overdue first.
func (s Snapshot) ReplicaRepairGroups() []ReplicaRepairGroup {
	out := make([]ReplicaRepairGroup, len(s.groups))
	for i, g := range s.groups {
		out[i] = g.clone()
	}
	return out
}

// CreatedAt returns when the snapshot was calculated, in ms since epoch.
func (s Snapshot) CreatedAt() int64 {
	return s.createdAt
}

// IsFullyRepaired reports whether there is at least one state and every
// state has been repaired.
func (s Snapshot) IsFullyRepaired() bool {
	if s.states.Len() == 0 {
		return false
	}
	for _, st := range s.states.states {
		if !st.IsRepaired() {
			return false
		}
	}
	return true
}
