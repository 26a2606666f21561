package repair

import (
	"fmt"
	"math"

	"repairstate/internal/ring"
)

// Unrepaired is the repaired-at value of a range with no repair evidence.
// It is lower than any real timestamp.
const Unrepaired int64 = math.MinInt64

// VnodeState is the repair state of one token range under its replica set.
type VnodeState struct {
	Range      ring.TokenRange
	Replicas   ring.NodeSet
	RepairedAt int64 // ms since epoch, or Unrepaired
}

// NewVnodeState creates a state repaired at repairedAt.
func NewVnodeState(r ring.TokenRange, replicas ring.NodeSet, repairedAt int64) VnodeState {
	return VnodeState{Range: r, Replicas: replicas, RepairedAt: repairedAt}
}

// NewUnrepairedState creates a state with no repair evidence.
func NewUnrepairedState(r ring.TokenRange, replicas ring.NodeSet) VnodeState {
	return NewVnodeState(r, replicas, Unrepaired)
}

// IsRepaired reports whether any repair evidence exists.
func (s VnodeState) IsRepaired() bool {
	return s.RepairedAt != Unrepaired
}

// Equal reports whether range, replicas and repaired-at all match.
func (s VnodeState) Equal(other VnodeState) bool {
	return s.Range == other.Range &&
		s.RepairedAt == other.RepairedAt &&
		s.Replicas.Equal(other.Replicas)
}

func (s VnodeState) String() string {
	if !s.IsRepaired() {
		return fmt.Sprintf("%s %s unrepaired", s.Range, s.Replicas)
	}
	return fmt.Sprintf("%s %s repaired at %d", s.Range, s.Replicas, s.RepairedAt)
}
