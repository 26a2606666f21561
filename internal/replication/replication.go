package replication

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"repairstate/internal/repair"
	"repairstate/internal/ring"
)

// DefaultReplicationFactor is used for keyspaces without an explicit factor.
const DefaultReplicationFactor = 3

// ReplicasForToken returns the N replicas responsible for token
// using the ring's preference list.
func ReplicasForToken(r *ring.Ring, token int64, replicationFactor int) ring.NodeSet {
	if replicationFactor <= 0 {
		replicationFactor = DefaultReplicationFactor
	}
	return ring.NewNodeSet(r.PreferenceList(token, replicationFactor)...)
}

// RingState reports table ownership from a token ring. Each range is
// replicated on the first N distinct nodes clockwise from its owner, where N
// is the replication factor of the table's keyspace. It is safe for
// concurrent use.
type RingState struct {
	ring *ring.Ring

	mu            sync.RWMutex
	defaultFactor int
	factors       map[string]int // keyspace -> replication factor
	tables        map[repair.TableReference]bool
	logger        *zap.Logger
}

// NewRingState creates a replication state over r.
func NewRingState(r *ring.Ring, defaultFactor int, logger *zap.Logger) *RingState {
	if defaultFactor <= 0 {
		defaultFactor = DefaultReplicationFactor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RingState{
		ring:          r,
		defaultFactor: defaultFactor,
		factors:       make(map[string]int),
		tables:        make(map[repair.TableReference]bool),
		logger:        logger,
	}
}

// SetReplicationFactor sets the replication factor of keyspace.
func (s *RingState) SetReplicationFactor(keyspace string, factor int) error {
	if keyspace == "" {
		return fmt.Errorf("keyspace cannot be empty")
	}
	if factor <= 0 {
		return fmt.Errorf("invalid replication factor %d for keyspace %s", factor, keyspace)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factors[keyspace] = factor
	return nil
}

// ReplicationFactor returns the replication factor of keyspace.
func (s *RingState) ReplicationFactor(keyspace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.factors[keyspace]; ok {
		return f
	}
	return s.defaultFactor
}

// RegisterTable makes table known. Unknown tables own no ranges.
func (s *RingState) RegisterTable(table repair.TableReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = true
}

// DropTable forgets table.
func (s *RingState) DropTable(table repair.TableReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
}

// Tables returns the registered tables in name order.
func (s *RingState) Tables() []repair.TableReference {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tables := make([]repair.TableReference, 0, len(s.tables))
	for t := range s.tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool {
		return tables[i].String() < tables[j].String()
	})
	return tables
}

// TokenRangeToReplicas returns the current ownership of table ordered by
// range start.
func (s *RingState) TokenRangeToReplicas(ctx context.Context, table repair.TableReference) ([]repair.RangeReplicas, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	known := s.tables[table]
	s.mu.RUnlock()
	if !known {
		s.logger.Debug("No ownership for unknown table", zap.Stringer("table", table))
		return []repair.RangeReplicas{}, nil
	}

	ranges := s.ring.ReplicatedRanges(s.ReplicationFactor(table.Keyspace))
	out := make([]repair.RangeReplicas, len(ranges))
	for i, rr := range ranges {
		out[i] = repair.RangeReplicas{
			Range:    rr.Range,
			Replicas: ring.NewNodeSet(rr.Replicas...),
		}
	}
	return out, nil
}
