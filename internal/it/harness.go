package it

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"repairstate/internal/clock"
	"repairstate/internal/history"
	"repairstate/internal/repair"
	"repairstate/internal/replication"
	"repairstate/internal/ring"
)

// ClusterOptions configures a test cluster
type ClusterOptions struct {
	Granularity       repair.Granularity
	ReplicationFactor int
	HistoryLookback   time.Duration
	Start             time.Time
}

// Cluster is an in-process cluster: a token ring, its replication state, a
// repair history and a state factory sharing one manual clock. It keeps the
// latest snapshot of every table like a scheduler would.
type Cluster struct {
	mu        sync.Mutex
	ring      *ring.Ring
	ownership *faultyReplication
	history   *history.Store
	clock     *clock.Manual
	factory   *repair.StateFactory
	snapshots map[repair.TableReference]*repair.Snapshot
	logger    *zap.Logger
}

// NewCluster creates an empty test cluster harness
func NewCluster(logger *zap.Logger, opts ClusterOptions) *Cluster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	r := ring.NewRing(1)
	clk := clock.NewManual(opts.Start)
	ownership := &faultyReplication{RingState: replication.NewRingState(r, opts.ReplicationFactor, logger)}
	store := history.NewStore(logger)

	return &Cluster{
		ring:      r,
		ownership: ownership,
		history:   store,
		clock:     clk,
		factory: repair.NewStateFactory(ownership, store, repair.FactoryOptions{
			Granularity:     opts.Granularity,
			HistoryLookback: opts.HistoryLookback,
			Clock:           clk,
			Logger:          logger,
		}),
		snapshots: make(map[repair.TableReference]*repair.Snapshot),
		logger:    logger,
	}
}

// StartNode adds a node owning the given tokens
func (c *Cluster) StartNode(nodeID string, tokens ...int64) error {
	node := ring.Node{ID: nodeID, Addr: addrOf(nodeID)}
	if err := c.ring.AddNodeWithTokens(node, tokens); err != nil {
		return fmt.Errorf("failed to start node %s: %w", nodeID, err)
	}
	c.logger.Debug("Started node", zap.String("node_id", nodeID), zap.Int64s("tokens", tokens))
	return nil
}

// StartCluster starts a 3-node cluster: n1 at -100, n2 at 0 and n3 at 100
func (c *Cluster) StartCluster() error {
	for i, token := range []int64{-100, 0, 100} {
		if err := c.StartNode(fmt.Sprintf("n%d", i+1), token); err != nil {
			return err
		}
	}
	return nil
}

// GetNode returns a node by ID
func (c *Cluster) GetNode(nodeID string) (ring.Node, bool) {
	for _, n := range c.ring.GetNodes() {
		if n.ID == nodeID {
			return n, true
		}
	}
	return ring.Node{}, false
}

// KillNode removes a node and its tokens from the ring
func (c *Cluster) KillNode(nodeID string) error {
	if _, ok := c.GetNode(nodeID); !ok {
		return fmt.Errorf("node %s not found", nodeID)
	}
	c.ring.RemoveNode(nodeID)
	return nil
}

// ReplaceNode hands the tokens of oldID to a new node
func (c *Cluster) ReplaceNode(oldID, newID string) error {
	if err := c.ring.ReplaceNode(oldID, ring.Node{ID: newID, Addr: addrOf(newID)}); err != nil {
		return fmt.Errorf("failed to replace node %s: %w", oldID, err)
	}
	return nil
}

// AddTable registers a table with the given replication factor, or the
// cluster default if rf is zero
func (c *Cluster) AddTable(table repair.TableReference, rf int) error {
	if rf > 0 {
		if err := c.ownership.SetReplicationFactor(table.Keyspace, rf); err != nil {
			return err
		}
	}
	c.ownership.RegisterTable(table)
	return nil
}

// Ownership returns the current ownership of table
func (c *Cluster) Ownership(ctx context.Context, table repair.TableReference) ([]repair.RangeReplicas, error) {
	return c.ownership.TokenRangeToReplicas(ctx, table)
}

// Repair records a repair of r by the replicas currently owning it,
// completed now
func (c *Cluster) Repair(ctx context.Context, table repair.TableReference, r ring.TokenRange, status repair.Status) error {
	owned, err := c.Ownership(ctx, table)
	if err != nil {
		return err
	}
	for _, o := range owned {
		if o.Range.Covers(r) {
			return c.history.Record(table, repair.NewEntry(r, clock.NowMillis(c.clock), o.Replicas, status))
		}
	}
	return fmt.Errorf("no owned range of %s covers %s", table, r)
}

// RepairAll successfully repairs every owned range of table
func (c *Cluster) RepairAll(ctx context.Context, table repair.TableReference) error {
	owned, err := c.Ownership(ctx, table)
	if err != nil {
		return err
	}
	for _, o := range owned {
		if err := c.Repair(ctx, table, o.Range, repair.StatusSuccess); err != nil {
			return err
		}
	}
	return nil
}

// Advance moves the cluster clock forward
func (c *Cluster) Advance(d time.Duration) int64 {
	return clock.Millis(c.clock.Advance(d))
}

// Now returns the cluster clock in ms since epoch
func (c *Cluster) Now() int64 {
	return clock.NowMillis(c.clock)
}

// Cycle calculates a new snapshot of table from the last one and keeps it.
// On error the last snapshot is kept.
func (c *Cluster) Cycle(ctx context.Context, table repair.TableReference) (repair.Snapshot, error) {
	c.mu.Lock()
	previous := c.snapshots[table]
	c.mu.Unlock()

	snap, err := c.factory.CalculateNewState(ctx, table, previous)
	if err != nil {
		return repair.Snapshot{}, err
	}

	c.mu.Lock()
	c.snapshots[table] = &snap
	c.mu.Unlock()
	return snap, nil
}

// Snapshot returns the last snapshot of table, or nil
func (c *Cluster) Snapshot(table repair.TableReference) *repair.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshots[table]
}

// ForgetSnapshots drops every kept snapshot, as after a scheduler restart
func (c *Cluster) ForgetSnapshots() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = make(map[repair.TableReference]*repair.Snapshot)
}

// FailOwnership makes ownership lookups fail with err until cleared with nil
func (c *Cluster) FailOwnership(err error) {
	c.ownership.fail(err)
}

// History returns the cluster's repair history
func (c *Cluster) History() *history.Store {
	return c.history
}

func addrOf(nodeID string) string {
	return nodeID + ".cluster.local:9042"
}

// faultyReplication is a RingState whose lookups can be made to fail.
type faultyReplication struct {
	*replication.RingState

	mu  sync.Mutex
	err error
}

func (f *faultyReplication) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *faultyReplication) TokenRangeToReplicas(ctx context.Context, table repair.TableReference) ([]repair.RangeReplicas, error) {
	f.mu.Lock()
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.RingState.TokenRangeToReplicas(ctx, table)
}
