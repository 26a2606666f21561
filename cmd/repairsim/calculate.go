package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repairstate/internal/clock"
	"repairstate/internal/config"
	rserrors "repairstate/internal/errors"
	"repairstate/internal/history"
	"repairstate/internal/repair"
	"repairstate/internal/replication"
	"repairstate/internal/ring"
)

var (
	cycles     int
	interval   time.Duration
	subRange   bool
	timeout    time.Duration
	retries    int
	repairsPer int
)

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate repair state over a number of scheduling cycles",
	Long: `Calculate the repair state of every configured table.

Each cycle calculates a new snapshot per table from the previous one, prints
it, and then repairs the most overdue replica groups.

Examples:
  # One cycle from the seeded history
  repairsim calculate --config=repairsim.yaml

  # Ten hourly cycles, repairing two groups per cycle, tracking sub-ranges
  repairsim calculate --cycles=10 --interval=1h --repairs=2 --sub-range`,
	RunE: runCalculate,
}

func init() {
	rootCmd.AddCommand(calculateCmd)

	calculateCmd.Flags().IntVarP(&cycles, "cycles", "n", 1, "Number of scheduling cycles")
	calculateCmd.Flags().DurationVarP(&interval, "interval", "i", time.Hour, "Simulated time between cycles")
	calculateCmd.Flags().BoolVar(&subRange, "sub-range", false, "Track sub-range repairs regardless of the configured granularity")
	calculateCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout of one state calculation")
	calculateCmd.Flags().IntVar(&retries, "retries", 3, "Attempts per calculation on retryable errors")
	calculateCmd.Flags().IntVarP(&repairsPer, "repairs", "r", 1, "Replica groups repaired after each cycle")
}

// simulation is the scheduler side of the engine: it owns the collaborators
// and keeps the latest snapshot per table.
type simulation struct {
	clock     *clock.Manual
	ownership *replication.RingState
	history   *history.Store
	factory   *repair.StateFactory
	tables    []repair.TableReference
	snapshots map[repair.TableReference]*repair.Snapshot
	logger    *zap.Logger
}

func runCalculate(cmd *cobra.Command, args []string) error {
	if cycles <= 0 {
		return fmt.Errorf("--cycles must be positive")
	}
	if retries <= 0 {
		return fmt.Errorf("--retries must be positive")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if subRange {
		cfg.Repair.Granularity = repair.SubRangeGranularity.String()
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sim, err := newSimulation(cfg, clock.NewManual(time.Now()), logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	for i := 1; i <= cycles; i++ {
		if i > 1 {
			sim.clock.Advance(interval)
		}
		fmt.Fprintf(out, "cycle %d at %s\n", i, sim.clock.Now().UTC().Format(time.RFC3339))
		for _, table := range sim.tables {
			snap, err := sim.calculate(ctx, table)
			if err != nil {
				return fmt.Errorf("cycle %d: %s: %w", i, table, err)
			}
			printSnapshot(out, table, snap)
			if err := sim.repairOverdue(table, snap, repairsPer); err != nil {
				return err
			}
		}
	}
	return nil
}

func newSimulation(cfg *config.Config, clk *clock.Manual, logger *zap.Logger) (*simulation, error) {
	r, err := cfg.BuildRing()
	if err != nil {
		return nil, err
	}
	tables, err := cfg.TableReferences()
	if err != nil {
		return nil, err
	}

	ownership := replication.NewRingState(r, cfg.Replication.DefaultFactor, logger)
	for keyspace, rf := range cfg.Replication.Keyspaces {
		if err := ownership.SetReplicationFactor(keyspace, rf); err != nil {
			return nil, err
		}
	}
	for _, t := range tables {
		ownership.RegisterTable(t)
	}

	store := history.NewStore(logger)
	seeded, err := cfg.HistoryEntries(clk.Now())
	if err != nil {
		return nil, err
	}
	for t, entries := range seeded {
		if err := store.Import(t, entries); err != nil {
			return nil, fmt.Errorf("failed to import history of %s: %w", t, err)
		}
	}

	logger.Info("Simulation ready",
		zap.Int("nodes", len(r.GetNodes())),
		zap.Int("tokens", len(r.Tokens())),
		zap.Int("tables", len(tables)),
		zap.String("granularity", cfg.Repair.Granularity))

	return &simulation{
		clock:     clk,
		ownership: ownership,
		history:   store,
		factory:   repair.NewStateFactory(ownership, store, cfg.FactoryOptions(clk, logger)),
		tables:    tables,
		snapshots: make(map[repair.TableReference]*repair.Snapshot),
		logger:    logger,
	}, nil
}

// calculate runs one state calculation for table, retrying retryable
// failures. The previous snapshot is only replaced on success.
func (s *simulation) calculate(ctx context.Context, table repair.TableReference) (repair.Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		snap, err := s.factory.CalculateNewState(callCtx, table, s.snapshots[table])
		cancel()
		if err == nil {
			s.snapshots[table] = &snap
			return snap, nil
		}

		lastErr = err
		if !rserrors.IsRetryable(err) {
			return repair.Snapshot{}, err
		}
		s.logger.Warn("Retrying state calculation",
			zap.Stringer("table", table),
			zap.Int("attempt", attempt),
			zap.Stringer("code", rserrors.Code(err)),
			zap.Error(err))
	}
	return repair.Snapshot{}, fmt.Errorf("giving up after %d attempts: %w", retries, lastErr)
}

// repairOverdue records successful repairs of the n most overdue replica
// groups at the current time.
func (s *simulation) repairOverdue(table repair.TableReference, snap repair.Snapshot, n int) error {
	now := clock.NowMillis(s.clock)
	for i, g := range snap.ReplicaRepairGroups() {
		if i >= n {
			break
		}
		for _, r := range g.Ranges {
			if err := s.history.Record(table, repair.NewEntry(r, now, g.Replicas, repair.StatusSuccess)); err != nil {
				return err
			}
		}
		s.logger.Debug("Repaired replica group",
			zap.Stringer("table", table),
			zap.Stringer("replicas", g.Replicas),
			zap.Int("ranges", len(g.Ranges)))
	}
	return nil
}

func printSnapshot(out io.Writer, table repair.TableReference, snap repair.Snapshot) {
	fmt.Fprintf(out, "%s: %d states, last completed %s\n",
		table, snap.VnodeStates().Len(), formatMillis(snap.LastCompletedAt()))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  RANGE\tREPLICAS\tREPAIRED AT")
	for _, st := range snap.VnodeStates().States() {
		fmt.Fprintf(w, "  %s\t%s\t%s\n", st.Range, replicaIDs(st.Replicas), formatMillis(st.RepairedAt))
	}
	_ = w.Flush()
}

func replicaIDs(s ring.NodeSet) string {
	ids := make([]string, 0, s.Len())
	for _, n := range s.Nodes() {
		ids = append(ids, n.ID)
	}
	return strings.Join(ids, ",")
}

func formatMillis(ms int64) string {
	if ms == repair.Unrepaired {
		return "never"
	}
	return clock.FromMillis(ms).UTC().Format(time.RFC3339)
}
