package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"repairstate/internal/clock"
	"repairstate/internal/repair"
	"repairstate/internal/ring"
)

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string
	Addr string
}

// Config holds the repair state simulation configuration.
type Config struct {
	Repair      RepairConfig      `yaml:"repair"`
	Ring        RingConfig        `yaml:"ring"`
	Replication ReplicationConfig `yaml:"replication"`
	Tables      []string          `yaml:"tables"`
	History     []HistoryRecord   `yaml:"history"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RepairConfig holds state calculation settings
type RepairConfig struct {
	Granularity     string        `yaml:"granularity"`
	HistoryLookback time.Duration `yaml:"history_lookback"`
}

// RingConfig holds token ring membership
type RingConfig struct {
	VNodes int          `yaml:"vnodes"`
	Nodes  []NodeConfig `yaml:"nodes"`
	// Peers is an "id1=addr1,id2=addr2" shorthand for nodes with generated tokens.
	Peers string `yaml:"peers"`
}

// NodeConfig is one ring member. Without tokens the node gets generated ones.
type NodeConfig struct {
	ID     string  `yaml:"id"`
	Addr   string  `yaml:"addr"`
	Tokens []int64 `yaml:"tokens"`
}

// ReplicationConfig holds replication factors
type ReplicationConfig struct {
	DefaultFactor int            `yaml:"default_factor"`
	Keyspaces     map[string]int `yaml:"keyspaces"`
}

// HistoryRecord is one seeded repair attempt. Exactly one of CompletedAt
// (ms since epoch) and Age (before the start of the run) must be set.
type HistoryRecord struct {
	Table       string        `yaml:"table"`
	Start       int64         `yaml:"start"`
	End         int64         `yaml:"end"`
	Replicas    []string      `yaml:"replicas"` // node IDs
	Status      string        `yaml:"status"`
	CompletedAt int64         `yaml:"completed_at"`
	Age         time.Duration `yaml:"age"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses, defaults and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if not specified
	setDefaults(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Repair.Granularity == "" {
		cfg.Repair.Granularity = repair.VnodeGranularity.String()
	}
	if cfg.Ring.VNodes == 0 {
		cfg.Ring.VNodes = 16
	}
	if cfg.Replication.DefaultFactor == 0 {
		cfg.Replication.DefaultFactor = 3
	}
	for i := range cfg.History {
		if cfg.History[i].Status == "" {
			cfg.History[i].Status = repair.StatusSuccess.String()
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := repair.ParseGranularity(c.Repair.Granularity); err != nil {
		return fmt.Errorf("repair.granularity: %w", err)
	}
	if c.Repair.HistoryLookback < 0 {
		return fmt.Errorf("repair.history_lookback cannot be negative")
	}

	if c.Ring.VNodes < 1 {
		return fmt.Errorf("ring.vnodes must be positive")
	}
	nodes, err := c.ringNodes()
	if err != nil {
		return err
	}
	ids := make(map[string]bool, len(nodes))
	addrs := make(map[string]bool, len(nodes))
	tokens := make(map[int64]string)
	for _, n := range nodes {
		if n.ID == "" || n.Addr == "" {
			return fmt.Errorf("ring.nodes: node ID and address cannot be empty")
		}
		if ids[n.ID] || addrs[n.Addr] {
			return fmt.Errorf("ring.nodes: duplicate node %s", n.ID)
		}
		ids[n.ID], addrs[n.Addr] = true, true
		for _, t := range n.Tokens {
			if owner, taken := tokens[t]; taken {
				return fmt.Errorf("ring.nodes: token %d assigned to both %s and %s", t, owner, n.ID)
			}
			tokens[t] = n.ID
		}
	}

	if c.Replication.DefaultFactor < 1 {
		return fmt.Errorf("replication.default_factor must be positive")
	}
	for ks, rf := range c.Replication.Keyspaces {
		if rf < 1 {
			return fmt.Errorf("replication.keyspaces.%s must be positive", ks)
		}
	}

	if _, err := c.TableReferences(); err != nil {
		return err
	}
	for i, h := range c.History {
		if _, err := c.historyEntry(h, ids, 0); err != nil {
			return fmt.Errorf("history[%d]: %w", i, err)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// ringNodes merges ring.nodes and ring.peers. Peers repeating a node ID
// are skipped.
func (c *Config) ringNodes() ([]NodeConfig, error) {
	peers, err := ParsePeers(c.Ring.Peers)
	if err != nil {
		return nil, fmt.Errorf("ring.peers: %w", err)
	}

	nodes := make([]NodeConfig, 0, len(c.Ring.Nodes)+len(peers))
	nodes = append(nodes, c.Ring.Nodes...)
	for _, peer := range peers {
		known := false
		for _, n := range c.Ring.Nodes {
			known = known || n.ID == peer.ID
		}
		if !known {
			nodes = append(nodes, NodeConfig{ID: peer.ID, Addr: peer.Addr})
		}
	}
	return nodes, nil
}

// BuildRingNodes converts configured nodes and peers into ring.Node slice.
func (c *Config) BuildRingNodes() []ring.Node {
	nodes, _ := c.ringNodes()
	out := make([]ring.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ring.Node{ID: n.ID, Addr: n.Addr})
	}
	return out
}

// BuildRing creates the token ring. Nodes with configured tokens keep them;
// the others get generated tokens.
func (c *Config) BuildRing() (*ring.Ring, error) {
	nodes, err := c.ringNodes()
	if err != nil {
		return nil, err
	}

	r := ring.NewRing(c.Ring.VNodes)
	for _, n := range nodes {
		node := ring.Node{ID: n.ID, Addr: n.Addr}
		if len(n.Tokens) == 0 {
			r.AddNode(node)
			continue
		}
		if err := r.AddNodeWithTokens(node, n.Tokens); err != nil {
			return nil, fmt.Errorf("ring.nodes: %w", err)
		}
	}
	return r, nil
}

// TableReferences parses the configured tables.
func (c *Config) TableReferences() ([]repair.TableReference, error) {
	tables := make([]repair.TableReference, 0, len(c.Tables))
	for _, t := range c.Tables {
		ref, err := repair.ParseTableReference(t)
		if err != nil {
			return nil, fmt.Errorf("tables: %w", err)
		}
		tables = append(tables, ref)
	}
	return tables, nil
}

// HistoryEntries converts the seeded history into entries per table. Ages
// are taken relative to start.
func (c *Config) HistoryEntries(start time.Time) (map[repair.TableReference][]repair.Entry, error) {
	ids := make(map[string]bool)
	for _, n := range c.BuildRingNodes() {
		ids[n.ID] = true
	}

	out := make(map[repair.TableReference][]repair.Entry)
	for i, h := range c.History {
		e, err := c.historyEntry(h, ids, clock.Millis(start))
		if err != nil {
			return nil, fmt.Errorf("history[%d]: %w", i, err)
		}
		table, _ := repair.ParseTableReference(h.Table)
		out[table] = append(out[table], e)
	}
	return out, nil
}

func (c *Config) historyEntry(h HistoryRecord, ids map[string]bool, start int64) (repair.Entry, error) {
	if _, err := repair.ParseTableReference(h.Table); err != nil {
		return repair.Entry{}, err
	}
	r, err := ring.NewTokenRange(h.Start, h.End)
	if err != nil {
		return repair.Entry{}, err
	}
	status, err := repair.ParseStatus(h.Status)
	if err != nil {
		return repair.Entry{}, err
	}
	if (h.CompletedAt == 0) == (h.Age == 0) {
		return repair.Entry{}, fmt.Errorf("exactly one of completed_at and age must be set")
	}
	if h.Age < 0 {
		return repair.Entry{}, fmt.Errorf("age cannot be negative")
	}
	if len(h.Replicas) == 0 {
		return repair.Entry{}, fmt.Errorf("replicas cannot be empty")
	}

	byID := make(map[string]ring.Node)
	for _, n := range c.BuildRingNodes() {
		byID[n.ID] = n
	}
	nodes := make([]ring.Node, 0, len(h.Replicas))
	for _, id := range h.Replicas {
		if !ids[id] {
			return repair.Entry{}, fmt.Errorf("unknown replica %s", id)
		}
		nodes = append(nodes, byID[id])
	}

	completedAt := h.CompletedAt
	if h.Age > 0 {
		completedAt = start - h.Age.Milliseconds()
	}
	return repair.NewEntry(r, completedAt, ring.NewNodeSet(nodes...), status), nil
}

// FactoryOptions maps the repair section onto repair.FactoryOptions.
func (c *Config) FactoryOptions(clk clock.Clock, logger *zap.Logger) repair.FactoryOptions {
	g, _ := repair.ParseGranularity(c.Repair.Granularity)
	return repair.FactoryOptions{
		Granularity:     g,
		HistoryLookback: c.Repair.HistoryLookback,
		Clock:           clk,
		Logger:          logger,
	}
}

// NewLogger builds a zap logger from the logging section.
func (c LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
