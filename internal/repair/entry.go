package repair

import (
	"fmt"
	"strings"

	"repairstate/internal/ring"
)

// TableReference names a table.
type TableReference struct {
	Keyspace string
	Table    string
}

// ParseTableReference parses "keyspace.table".
func ParseTableReference(s string) (TableReference, error) {
	ks, tb, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || ks == "" || tb == "" || strings.Contains(tb, ".") {
		return TableReference{}, fmt.Errorf("invalid table reference %q (expected keyspace.table)", s)
	}
	return TableReference{Keyspace: ks, Table: tb}, nil
}

func (t TableReference) String() string {
	return t.Keyspace + "." + t.Table
}

// Status is the outcome of a repair attempt.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus parses SUCCESS or FAILED, ignoring case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCESS":
		return StatusSuccess, nil
	case "FAILED":
		return StatusFailed, nil
	}
	return 0, fmt.Errorf("unknown repair status %q", s)
}

// Entry is one observed repair attempt of a token range.
type Entry struct {
	Range       ring.TokenRange
	CompletedAt int64 // ms since epoch
	Replicas    ring.NodeSet
	Status      Status
}

// NewEntry creates a repair history entry.
func NewEntry(r ring.TokenRange, completedAt int64, replicas ring.NodeSet, status Status) Entry {
	return Entry{
		Range:       r,
		CompletedAt: completedAt,
		Replicas:    replicas,
		Status:      status,
	}
}

// IsSuccessful reports whether the attempt succeeded.
func (e Entry) IsSuccessful() bool {
	return e.Status == StatusSuccess
}

// Equal reports whether all fields match, comparing replicas as sets.
func (e Entry) Equal(other Entry) bool {
	return e.Range == other.Range &&
		e.CompletedAt == other.CompletedAt &&
		e.Status == other.Status &&
		e.Replicas.Equal(other.Replicas)
}

func (e Entry) String() string {
	return fmt.Sprintf("%s@%d %s %s", e.Range, e.CompletedAt, e.Replicas, e.Status)
}
