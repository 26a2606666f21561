package history

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"repairstate/internal/repair"
)

// Store is an in-memory repair history. It's thread-safe, and iterators see
// the history as it was when they were created.
type Store struct {
	mu      sync.RWMutex
	entries map[repair.TableReference][]repair.Entry // newest first, never modified in place
	logger  *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[repair.TableReference][]repair.Entry),
		logger:  logger,
	}
}

// Record adds one repair attempt of table.
func (s *Store) Record(table repair.TableReference, entry repair.Entry) error {
	return s.Import(table, []repair.Entry{entry})
}

// Import adds several repair attempts of table. Either all entries are
// added or, if one is invalid, none.
func (s *Store) Import(table repair.TableReference, entries []repair.Entry) error {
	for _, e := range entries {
		if e.Range.Start == e.Range.End {
			return fmt.Errorf("invalid history entry for %s: empty range %s", table, e.Range)
		}
	}
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[table]
	next := make([]repair.Entry, 0, len(current)+len(entries))
	next = append(next, current...)
	next = append(next, entries...)
	// Stable, so entries completed at the same time keep their recording order.
	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CompletedAt > next[j].CompletedAt
	})
	s.entries[table] = next
	return nil
}

// Prune drops the entries of table completed before the given time and
// returns how many were dropped.
func (s *Store) Prune(table repair.TableReference, before int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.entries[table]
	keep := sort.Search(len(current), func(i int) bool {
		return current[i].CompletedAt < before
	})
	dropped := len(current) - keep
	if dropped == 0 {
		return 0
	}

	if keep == 0 {
		delete(s.entries, table)
	} else {
		s.entries[table] = current[:keep:keep]
	}
	s.logger.Debug("Pruned repair history",
		zap.Stringer("table", table),
		zap.Int("dropped", dropped),
		zap.Int("kept", keep),
		zap.Int64("before", before))
	return dropped
}

// Len returns the number of entries recorded for table.
func (s *Store) Len(table repair.TableReference) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[table])
}

// Iterate returns the entries of table completed within [from, to] that
// pass accept, newest first. A from of repair.Unrepaired leaves the lower
// bound open. A nil accept passes everything.
func (s *Store) Iterate(ctx context.Context, table repair.TableReference, to, from int64, accept func(repair.Entry) bool) (repair.EntryIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := s.entries[table]
	s.mu.RUnlock()

	start := sort.Search(len(entries), func(i int) bool {
		return entries[i].CompletedAt <= to
	})
	return &iterator{
		ctx:     ctx,
		entries: entries,
		pos:     start - 1,
		from:    from,
		accept:  accept,
	}, nil
}

// iterator walks a point-in-time slice of entries.
type iterator struct {
	ctx     context.Context
	entries []repair.Entry
	pos     int
	from    int64
	accept  func(repair.Entry) bool
	err     error
	closed  bool
}

func (it *iterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for it.pos+1 < len(it.entries) {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		it.pos++
		e := it.entries[it.pos]
		if e.CompletedAt < it.from {
			it.pos = len(it.entries)
			return false
		}
		if it.accept == nil || it.accept(e) {
			return true
		}
	}
	return false
}

func (it *iterator) Entry() repair.Entry {
	return it.entries[it.pos]
}

func (it *iterator) Err() error {
	return it.err
}

func (it *iterator) Close() error {
	it.closed = true
	it.entries = nil
	return nil
}
