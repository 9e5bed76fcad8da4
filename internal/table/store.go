// Package table holds the in-memory download table: the canonical id map,
// the display-ordered row sequence, the sort/filter projection, and the
// selection aggregates. It is the single owner of row state; callers that
// render or reconcile read through its query methods and mutate through
// Add/Delete/Update. The map and the sequence are kept mutually
// consistent after every operation.
package table

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/basket/dlboard/internal/record"
)

// Store owns the download rows. All methods are safe for concurrent use;
// mutations are serialized by an internal mutex since stream callbacks
// and the UI loop run on different goroutines.
type Store struct {
	mu   sync.Mutex
	byID map[int64]*record.Download
	list []*record.Download // display order; index 0 renders first

	selectedCount int
	anchor        int // last individually-selected index; -1 = invalid

	sorted    bool
	sortField Field
	sortDir   Direction

	filterQuery string

	logger *slog.Logger
}

// NewStore creates an empty store. A nil logger falls back to slog.Default.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		byID:   make(map[int64]*record.Download),
		anchor: -1,
		logger: logger,
	}
}

// Add normalizes and inserts the given raw records. Entries with a
// missing or non-numeric id are skipped, as are ids already present
// (duplicates are dropped, never merged; the existing record and its
// selection state stay untouched). New rows go to the head of the display
// sequence and invalidate any active sort. The second return reports
// whether this call populated a previously empty table, which the view
// uses to suppress arrival highlights on first paint.
func (s *Store) Add(raws []record.Raw) (added []*record.Download, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first = len(s.list) == 0

	for _, raw := range raws {
		if _, ok := record.RawID(raw); !ok {
			s.logger.Warn("table: dropping record with invalid id", "raw_id", raw["id"])
			continue
		}
		d := record.Normalize(raw)
		if _, exists := s.byID[d.ID]; exists {
			continue
		}
		s.byID[d.ID] = d
		s.list = append([]*record.Download{d}, s.list...)
		added = append(added, d)
	}

	if len(added) > 0 {
		s.sorted = false
		s.anchor = -1
		if s.filterQuery != "" {
			for _, d := range added {
				d.Visible = matches(d, s.filterQuery)
			}
		}
	}
	return added, first
}

// Delete removes the given ids. Absent ids are skipped without failing
// the batch; the returned slice holds the ids actually removed. The
// display sequence is rebuilt by filtering against the surviving map
// keys rather than by index, so interleaved deletes stay consistent.
func (s *Store) Delete(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []int64
	deselected := 0
	for _, id := range ids {
		d, ok := s.byID[id]
		if !ok {
			s.logger.Warn("table: delete skipped, id not found", "id", id)
			continue
		}
		if d.Selected {
			deselected++
		}
		delete(s.byID, id)
		deleted = append(deleted, id)
	}
	if len(deleted) == 0 {
		return nil
	}

	kept := s.list[:0]
	for _, d := range s.list {
		if _, ok := s.byID[d.ID]; ok {
			kept = append(kept, d)
		}
	}
	s.list = kept
	s.anchor = -1

	if deselected > 0 {
		s.selectedCount -= deselected
		if s.selectedCount < 0 {
			s.selectedCount = 0
		}
	}
	return deleted
}

// Get returns the record for the id, or false when absent.
func (s *Store) Get(id int64) (*record.Download, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	return d, ok
}

// Update applies a patch to the record with the patch's id. The first
// return is false when the id is unknown; the second reports whether any
// allow-listed field actually changed.
func (s *Store) Update(p record.Patch) (found, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[p.ID]
	if !ok {
		return false, false
	}
	changed = d.Apply(p)
	if changed && s.filterQuery != "" {
		// Title edits can change whether the row matches the filter.
		d.Visible = matches(d, s.filterQuery)
	}
	return true, changed
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// All returns the records in display order.
func (s *Store) All() []*record.Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*record.Download, len(s.list))
	copy(out, s.list)
	return out
}

// Visible returns the records the active filter lets through.
func (s *Store) Visible() []*record.Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*record.Download
	for _, d := range s.list {
		if d.Visible {
			out = append(out, d)
		}
	}
	return out
}

// Selected returns the currently selected records in display order.
func (s *Store) Selected() []*record.Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*record.Download
	for _, d := range s.list {
		if d.Selected {
			out = append(out, d)
		}
	}
	return out
}

// Processable returns the selected records, or every record when nothing
// is selected. Bulk actions default to "act on everything" this way.
func (s *Store) Processable() []*record.Download {
	if sel := s.Selected(); len(sel) > 0 {
		return sel
	}
	return s.All()
}

// ProcessableIDs is Processable reduced to ids, deduplicated in order.
func (s *Store) ProcessableIDs() []int64 {
	recs := s.Processable()
	seen := make(map[int64]bool, len(recs))
	ids := make([]int64, 0, len(recs))
	for _, d := range recs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		ids = append(ids, d.ID)
	}
	return ids
}

// consistent reports whether map and sequence agree. Test hook.
func (s *Store) consistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byID) != len(s.list) {
		return false
	}
	seen := make(map[int64]bool, len(s.list))
	for _, d := range s.list {
		if seen[d.ID] {
			return false
		}
		seen[d.ID] = true
		if s.byID[d.ID] != d {
			return false
		}
	}
	return true
}

// sortLocked re-sorts the list with the active field and direction.
// Callers hold s.mu.
func (s *Store) sortLocked() {
	field, dir := s.sortField, s.sortDir
	sort.Slice(s.list, func(i, j int) bool {
		c := compare(s.list[i], s.list[j], field)
		if dir == Descending {
			return c > 0
		}
		return c < 0
	})
}
