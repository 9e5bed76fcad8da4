package table

import "github.com/basket/dlboard/internal/record"

// HeaderState is the tri-state of the select-all checkbox.
type HeaderState int

const (
	HeaderNone HeaderState = iota // nothing selected
	HeaderSome                    // partial selection (indeterminate)
	HeaderAll                     // every record selected
)

// SetSelected sets one record's selection flag, maintaining the
// aggregate count incrementally. Unknown ids and no-op writes are
// ignored. The record becomes the range-select anchor.
func (s *Store) SetSelected(id int64, selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		s.logger.Warn("table: selection skipped, id not found", "id", id)
		return
	}
	s.setSelectedLocked(d, selected)
	for i, r := range s.list {
		if r.ID == id {
			s.anchor = i
			break
		}
	}
}

// Toggle flips one record's selection flag and moves the anchor to it.
func (s *Store) Toggle(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return
	}
	s.setSelectedLocked(d, !d.Selected)
	for i, r := range s.list {
		if r.ID == id {
			s.anchor = i
			break
		}
	}
}

// SelectRange selects (or deselects) every record between the current
// anchor and the record with the given id, inclusive, in display order.
// Without a valid anchor it degrades to a single-record select.
func (s *Store) SelectRange(id int64, selected bool) {
	s.mu.Lock()
	cur := -1
	for i, r := range s.list {
		if r.ID == id {
			cur = i
			break
		}
	}
	if cur == -1 {
		s.mu.Unlock()
		return
	}
	if s.anchor < 0 || s.anchor >= len(s.list) {
		s.mu.Unlock()
		s.SetSelected(id, selected)
		return
	}
	lo, hi := s.anchor, cur
	if lo > hi {
		lo, hi = hi, lo
	}
	for i := lo; i <= hi; i++ {
		s.setSelectedLocked(s.list[i], selected)
	}
	s.mu.Unlock()
}

// ToggleAll sets the selection flag on every currently visible record.
// Rows hidden by an active filter keep whatever state they had.
func (s *Store) ToggleAll(selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.list {
		if !d.Visible {
			continue
		}
		s.setSelectedLocked(d, selected)
	}
}

// SelectedCount returns the aggregate selection count.
func (s *Store) SelectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedCount
}

// Header returns the tri-state for the select-all checkbox. It must be
// consulted after every add, delete, and individual toggle.
func (s *Store) Header() HeaderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.selectedCount == 0:
		return HeaderNone
	case s.selectedCount == len(s.list):
		return HeaderAll
	default:
		return HeaderSome
	}
}

// setSelectedLocked is the single place the aggregate count changes.
// Callers hold s.mu. The count is clamped at zero so an out-of-order
// delete/deselect race cannot drive it negative.
func (s *Store) setSelectedLocked(d *record.Download, selected bool) {
	if d.Selected == selected {
		return
	}
	d.Selected = selected
	if selected {
		s.selectedCount++
	} else {
		s.selectedCount--
		if s.selectedCount < 0 {
			s.selectedCount = 0
		}
	}
}
