package table

import (
	"strings"

	"github.com/basket/dlboard/internal/record"
)

// Field names a sortable column.
type Field int

const (
	FieldSelected Field = iota
	FieldID
	FieldMediaType
	FieldTitle
	FieldURL
	FieldStartTime
	FieldEndTime
	FieldUpdateTime
	FieldStatus
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// SortState describes the active sort for indicator rendering.
type SortState struct {
	Active    bool
	Field     Field
	Direction Direction
}

// Sort orders the display sequence by the given field and direction
// using precomputed sort keys. Equal keys keep whatever relative order
// the comparator produces; only distinct keys have a guaranteed order.
func (s *Store) Sort(field Field, dir Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortField = field
	s.sortDir = dir
	s.sorted = true
	s.anchor = -1
	s.sortLocked()
}

// ToggleSort sorts by the field, flipping direction when it is already
// the active ascending sort and resetting to ascending otherwise.
func (s *Store) ToggleSort(field Field) {
	s.mu.Lock()
	active := s.sorted && s.sortField == field && s.sortDir == Ascending
	s.mu.Unlock()

	if active {
		s.Sort(field, Descending)
		return
	}
	s.Sort(field, Ascending)
}

// SortState returns the active sort, if any.
func (s *Store) SortState() SortState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SortState{Active: s.sorted, Field: s.sortField, Direction: s.sortDir}
}

// Filter sets row visibility from a case-insensitive substring match
// against each record's search index. An empty or whitespace query makes
// every row visible. Filtering never removes records, so selection state
// on hidden rows survives until they reappear.
func (s *Store) Filter(query string) {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterQuery = q
	s.anchor = -1
	for _, d := range s.list {
		if q == "" {
			d.Visible = true
			continue
		}
		d.Visible = matches(d, q)
	}
}

// FilterQuery returns the active (normalized) filter query.
func (s *Store) FilterQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterQuery
}

func matches(d *record.Download, normalizedQuery string) bool {
	return strings.Contains(d.SearchIndex, normalizedQuery)
}

// compare orders a before b for ascending sorts: negative when a sorts
// first, positive when b does.
func compare(a, b *record.Download, field Field) int {
	switch field {
	case FieldSelected:
		return boolCmp(a.Selected, b.Selected)
	case FieldID:
		return intCmp(a.ID, b.ID)
	case FieldMediaType:
		return intCmp(int64(a.MediaType), int64(b.MediaType))
	case FieldTitle:
		return strings.Compare(a.SortTitle, b.SortTitle)
	case FieldURL:
		return strings.Compare(a.URL, b.URL)
	case FieldStartTime:
		return intCmp(a.StartTime, b.StartTime)
	case FieldEndTime:
		return intCmp(a.EndTime, b.EndTime)
	case FieldUpdateTime:
		return intCmp(a.UpdateTime, b.UpdateTime)
	case FieldStatus:
		return intCmp(int64(a.Status), int64(b.Status))
	default:
		return 0
	}
}

func intCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolCmp(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}
