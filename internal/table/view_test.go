package table

import (
	"testing"

	"github.com/basket/dlboard/internal/record"
)

func ids(recs []*record.Download) []int64 {
	out := make([]int64, len(recs))
	for i, d := range recs {
		out[i] = d.ID
	}
	return out
}

func eq(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSort_ByTitleCaseFolded(t *testing.T) {
	s := newStore(t, raw(1, "banana"), raw(2, "Apple"), raw(3, "cherry"))

	s.Sort(FieldTitle, Ascending)
	if got := ids(s.All()); !eq(got, []int64{2, 1, 3}) {
		t.Fatalf("ascending = %v, want [2 1 3]", got)
	}
	s.Sort(FieldTitle, Descending)
	if got := ids(s.All()); !eq(got, []int64{3, 1, 2}) {
		t.Fatalf("descending = %v, want [3 1 2]", got)
	}
}

func TestToggleSort_FlipAndReset(t *testing.T) {
	s := newStore(t, raw(2, "b"), raw(1, "a"), raw(3, "c"))

	s.ToggleSort(FieldID)
	if st := s.SortState(); !st.Active || st.Direction != Ascending {
		t.Fatalf("first toggle: %+v, want active ascending", st)
	}
	if got := ids(s.All()); !eq(got, []int64{1, 2, 3}) {
		t.Fatalf("order = %v", got)
	}

	// Same field again reverses.
	s.ToggleSort(FieldID)
	if st := s.SortState(); st.Direction != Descending {
		t.Fatalf("second toggle: %+v, want descending", st)
	}
	if got := ids(s.All()); !eq(got, []int64{3, 2, 1}) {
		t.Fatalf("order = %v", got)
	}

	// Switching field resets to ascending.
	s.ToggleSort(FieldTitle)
	if st := s.SortState(); st.Field != FieldTitle || st.Direction != Ascending {
		t.Fatalf("field switch: %+v, want title ascending", st)
	}
}

func TestAdd_InvalidatesSort(t *testing.T) {
	s := newStore(t, raw(1, "a"), raw(2, "b"))
	s.Sort(FieldID, Ascending)
	s.Add([]record.Raw{raw(3, "c")})

	if st := s.SortState(); st.Active {
		t.Fatal("adding rows must mark the sort stale")
	}
	// New row still lands at the head.
	if got := s.All()[0].ID; got != 3 {
		t.Fatalf("head = %d, want 3", got)
	}
}

func TestFilter_SubstringCaseInsensitive(t *testing.T) {
	s := newStore(t, raw(1, "Alpha Report"), raw(2, "beta"), raw(3, "GAMMA alpha"))

	s.Filter("ALPHA")
	if got := ids(s.Visible()); !eq(got, []int64{3, 1}) {
		t.Fatalf("visible = %v, want [3 1]", got)
	}

	// Matching the formatted id works too.
	s.Filter("#2")
	if got := ids(s.Visible()); !eq(got, []int64{2}) {
		t.Fatalf("visible = %v, want [2]", got)
	}
}

func TestFilter_EmptyQueryRestoresAll(t *testing.T) {
	// The query must not collide with the shared fixture URL, which is
	// part of every record's search index.
	s := newStore(t, raw(1, "red"), raw(2, "green"), raw(3, "blue"))

	s.Filter("red")
	if got := len(s.Visible()); got != 1 {
		t.Fatalf("visible = %d, want 1", got)
	}
	s.Filter("   ")
	if got := len(s.Visible()); got != 3 {
		t.Fatalf("visible after empty query = %d, want all 3 (including never-matched)", got)
	}
}

func TestFilter_PreservesHiddenSelection(t *testing.T) {
	s := newStore(t, raw(1, "visible"), raw(5, "hidden gem"))
	s.SetSelected(5, true)

	s.Filter("visible")
	d, _ := s.Get(5)
	if d.Visible {
		t.Fatal("id 5 should be filtered out")
	}
	if !d.Selected {
		t.Fatal("hidden row must keep its selection")
	}

	s.Filter("")
	d, _ = s.Get(5)
	if !d.Visible || !d.Selected {
		t.Fatal("row must reappear still selected")
	}
}

func TestFilter_AppliesToNewArrivals(t *testing.T) {
	s := newStore(t, raw(1, "match me"))
	s.Filter("match")

	s.Add([]record.Raw{raw(2, "no hit"), raw(3, "another match")})
	if got := ids(s.Visible()); !eq(got, []int64{3, 1}) {
		t.Fatalf("visible = %v, want [3 1]", got)
	}
}

func TestUpdate_TitleChangeRefreshesFilterMatch(t *testing.T) {
	s := newStore(t, raw(1, "old name"))
	s.Filter("old")

	s.Update(record.Patch{ID: 1, Title: strPtr("new name")})
	d, _ := s.Get(1)
	if d.Visible {
		t.Fatal("renamed row no longer matches the filter")
	}
	if d.SearchIndex != "new name https://example.com/dl #1" {
		t.Fatalf("SearchIndex = %q, want recomputed from new title", d.SearchIndex)
	}
}
