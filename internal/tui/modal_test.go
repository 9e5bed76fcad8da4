package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/basket/dlboard/internal/record"
)

func typeInto(m *editModal, text string) {
	for _, r := range text {
		m.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestEditModal_EscCancels(t *testing.T) {
	m := newEditModal([]int64{1})
	typeInto(&m, "new title")
	done, patches := m.update(tea.KeyMsg{Type: tea.KeyEsc})
	if !done || patches != nil {
		t.Fatalf("done = %v, patches = %v", done, patches)
	}
}

func TestEditModal_EmptyFieldsProduceNoPatches(t *testing.T) {
	m := newEditModal([]int64{1, 2})
	// tab to the Apply button and submit without touching anything
	for i := 0; i < 3; i++ {
		m.update(tea.KeyMsg{Type: tea.KeyTab})
	}
	done, patches := m.update(tea.KeyMsg{Type: tea.KeyEnter})
	if !done {
		t.Fatal("submit should close the modal")
	}
	if patches != nil {
		t.Fatalf("patches = %v, want none", patches)
	}
}

func TestEditModal_TitleAndStatusPatch(t *testing.T) {
	m := newEditModal([]int64{7, 8})
	typeInto(&m, "renamed")
	m.update(tea.KeyMsg{Type: tea.KeyTab}) // media type
	m.update(tea.KeyMsg{Type: tea.KeyTab}) // status
	m.update(tea.KeyMsg{Type: tea.KeyRight})
	m.update(tea.KeyMsg{Type: tea.KeyTab}) // button
	done, patches := m.update(tea.KeyMsg{Type: tea.KeyEnter})
	if !done || len(patches) != 2 {
		t.Fatalf("done = %v, patches = %v", done, patches)
	}
	for i, p := range patches {
		if p.Title == nil || *p.Title != "renamed" {
			t.Errorf("patch %d title = %v", i, p.Title)
		}
		if p.MediaType != nil {
			t.Errorf("patch %d media type should stay unset", i)
		}
		if p.Status == nil || *p.Status != record.StatusPending {
			t.Errorf("patch %d status = %v", i, p.Status)
		}
	}
	if patches[0].ID != 7 || patches[1].ID != 8 {
		t.Errorf("ids = %d, %d", patches[0].ID, patches[1].ID)
	}
}

func TestEditModal_OptionCycleWrapsToKeep(t *testing.T) {
	m := newEditModal([]int64{1})
	m.update(tea.KeyMsg{Type: tea.KeyTab}) // media type
	m.update(tea.KeyMsg{Type: tea.KeyLeft})
	if m.mediaLabel() != record.MediaText.Label() {
		t.Fatalf("left from keep wraps to last option, got %q", m.mediaLabel())
	}
	m.update(tea.KeyMsg{Type: tea.KeyRight})
	if m.mediaLabel() != keepLabel {
		t.Fatalf("label = %q, want %q", m.mediaLabel(), keepLabel)
	}
}
