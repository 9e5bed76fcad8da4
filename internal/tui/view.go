package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/basket/dlboard/internal/record"
	"github.com/basket/dlboard/internal/table"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	cursorStyle    = lipgloss.NewStyle().Reverse(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// column layout: sel(3) id(8) title(flex) type(9) status(12) updated(19)
const fixedColumns = 3 + 1 + 8 + 1 + 9 + 1 + 12 + 1 + 19 + 1

func (m dashModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.mode {
	case modeStats:
		b.WriteString(m.renderStats())
		return b.String()
	case modeConfirmDelete:
		b.WriteString(m.renderRows())
		b.WriteString("\n")
		b.WriteString(m.renderConfirm())
	case modeEdit:
		b.WriteString(m.edit.view())
		b.WriteString("\n")
	default:
		b.WriteString(m.renderRows())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	return b.String()
}

func (m dashModel) renderHeader() string {
	check := "[ ]"
	switch m.store.Header() {
	case table.HeaderSome:
		check = "[-]"
	case table.HeaderAll:
		check = "[x]"
	}

	cols := []struct {
		field table.Field
		label string
		width int
	}{
		{table.FieldSelected, check, 3},
		{table.FieldID, "ID", 8},
		{table.FieldTitle, "Title", m.titleWidth()},
		{table.FieldMediaType, "Type", 9},
		{table.FieldUpdateTime, "Updated", 19},
		{table.FieldStatus, "Status", 12},
	}

	sort := m.store.SortState()
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		label := col.label
		if sort.Active && sort.Field == col.field {
			if sort.Direction == table.Ascending {
				label += " ▲"
			} else {
				label += " ▼"
			}
		}
		parts = append(parts, pad(label, col.width))
	}
	return headerStyle.Render(strings.Join(parts, " "))
}

func (m dashModel) renderRows() string {
	visible := m.store.Visible()
	if len(visible) == 0 {
		if m.store.Len() == 0 {
			return dimStyle.Render("  no downloads") + "\n"
		}
		return dimStyle.Render("  no matches for filter") + "\n"
	}

	available := m.height - 5 // header, filter line, status bar, margins
	if available < 3 {
		available = 3
	}
	start := 0
	if m.cursor >= available {
		start = m.cursor - available + 1
	}
	end := start + available
	if end > len(visible) {
		end = len(visible)
	}

	var b strings.Builder
	now := time.Now()
	for i := start; i < end; i++ {
		line := m.renderRow(visible[i], now)
		if i == m.cursor {
			line = cursorStyle.Render(line)
		} else if until, ok := m.highlights[visible[i].ID]; ok && now.Before(until) {
			line = highlightStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m dashModel) renderRow(d *record.Download, _ time.Time) string {
	check := "[ ]"
	if d.Selected {
		check = "[x]"
	}
	return strings.Join([]string{
		pad(check, 3),
		pad(d.Display.ID, 8),
		pad(d.Display.Title, m.titleWidth()),
		pad(d.MediaType.Label(), 9),
		pad(d.Display.UpdateTime, 19),
		pad(d.Status.Label(), 12),
	}, " ")
}

func (m dashModel) renderConfirm() string {
	border := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("196")).Padding(0, 2)
	return border.Render(fmt.Sprintf("Delete %d download(s)?  y/enter confirm, any other key cancels", len(m.pendingDelete)))
}

func (m dashModel) renderStats() string {
	counts := make(map[record.Status]int)
	media := make(map[record.MediaType]int)
	for _, d := range m.store.All() {
		counts[d.Status]++
		media[d.MediaType]++
	}
	st := m.stats()

	var b strings.Builder
	b.WriteString("Sync Stats  [any key: back]\n")
	b.WriteString(strings.Repeat("-", 40))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  Rows:       %d (%d visible, %d selected)\n",
		m.store.Len(), len(m.store.Visible()), m.store.SelectedCount()))
	for _, s := range []record.Status{
		record.StatusPending, record.StatusInProgress,
		record.StatusDone, record.StatusFailed,
	} {
		b.WriteString(fmt.Sprintf("  %-11s %d\n", s.Label()+":", counts[s]))
	}
	b.WriteString("\n")
	for _, mt := range []record.MediaType{
		record.MediaGallery, record.MediaImage, record.MediaVideo,
		record.MediaAudio, record.MediaText,
	} {
		if media[mt] == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("  %-11s %d\n", mt.Label()+":", media[mt]))
	}
	b.WriteString(fmt.Sprintf("\n  Failed ops: %d\n", st.Failures))
	if !st.NextSync.IsZero() {
		b.WriteString(fmt.Sprintf("  Next sync:  %s\n", st.NextSync.Format("2006-01-02 15:04:05")))
	}
	b.WriteString(fmt.Sprintf("  Stream:     %s\n", m.streamLabel()))
	return b.String()
}

func (m dashModel) renderStatusBar() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%d rows", len(m.store.Visible())))
	if n := m.store.SelectedCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	if m.mode == modeFilter {
		parts = append(parts, "filter: "+string(m.filterInput)+"▏")
	} else if q := m.store.FilterQuery(); q != "" {
		parts = append(parts, fmt.Sprintf("filter:%q", q))
	}
	parts = append(parts, "ws:"+m.streamLabel())

	bar := "[" + strings.Join(parts, "  ") + "]"
	if m.toast != "" {
		bar += "  " + highlightStyle.Render(m.toast)
	}
	if m.mode == modeTable {
		bar += dimStyle.Render("  q quit  / filter  space sel  v range  a all  d del  e edit  c/C copy  r sync  t stats  1-6 sort")
	}
	return bar
}

func (m dashModel) streamLabel() string {
	if m.connected {
		return "connected"
	}
	if m.streamErr != "" {
		return errStyle.Render("down (" + m.streamErr + ")")
	}
	return "connecting"
}

func (m dashModel) titleWidth() int {
	w := m.width - fixedColumns
	if w < 16 {
		w = 16
	}
	return w
}

func pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		if width <= 1 {
			return string(r[:width])
		}
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-len(r))
}
