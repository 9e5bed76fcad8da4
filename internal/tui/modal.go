package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/basket/dlboard/internal/record"
)

const editFieldCount = 4 // Title, Media type, Status, Button

// keepLabel marks an option that leaves the field unchanged.
const keepLabel = "(keep)"

var (
	mediaOptions = []record.MediaType{
		record.MediaGallery, record.MediaImage, record.MediaVideo,
		record.MediaAudio, record.MediaText,
	}
	statusOptions = []record.Status{
		record.StatusPending, record.StatusInProgress,
		record.StatusDone, record.StatusFailed,
	}
)

// editModal collects a partial update to apply to the processable rows.
// Index 0 in the option cycles means "keep current value".
type editModal struct {
	ids        []int64
	focusIndex int
	titleField string
	mediaIdx   int // 0 = keep, 1.. = mediaOptions[i-1]
	statusIdx  int // 0 = keep, 1.. = statusOptions[i-1]
}

func newEditModal(ids []int64) editModal {
	return editModal{ids: ids}
}

// update handles one key. done is true when the modal closed; patches is
// non-empty only on submit with at least one field set.
func (m *editModal) update(msg tea.KeyMsg) (done bool, patches []record.Patch) {
	switch msg.String() {
	case "esc":
		return true, nil
	case "tab", "down":
		m.focusIndex = (m.focusIndex + 1) % editFieldCount
		return false, nil
	case "shift+tab", "up":
		m.focusIndex = (m.focusIndex + editFieldCount - 1) % editFieldCount
		return false, nil
	case "enter":
		if m.focusIndex == editFieldCount-1 {
			return true, m.patches()
		}
		m.focusIndex = (m.focusIndex + 1) % editFieldCount
		return false, nil
	case "left", "right":
		delta := 1
		if msg.String() == "left" {
			delta = -1
		}
		switch m.focusIndex {
		case 1:
			n := len(mediaOptions) + 1
			m.mediaIdx = (m.mediaIdx + delta + n) % n
		case 2:
			n := len(statusOptions) + 1
			m.statusIdx = (m.statusIdx + delta + n) % n
		}
		return false, nil
	case "backspace":
		if m.focusIndex == 0 && len(m.titleField) > 0 {
			runes := []rune(m.titleField)
			m.titleField = string(runes[:len(runes)-1])
		}
		return false, nil
	case " ":
		if m.focusIndex == 0 {
			m.titleField += " "
		}
		return false, nil
	default:
		if m.focusIndex == 0 && msg.Type == tea.KeyRunes {
			for _, r := range msg.Runes {
				if r >= 0x20 {
					m.titleField += string(r)
				}
			}
		}
		return false, nil
	}
}

func (m *editModal) patches() []record.Patch {
	var (
		title *string
		media *record.MediaType
		st    *record.Status
	)
	if t := strings.TrimSpace(m.titleField); t != "" {
		title = &t
	}
	if m.mediaIdx > 0 {
		v := mediaOptions[m.mediaIdx-1]
		media = &v
	}
	if m.statusIdx > 0 {
		v := statusOptions[m.statusIdx-1]
		st = &v
	}
	if title == nil && media == nil && st == nil {
		return nil
	}

	out := make([]record.Patch, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, record.Patch{ID: id, Title: title, MediaType: media, Status: st})
	}
	return out
}

func (m editModal) mediaLabel() string {
	if m.mediaIdx == 0 {
		return keepLabel
	}
	return mediaOptions[m.mediaIdx-1].Label()
}

func (m editModal) statusLabel() string {
	if m.statusIdx == 0 {
		return keepLabel
	}
	return statusOptions[m.statusIdx-1].Label()
}

func (m editModal) view() string {
	border := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).Padding(1, 2).Width(54)
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	focus := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	mk := func(idx int) string {
		if m.focusIndex == idx {
			return focus.Render("▸ ")
		}
		return "  "
	}

	var b strings.Builder
	if len(m.ids) == 1 {
		b.WriteString(title.Render("Edit 1 download") + "\n\n")
	} else {
		b.WriteString(title.Render(fmt.Sprintf("Edit %d downloads", len(m.ids))) + "\n\n")
	}
	titlePreview := m.titleField
	if len(titlePreview) > 32 {
		titlePreview = titlePreview[:32] + "..."
	}
	b.WriteString(mk(0) + "Title:  [ " + titlePreview + " ]\n")
	b.WriteString(mk(1) + "Type:   [ ◀ " + m.mediaLabel() + " ▶ ]\n")
	b.WriteString(mk(2) + "Status: [ ◀ " + m.statusLabel() + " ▶ ]\n\n")
	btn := "[ Apply ]"
	if m.focusIndex == 3 {
		btn = focus.Render("[ Apply ]")
	}
	b.WriteString("  " + btn + dim.Render("  (Esc to cancel, empty fields keep values)") + "\n")
	return border.Render(b.String())
}
