// Package tui is the interactive download table: live view of the
// synchronized store with sorting, filtering, selection, and bulk
// operations.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/basket/dlboard/internal/bus"
	"github.com/basket/dlboard/internal/record"
	"github.com/basket/dlboard/internal/reconcile"
	"github.com/basket/dlboard/internal/table"
)

type dashMode int

const (
	modeTable dashMode = iota
	modeFilter
	modeConfirmDelete
	modeEdit
	modeStats
)

type ctxDoneMsg struct{}

// busEventMsg delivers a bus event to the update loop.
type busEventMsg struct {
	event bus.Event
}

// debounceMsg fires after the filter debounce interval. gen guards
// against stale timers from earlier keystrokes.
type debounceMsg struct {
	gen int
}

type highlightTickMsg struct{}

type deleteDoneMsg struct {
	out reconcile.DeleteOutcome
	err error
}

type editDoneMsg struct {
	out reconcile.EditOutcome
	err error
}

type resyncDoneMsg struct {
	err error
}

type clipboardDoneMsg struct {
	n    int
	file string
	err  error
}

type toastExpireMsg struct {
	gen int
}

// Stats feeds the stats view with counters owned outside the model.
type Stats struct {
	Failures int64
	NextSync time.Time
}

type dashModel struct {
	ctx   context.Context
	store *table.Store
	rec   *reconcile.Reconciler
	sub   *bus.Subscription
	stats func() Stats

	width  int
	height int

	mode   dashMode
	cursor int

	filterInput []rune
	debounceGen int
	debounce    time.Duration

	// highlights maps download id to the time its highlight expires.
	highlights   map[int64]time.Time
	highlightTTL time.Duration

	connected bool
	streamErr string

	toast    string
	toastGen int

	pendingDelete []int64
	edit          editModal

	quitting bool
}

func newDashModel(ctx context.Context, o Options) dashModel {
	debounce := time.Duration(o.FilterDebounceMS) * time.Millisecond
	if debounce <= 0 {
		debounce = 10 * time.Millisecond
	}
	ttl := time.Duration(o.HighlightTTLMS) * time.Millisecond
	if ttl <= 0 {
		ttl = 1200 * time.Millisecond
	}
	m := dashModel{
		ctx:          ctx,
		store:        o.Store,
		rec:          o.Reconciler,
		stats:        o.Stats,
		debounce:     debounce,
		highlights:   make(map[int64]time.Time),
		highlightTTL: ttl,
	}
	if o.Bus != nil {
		m.sub = o.Bus.Subscribe("")
	}
	if m.stats == nil {
		m.stats = func() Stats { return Stats{} }
	}
	return m
}

func (m dashModel) Init() tea.Cmd {
	cmds := []tea.Cmd{waitCtxDone(m.ctx)}
	if m.sub != nil {
		cmds = append(cmds, waitForBusEvent(m.sub))
	}
	return tea.Batch(cmds...)
}

func waitCtxDone(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		<-ctx.Done()
		return ctxDoneMsg{}
	}
}

// waitForBusEvent blocks until the next event arrives on the subscription.
func waitForBusEvent(sub *bus.Subscription) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub.Ch()
		if !ok {
			return nil
		}
		return busEventMsg{event: event}
	}
}

func highlightTickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg { return highlightTickMsg{} })
}

func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ctxDoneMsg:
		m.quitting = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case busEventMsg:
		var cmd tea.Cmd
		m, cmd = m.applyBusEvent(msg.event)
		rearm := waitForBusEvent(m.sub)
		if cmd != nil {
			return m, tea.Batch(cmd, rearm)
		}
		return m, rearm

	case debounceMsg:
		if msg.gen != m.debounceGen {
			return m, nil
		}
		m.store.Filter(string(m.filterInput))
		m.cursor = m.clampCursor(m.cursor)
		return m, nil

	case highlightTickMsg:
		now := time.Now()
		for id, until := range m.highlights {
			if now.After(until) {
				delete(m.highlights, id)
			}
		}
		if len(m.highlights) > 0 {
			return m, highlightTickCmd()
		}
		return m, nil

	case deleteDoneMsg:
		return m.finishDelete(msg)

	case editDoneMsg:
		return m.finishEdit(msg)

	case resyncDoneMsg:
		if msg.err != nil {
			return m.showToast(fmt.Sprintf("resync failed: %v", msg.err))
		}
		return m.showToast("resync complete")

	case clipboardDoneMsg:
		if msg.err != nil {
			return m.showToast(fmt.Sprintf("copy failed: %v", msg.err))
		}
		if msg.file != "" {
			return m.showToast(fmt.Sprintf("no clipboard, wrote %d item(s) to %s", msg.n, msg.file))
		}
		return m.showToast(fmt.Sprintf("copied %d item(s)", msg.n))

	case toastExpireMsg:
		if msg.gen == m.toastGen {
			m.toast = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m dashModel) applyBusEvent(event bus.Event) (dashModel, tea.Cmd) {
	switch payload := event.Payload.(type) {
	case bus.CreatedEvent:
		// The initial table load paints without highlights.
		if !payload.Initial {
			return m.highlight(payload.IDs)
		}
	case bus.UpdatedEvent:
		return m.highlight(payload.IDs)
	case bus.DeletedEvent:
		for _, id := range payload.IDs {
			delete(m.highlights, id)
		}
		m.cursor = m.clampCursor(m.cursor)
	case bus.StreamStateEvent:
		m.connected = payload.Connected
		m.streamErr = payload.Err
	}
	return m, nil
}

func (m dashModel) highlight(ids []int64) (dashModel, tea.Cmd) {
	until := time.Now().Add(m.highlightTTL)
	armed := len(m.highlights) > 0
	for _, id := range ids {
		m.highlights[id] = until
	}
	if !armed && len(m.highlights) > 0 {
		return m, highlightTickCmd()
	}
	return m, nil
}

func (m dashModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeFilter:
		return m.handleFilterKey(msg)
	case modeConfirmDelete:
		return m.handleConfirmKey(msg)
	case modeEdit:
		return m.handleEditKey(msg)
	case modeStats:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		default:
			m.mode = modeTable
			return m, nil
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		m.cursor = m.clampCursor(m.cursor + 1)
		return m, nil
	case "g", "home":
		m.cursor = 0
		return m, nil
	case "G", "end":
		m.cursor = m.clampCursor(len(m.store.Visible()) - 1)
		return m, nil

	case "/":
		m.mode = modeFilter
		m.filterInput = []rune(m.store.FilterQuery())
		return m, nil

	case "esc":
		if m.store.FilterQuery() != "" {
			m.filterInput = nil
			m.store.Filter("")
			m.cursor = m.clampCursor(m.cursor)
		}
		return m, nil

	case " ":
		if d := m.rowAt(m.cursor); d != nil {
			m.store.Toggle(d.ID)
		}
		return m, nil

	case "v":
		// Extend the selection from the anchor to the cursor row.
		if d := m.rowAt(m.cursor); d != nil {
			m.store.SelectRange(d.ID, true)
		}
		return m, nil

	case "a":
		m.store.ToggleAll(m.store.Header() != table.HeaderAll)
		return m, nil

	case "d":
		ids := m.store.ProcessableIDs()
		if len(ids) == 0 {
			return m.showToast("nothing to delete")
		}
		m.pendingDelete = ids
		m.mode = modeConfirmDelete
		return m, nil

	case "e":
		ids := m.store.ProcessableIDs()
		if len(ids) == 0 {
			return m.showToast("nothing to edit")
		}
		m.edit = newEditModal(ids)
		m.mode = modeEdit
		return m, nil

	case "c":
		return m, m.copyCmd(func(d *record.Download) string { return d.Display.URL })
	case "C":
		return m, m.copyCmd(func(d *record.Download) string { return d.Display.Title })

	case "r":
		return m, m.resyncCmd()

	case "t":
		m.mode = modeStats
		return m, nil

	case "1", "2", "3", "4", "5", "6":
		fields := map[string]table.Field{
			"1": table.FieldSelected,
			"2": table.FieldID,
			"3": table.FieldTitle,
			"4": table.FieldMediaType,
			"5": table.FieldUpdateTime,
			"6": table.FieldStatus,
		}
		m.store.ToggleSort(fields[msg.String()])
		m.cursor = 0
		return m, nil
	}

	return m, nil
}

func (m dashModel) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "esc":
		m.mode = modeTable
		m.filterInput = nil
		m.debounceGen++
		m.store.Filter("")
		m.cursor = m.clampCursor(m.cursor)
		return m, nil
	case "enter":
		m.mode = modeTable
		m.debounceGen++
		m.store.Filter(string(m.filterInput))
		m.cursor = m.clampCursor(m.cursor)
		return m, nil
	case "backspace":
		if len(m.filterInput) > 0 {
			m.filterInput = m.filterInput[:len(m.filterInput)-1]
		}
		return m.armDebounce()
	case " ":
		m.filterInput = append(m.filterInput, ' ')
		return m.armDebounce()
	default:
		if msg.Type == tea.KeyRunes {
			for _, r := range msg.Runes {
				if r >= 0x20 {
					m.filterInput = append(m.filterInput, r)
				}
			}
			return m.armDebounce()
		}
	}
	return m, nil
}

// armDebounce schedules a re-filter after the debounce interval. Each
// keystroke bumps the generation so only the latest timer applies.
func (m dashModel) armDebounce() (tea.Model, tea.Cmd) {
	m.debounceGen++
	gen := m.debounceGen
	return m, tea.Tick(m.debounce, func(time.Time) tea.Msg { return debounceMsg{gen: gen} })
}

func (m dashModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		ids := m.pendingDelete
		m.pendingDelete = nil
		m.mode = modeTable
		return m, m.deleteCmd(ids)
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	default:
		m.pendingDelete = nil
		m.mode = modeTable
		return m, nil
	}
}

func (m dashModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}
	done, patches := m.edit.update(msg)
	if !done {
		return m, nil
	}
	m.mode = modeTable
	if len(patches) == 0 {
		return m, nil
	}
	return m, m.editCmd(patches)
}

func (m dashModel) deleteCmd(ids []int64) tea.Cmd {
	return func() tea.Msg {
		out, err := m.rec.Delete(m.ctx, ids)
		return deleteDoneMsg{out: out, err: err}
	}
}

func (m dashModel) editCmd(patches []record.Patch) tea.Cmd {
	return func() tea.Msg {
		out, err := m.rec.Edit(m.ctx, patches)
		return editDoneMsg{out: out, err: err}
	}
}

func (m dashModel) resyncCmd() tea.Cmd {
	return func() tea.Msg {
		return resyncDoneMsg{err: m.rec.Resync(m.ctx)}
	}
}

func (m dashModel) copyCmd(field func(*record.Download) string) tea.Cmd {
	rows := m.store.Processable()
	if len(rows) == 0 {
		return func() tea.Msg { return clipboardDoneMsg{err: fmt.Errorf("nothing to copy")} }
	}
	values := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, d := range rows {
		v := field(d)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return func() tea.Msg {
		text := strings.Join(values, "\n")
		if err := clipboard.WriteAll(text); err != nil {
			// Headless terminals often have no clipboard provider; fall
			// back to a file so the values aren't lost.
			path := filepath.Join(os.TempDir(), "dlboard-copy.txt")
			if werr := os.WriteFile(path, []byte(text+"\n"), 0o600); werr != nil {
				return clipboardDoneMsg{err: err}
			}
			return clipboardDoneMsg{n: len(values), file: path}
		}
		return clipboardDoneMsg{n: len(values)}
	}
}

func (m dashModel) finishDelete(msg deleteDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m.showToast(fmt.Sprintf("delete failed: %v", msg.err))
	}
	m.cursor = m.clampCursor(m.cursor)
	// Count from the server's confirmations, not local removals: a record
	// already removed by an interim stream event still counts as deleted.
	deleted := msg.out.Requested - msg.out.Missing
	if msg.out.Complete() {
		return m.showToast(fmt.Sprintf("deleted %d", deleted))
	}
	return m.showToast(fmt.Sprintf("deleted %d of %d (%d not confirmed)",
		deleted, msg.out.Requested, msg.out.Missing))
}

func (m dashModel) finishEdit(msg editDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m.showToast(fmt.Sprintf("edit failed: %v", msg.err))
	}
	if len(msg.out.Rejected) == 0 {
		return m.showToast(fmt.Sprintf("updated %d", msg.out.Applied))
	}
	return m.showToast(fmt.Sprintf("updated %d, %d rejected", msg.out.Applied, len(msg.out.Rejected)))
}

func (m dashModel) showToast(text string) (dashModel, tea.Cmd) {
	m.toast = text
	m.toastGen++
	gen := m.toastGen
	return m, tea.Tick(4*time.Second, func(time.Time) tea.Msg { return toastExpireMsg{gen: gen} })
}

func (m dashModel) rowAt(idx int) *record.Download {
	visible := m.store.Visible()
	if idx < 0 || idx >= len(visible) {
		return nil
	}
	return visible[idx]
}

func (m dashModel) clampCursor(idx int) int {
	n := len(m.store.Visible())
	if n == 0 {
		return 0
	}
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
