package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/basket/dlboard/internal/bus"
	"github.com/basket/dlboard/internal/reconcile"
	"github.com/basket/dlboard/internal/table"
)

// Options wires the dashboard to the rest of the program.
type Options struct {
	Store      *table.Store
	Reconciler *reconcile.Reconciler
	Bus        *bus.Bus

	FilterDebounceMS int
	HighlightTTLMS   int

	// Stats supplies live counters for the stats view. Optional.
	Stats func() Stats
}

// Run starts the dashboard and blocks until the user quits or ctx is
// canceled.
func Run(ctx context.Context, o Options) error {
	// BubbleTea should restore the terminal on exit, but if the process is
	// interrupted at an unfortunate time it's easy to end up with ICRNL off
	// (Enter appears as ^M/+M and line-based prompts stop working). This is a
	// best-effort safety net.
	defer bestEffortResetTTY()

	m := newDashModel(ctx, o)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// If the parent context is cancelled we don't care about the renderer error.
		return nil
	}
	return err
}
