package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/basket/dlboard/internal/api"
	"github.com/basket/dlboard/internal/config"
	"github.com/basket/dlboard/internal/record"
)

// runSnapshotCommand fetches the download list once and prints it as a
// plain table, for scripts and quick checks without the TUI.
func runSnapshotCommand(ctx context.Context, cfg config.Config, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: dlboard snapshot")
		return 2
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := api.New(cfg.ServerURL, cfg.AuthToken)
	raws, err := client.FetchDownloads(reqCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tUPDATED\tSTATUS")
	for _, raw := range raws {
		d := record.Normalize(raw)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Display.ID,
			d.Display.Title,
			d.MediaType.Label(),
			d.Display.UpdateTime,
			d.Status.Label(),
		)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		return 1
	}
	return 0
}
