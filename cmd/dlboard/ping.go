package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/basket/dlboard/internal/api"
	"github.com/basket/dlboard/internal/config"
)

// runPingCommand checks that the server answers and the token is accepted.
func runPingCommand(ctx context.Context, cfg config.Config, args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "usage: dlboard ping")
		return 2
	}

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := api.New(cfg.ServerURL, cfg.AuthToken)
	start := time.Now()
	if err := client.Ping(reqCtx); err != nil {
		fmt.Fprintf(os.Stderr, "ping: %v\n", err)
		return 1
	}
	fmt.Printf("ok %s (%s)\n", cfg.ServerURL, time.Since(start).Round(time.Millisecond))
	return 0
}
