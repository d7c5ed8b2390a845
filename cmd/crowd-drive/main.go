// Command crowd-drive runs the crowd-aware vehicle execution controller
// against a drive-by-wire serial link, or in closed-loop simulation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/crowd-drive/internal/monitoring"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	monitoring.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "crowd-drive:", err)
		os.Exit(1)
	}
}
