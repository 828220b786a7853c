// Standalone simulated board for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockboard
//
// Then in another terminal:
//
//	go run ./cmd/boardlink serve -c example/config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/boardlink/example/mockboard"
)

func main() {
	fmt.Println("Mock board bridge listening on :2323")
	fmt.Println("Commands: ver, bat, sonar N, enc N, mot N SPEED")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mockboard.New(slog.Default()).ListenAndServe(ctx, ":2323"); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
