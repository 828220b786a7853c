package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/boardlink"
	"github.com/jpalmerr/boardlink/config"
	"github.com/jpalmerr/boardlink/example/mockboard"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// simulated board behind a TCP bridge (see mockboard)
	go func() {
		if err := mockboard.New(slog.Default()).ListenAndServe(ctx, "127.0.0.1:2323"); err != nil {
			slog.Error("mock board error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	l, err := config.OpenLink(ctx, config.LinkConfig{Type: config.LinkTCP, Address: "127.0.0.1:2323"}, nil)
	if err != nil {
		slog.Error("failed to open link", "error", err)
		os.Exit(1)
	}

	// grid API: 4 sonars from one declaration
	components, err := boardlink.NewComponentGrid("Sonar",
		boardlink.WithCommandTemplate("sonar {{.n}}"),
		boardlink.WithDimensions(map[string][]string{
			"n": {"1", "2", "3", "4"},
		}),
		boardlink.WithGridParser(boardlink.JSONFieldParser("range")),
		boardlink.WithGridInterval(150*time.Millisecond),
	)
	if err != nil {
		slog.Error("failed to create sonar grid", "error", err)
		os.Exit(1)
	}

	battery, _ := boardlink.NewComponent("Battery", "bat",
		boardlink.WithParser(boardlink.FieldParser(1)),
		boardlink.WithInterval(2*time.Second),
	)
	left, _ := boardlink.NewComponent("Left Encoder", "enc 0",
		boardlink.WithParser(boardlink.FieldParser(1)),
	)
	components = append(components, battery, left)

	ctl, err := boardlink.New(
		boardlink.WithLink(l),
		boardlink.WithComponents(components...),
		boardlink.WithPollingInterval(100*time.Millisecond),
		boardlink.WithExchangeTimeout(200*time.Millisecond),
		boardlink.WithTitle("Mock Rover"),
		boardlink.WithPort(8080),
		boardlink.WithReadingCallback(func(r boardlink.Reading) {
			if r.Component == "Battery" && r.Value < 11 {
				slog.Warn("battery low", "volts", r.Value)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create controller", "error", err)
		os.Exit(1)
	}

	// drive the left motor back and forth through the high-priority path
	go func() {
		speed := 60
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ctl.Send(fmt.Sprintf("mot 0 %d", speed)); err != nil {
					slog.Debug("motor command not sent", "error", err)
				}
				speed = -speed
			}
		}
	}()

	fmt.Println()
	fmt.Println("  boardlink demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println()
	fmt.Println("  Components:")
	fmt.Println("    4 sonars (grid, 150ms)")
	fmt.Println("    battery (2s), left encoder (100ms)")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := ctl.Start(ctx); err != nil {
		slog.Error("boardlink error", "error", err)
		os.Exit(1)
	}
}
