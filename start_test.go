package boardlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// freePort returns a TCP port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	ctl := newController(t, echoLink(),
		WithComponent(mustComponent(t, "Test", "t", WithInterval(10*time.Millisecond))),
	)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- ctl.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// verify Start is still blocking
	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns immediately if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	board := newFakeBoard()
	ctl := newController(t, board,
		WithComponent(mustComponent(t, "Test", "t", WithInterval(time.Millisecond))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- ctl.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}

	if n := board.count("t"); n != 0 {
		t.Errorf("board saw %d polls, want 0", n)
	}
}

// TestStart_WithTimeoutContext verifies Start respects deadline contexts.
func TestStart_WithTimeoutContext(t *testing.T) {
	ctl := newController(t, echoLink(),
		WithComponent(mustComponent(t, "Test", "t", WithInterval(10*time.Millisecond))),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ctl.Start(ctx)
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > time.Second {
		t.Errorf("Start() ran for %v, expected ~200ms", elapsed)
	}
	if err != nil {
		t.Errorf("Start() returned error: %v", err)
	}
}

// TestStart_ConcurrentAccess verifies accessors are safe while running.
func TestStart_ConcurrentAccess(t *testing.T) {
	ctl := newController(t, echoLink(),
		WithComponent(mustComponent(t, "Test", "t", WithInterval(time.Millisecond))),
	)
	startController(t, ctl)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = ctl.Components()
				_ = ctl.Readings()
				_, _ = ctl.Reading("Test")
				_, _ = ctl.Enabled("Test")
				_ = ctl.Stats()
				_ = ctl.SetEnabled("Test", (i+j)%2 == 0)
				_ = ctl.SetInterval("Test", time.Duration(j)*time.Millisecond)
			}
		}(i)
	}
	wg.Wait()
}

// TestStart_PortInUse verifies Start fails when the dashboard port is taken
// and releases the link.
func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	board := newFakeBoard()
	ctl := newController(t, board, WithPort(port))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = ctl.Start(ctx)
	if err == nil {
		t.Fatal("Start() expected error for a port in use, got nil")
	}
	if !strings.Contains(err.Error(), "failed to start HTTP server") {
		t.Errorf("Start() error = %v", err)
	}
	if board.closed.Load() != 1 {
		t.Errorf("link closed %d times, want 1", board.closed.Load())
	}
}

// TestStart_ServesControlAPI drives a component through the HTTP API.
func TestStart_ServesControlAPI(t *testing.T) {
	board := newFakeBoard()
	board.set("sonar 1", "87")

	port := freePort(t)
	ctl := newController(t, board,
		WithPort(port),
		WithComponent(mustComponent(t, "Sonar", "sonar 1", WithInterval(time.Hour))),
	)
	startController(t, ctl)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	client := &http.Client{Timeout: 5 * time.Second}

	// the listener is bound before Start enables components
	resp, err := client.Post(base+"/api/components/Sonar/update", "application/json", nil)
	if err != nil {
		t.Fatalf("POST update: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST update status = %d, want 200", resp.StatusCode)
	}

	var rec struct {
		Name  string   `json:"name"`
		Value *float64 `json:"value"`
		Seq   uint64   `json:"seq"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Name != "Sonar" || rec.Value == nil || *rec.Value != 87 || rec.Seq != 1 {
		t.Errorf("record = %+v", rec)
	}

	resp2, err := client.Post(base+"/api/components/Nope/update", "application/json", nil)
	if err != nil {
		t.Fatalf("POST update: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown component status = %d, want 404", resp2.StatusCode)
	}

	resp3, err := client.Post(base+"/api/command", "application/json",
		strings.NewReader(`{"command": "sonar 1", "wait": true}`))
	if err != nil {
		t.Fatalf("POST command: %v", err)
	}
	defer resp3.Body.Close()
	var cmd struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp3.Body).Decode(&cmd); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Response != "87" {
		t.Errorf("command response = %q, want %q", cmd.Response, "87")
	}
}
