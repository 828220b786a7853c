// Package mockboard simulates a robot I/O board behind a TCP serial bridge.
//
// It answers CR-terminated commands with LF-terminated lines:
//
//	bat          -> "V 12.41"             battery voltage, slowly draining
//	sonar N      -> {"range": 83.2}       distance in cm, N in 1..4
//	enc N        -> "E0:1234"             encoder count, N in 0..1
//	mot N SPEED  -> "ACK"                 sets motor N, which moves encoder N
//	ver          -> "mockboard 1.0"
//
// Anything else gets "ERR". Each exchange takes 2-8ms to answer.
package mockboard

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Board holds the simulated hardware state.
type Board struct {
	mu       sync.Mutex
	battery  float64
	speeds   [2]int
	encoders [2]float64
	lastStep time.Time
	started  time.Time

	logger *slog.Logger
}

// New creates a board with a full battery.
func New(logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	return &Board{
		battery:  12.6,
		lastStep: now,
		started:  now,
		logger:   logger,
	}
}

// step advances the simulation to now.
func (b *Board) step(now time.Time) {
	dt := now.Sub(b.lastStep).Seconds()
	b.lastStep = now

	b.battery -= dt * 0.0005 * float64(1+abs(b.speeds[0])/50+abs(b.speeds[1])/50)
	if b.battery < 10.5 {
		b.battery = 12.6
	}
	for i, s := range b.speeds {
		b.encoders[i] += float64(s) * dt * 4
	}
}

// Respond returns the answer to a single command.
func (b *Board) Respond(command string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.step(now)

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "ERR"
	}

	switch fields[0] {
	case "ver":
		return "mockboard 1.0"
	case "bat":
		return fmt.Sprintf("V %.2f", b.battery+rand.Float64()*0.02)
	case "sonar":
		n, ok := index(fields, 1, 4)
		if !ok {
			return "ERR"
		}
		t := now.Sub(b.started).Seconds()
		cm := 120 + 80*math.Sin(t/3+float64(n)) + rand.Float64()*2
		out, _ := json.Marshal(map[string]float64{"range": math.Round(cm*10) / 10})
		return string(out)
	case "enc":
		n, ok := index(fields, 0, 1)
		if !ok {
			return "ERR"
		}
		return fmt.Sprintf("E%d:%d", n, int64(b.encoders[n]))
	case "mot":
		n, ok := index(fields, 0, 1)
		if !ok || len(fields) < 3 {
			return "ERR"
		}
		speed, err := strconv.Atoi(fields[2])
		if err != nil || speed < -100 || speed > 100 {
			return "ERR"
		}
		b.speeds[n] = speed
		b.logger.Info("motor set", "motor", n, "speed", speed)
		return "ACK"
	default:
		return "ERR"
	}
}

func index(fields []string, lo, hi int) (int, bool) {
	if len(fields) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Serve accepts bridge connections on ln until ctx is done.
func (b *Board) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		b.logger.Info("bridge client connected", "remote", conn.RemoteAddr().String())
		go b.handle(conn)
	}
}

func (b *Board) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		command := strings.TrimSpace(line)
		if command == "" {
			continue
		}

		// firmware latency
		time.Sleep(time.Duration(2+rand.Intn(7)) * time.Millisecond)

		if _, err := conn.Write([]byte(b.Respond(command) + "\n")); err != nil {
			return
		}
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (b *Board) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return b.Serve(ctx, ln)
}
