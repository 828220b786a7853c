package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/boardlink/internal/link"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boardlink.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
port: 8080
poll_interval: 200ms
link:
  device: /dev/ttyACM0
components:
  - name: Battery
    command: bat
grids:
  - name: Motor
    command_template: "mot {{.m}} {{.q}}"
    dimensions:
      m: ["1", "2"]
      q: [current, temp]
`)

	out, err := executeCmd(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}

	for _, want := range []string{
		"Config is valid!",
		"Link:          serial /dev/ttyACM0",
		"Port:          8080",
		"Poll interval: 200ms",
		"1 direct + 4 from grids = 5 total",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
link:
  device: /dev/ttyACM0
components:
  - name: Battery
`)

	_, err := executeCmd(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("expected error for invalid config")
	}
	if !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("error = %q, want it to mention invalid config", err)
	}
}

func TestRunValidate_TemplateMissingKey(t *testing.T) {
	path := writeConfig(t, `
link:
  device: /dev/ttyACM0
grids:
  - name: Motor
    command_template: "mot {{.side}}"
    dimensions:
      m: ["1"]
`)

	_, err := executeCmd(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("expected error for template referencing an unknown dimension")
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/boardlink.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExchangeOnce(t *testing.T) {
	l := link.ExchangeFunc(func(ctx context.Context, command string) (string, error) {
		return "echo " + command, nil
	})

	got, err := exchangeOnce(context.Background(), l, "ver", time.Second)
	if err != nil {
		t.Fatalf("exchangeOnce() error = %v", err)
	}
	if got != "echo ver" {
		t.Errorf("exchangeOnce() = %q, want %q", got, "echo ver")
	}
}

func TestExchangeOnce_Timeout(t *testing.T) {
	l := link.ExchangeFunc(func(ctx context.Context, command string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := exchangeOnce(context.Background(), l, "ver", 20*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("exchangeOnce() error = %v, want deadline exceeded", err)
	}
}
