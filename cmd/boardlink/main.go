// Package main is the entry point for the boardlink CLI.
//
// boardlink can be used as a library (SDK) or as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	boardlink serve -c config.yaml          # Poll the board and serve the dashboard
//	boardlink validate -c config.yaml       # Validate configuration
//	boardlink ports                         # List serial ports
//	boardlink send -d /dev/ttyACM0 "bat"    # One-off command
//	boardlink version                       # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd only displays help; functionality lives in subcommands.
var rootCmd = &cobra.Command{
	Use:   "boardlink",
	Short: "Poll robot boards over a serial link",
	Long: `boardlink talks to a robot's sensor and actuator boards over a single
serial channel.

It polls every configured component at its own interval, serializes all
traffic through one prioritized queue, and shows the latest readings in a
web UI with Server-Sent Events for live updates.

Quick start:
  1. Create a config file (boardlink.yaml)
  2. Run: boardlink serve -c boardlink.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  link:
    device: /dev/ttyACM0
    baud_rate: 115200
  components:
    - name: Battery
      command: bat
      parser: field:1
      interval: 2s`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this boardlink binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("boardlink %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
