package main

import (
	"fmt"

	"github.com/jpalmerr/boardlink/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a boardlink configuration file without opening the link.

This command parses the YAML, expands environment variables, validates all
fields and builds every component, including grid expansions. It's useful
before deploying a config to the robot.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  boardlink validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// building catches template errors that parsing alone cannot
	components, err := config.BuildComponents(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	direct := len(cfg.Components)
	fromGrids := len(components) - direct

	target := cfg.Link.Device
	if cfg.Link.Type == config.LinkTCP {
		target = cfg.Link.Address
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Link:          %s %s\n", cfg.Link.Type, target)
	fmt.Printf("  Port:          %d\n", cfg.Port)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Printf("  Components:    %d direct + %d from grids = %d total\n",
		direct, fromGrids, len(components))

	return nil
}
