package main

import (
	"fmt"

	"github.com/jpalmerr/boardlink/internal/link"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long:  `List the serial ports present on this machine, for use as link.device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := link.Ports()
		if err != nil {
			return fmt.Errorf("failed to list ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
