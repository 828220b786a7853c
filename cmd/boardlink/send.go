package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jpalmerr/boardlink/config"
	"github.com/jpalmerr/boardlink/internal/dispatch"
	"github.com/jpalmerr/boardlink/internal/link"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send COMMAND",
	Short: "Send one command and print the response",
	Long: `Send a single command to the board and print its response.

The link is taken from a config file or from flags. The command goes
through the same dispatch path the controller uses, so terminators,
echo suppression and the exchange timeout all apply.

Example:
  boardlink send -c config.yaml "bat"
  boardlink send -d /dev/ttyACM0 -b 9600 "mot 1 100"
  boardlink send -a 192.168.4.1:23 "ver"`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("config", "c", "", "path to config file; its link section is used")
	sendCmd.Flags().StringP("device", "d", "", "serial device")
	sendCmd.Flags().StringP("address", "a", "", "host:port of a TCP serial bridge")
	sendCmd.Flags().IntP("baud", "b", link.DefaultBaudRate, "baud rate")
	sendCmd.Flags().Duration("timeout", dispatch.DefaultTimeout, "exchange timeout")
	sendCmd.MarkFlagsMutuallyExclusive("device", "address")
	sendCmd.MarkFlagsMutuallyExclusive("config", "device")
	sendCmd.MarkFlagsMutuallyExclusive("config", "address")
}

func linkFromFlags(cmd *cobra.Command) (config.LinkConfig, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return config.LinkConfig{}, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg.Link, nil
	}

	device, _ := cmd.Flags().GetString("device")
	address, _ := cmd.Flags().GetString("address")
	baud, _ := cmd.Flags().GetInt("baud")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	lc := config.LinkConfig{Timeout: config.Duration(timeout)}
	switch {
	case address != "":
		lc.Type = config.LinkTCP
		lc.Address = address
	case device != "":
		lc.Type = config.LinkSerial
		lc.Device = device
		lc.BaudRate = baud
	default:
		return lc, fmt.Errorf("one of --config, --device or --address is required")
	}
	return lc, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	command := strings.TrimSpace(args[0])
	if command == "" || strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("invalid command %q", args[0])
	}

	lc, err := linkFromFlags(cmd)
	if err != nil {
		return err
	}
	if lc.Timeout.Duration() <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", lc.Timeout.Duration())
	}

	logger := newLogger(false)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	l, err := config.OpenLink(ctx, lc, logger)
	if err != nil {
		return fmt.Errorf("failed to open link: %w", err)
	}
	defer l.Close()

	response, err := exchangeOnce(ctx, l, command, lc.Timeout.Duration())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), response)
	return nil
}

// exchangeOnce runs command through a private queue and worker.
func exchangeOnce(ctx context.Context, ex dispatch.Exchanger, command string, timeout time.Duration) (string, error) {
	q := dispatch.NewQueue()
	w := dispatch.NewWorker(q, ex, dispatch.WithTimeout(timeout), dispatch.WithLogger(newLogger(false)))
	w.Start(ctx)
	defer w.Stop()

	var response string
	t := q.Enqueue(dispatch.JobFunc(
		func() string { return command },
		func(r string) error {
			response = r
			return nil
		},
	), dispatch.High)

	if err := t.Wait(ctx); err != nil {
		return "", err
	}
	if err := t.Err(); err != nil {
		return "", fmt.Errorf("exchange failed: %w", err)
	}
	return response, nil
}
