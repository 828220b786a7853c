package link

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions describes the serial line parameters used when opening a port.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate" json:"baud_rate"`
	DataBits int    `yaml:"data_bits" json:"data_bits"`
	StopBits int    `yaml:"stop_bits" json:"stop_bits"`
	Parity   string `yaml:"parity" json:"parity"`
}

// DefaultBaudRate is used when PortOptions.BaudRate is unset.
const DefaultBaudRate = 115200

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial expects.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// OpenSerial opens the serial port at path and wraps it in a [LineLink].
// Opening is retried briefly so that a board that is still enumerating after
// a reset does not fail startup.
//
// Serial ports have no write deadline. A write that stalls (for example on
// hardware flow control) cannot be interrupted; the exchange then reports
// [ErrTimeout] as soon as the write returns after its deadline, and the link
// resynchronizes before the next command.
func OpenSerial(ctx context.Context, path string, opts PortOptions, linkOpts ...Option) (*LineLink, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("serial options: %w", err)
	}

	var port serial.Port
	err = retryOpen(ctx, func() error {
		p, err := serial.Open(path, mode)
		if err != nil {
			return err
		}
		port = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// anything buffered before we opened belongs to a previous session
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("reset input %s: %w", path, err)
	}

	return NewLineLink(port, linkOpts...), nil
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
