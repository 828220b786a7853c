// Package config provides YAML configuration parsing for the boardlink
// binary.
//
// This package lets boardlink run as a standalone process with a
// configuration file, as an alternative to the programmatic API.
//
// Example configuration:
//
//	title: Rover
//	port: 8080
//	poll_interval: 300ms
//
//	link:
//	  type: serial
//	  device: ${BOARD_DEVICE:-/dev/ttyACM0}
//	  baud_rate: 115200
//	  timeout: 500ms
//	  settle: 200ms
//
//	components:
//	  - name: Battery
//	    command: bat
//	    parser: field:1
//	    interval: 2s
//
//	grids:
//	  - name: Sonar
//	    command_template: "sonar {{.n}}"
//	    dimensions:
//	      n: ["1", "2", "3", "4"]
//	    interval: 100ms
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/boardlink"
	"github.com/jpalmerr/boardlink/internal/link"
)

const (
	defaultPort         = 8080
	defaultPollInterval = 300 * time.Millisecond
	defaultTimeout      = 500 * time.Millisecond
)

// Link types.
const (
	LinkSerial = "serial"
	LinkTCP    = "tcp"
)

// Config is the root configuration structure for boardlink.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "boardlink" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the refresh interval of components that do not set
	// their own. Defaults to 300ms.
	PollInterval Duration `yaml:"poll_interval"`

	// Policy is "fixed-delay" (default) or "fixed-rate".
	Policy string `yaml:"policy"`

	// Link describes the channel to the board.
	Link LinkConfig `yaml:"link"`

	// Components defines individually polled values.
	Components []ComponentConfig `yaml:"components"`

	// Grids defines component grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// LinkConfig describes how to reach the board.
type LinkConfig struct {
	// Type is "serial" (default) or "tcp".
	Type string `yaml:"type"`

	// Device is the serial device path, for type serial.
	// Supports environment variable substitution.
	Device string `yaml:"device"`

	// Address is host:port of a serial bridge, for type tcp.
	// Supports environment variable substitution.
	Address string `yaml:"address"`

	// Serial line parameters, for type serial.
	link.PortOptions `yaml:",inline"`

	// TxTerminator is appended to every command. Defaults to "\r".
	TxTerminator string `yaml:"tx_terminator"`

	// RxTerminator is the single character ending a response. Defaults to "\n".
	RxTerminator string `yaml:"rx_terminator"`

	// Echo discards the board's echo of each command.
	Echo bool `yaml:"echo"`

	// Timeout bounds every exchange. Defaults to 500ms.
	Timeout Duration `yaml:"timeout"`

	// MinGap is the minimum spacing between commands.
	MinGap Duration `yaml:"min_gap"`

	// Settle is how long the line must stay quiet after a timed-out
	// exchange before the next command is sent. Defaults to the duration
	// of the exchange that timed out.
	Settle Duration `yaml:"settle"`
}

// ComponentConfig defines a single polled value.
type ComponentConfig struct {
	// Name is the display name, unique across components and grids.
	Name string `yaml:"name"`

	// Command is sent to the board on every poll.
	Command string `yaml:"command"`

	// Parser determines how the response becomes a value.
	// Can be shorthand ("field:1", "json:imu.heading") or structured.
	Parser ParserConfig `yaml:"parser"`

	// Scale and Offset transform the parsed value: value*scale + offset.
	// A zero scale means 1.
	Scale  float64 `yaml:"scale"`
	Offset float64 `yaml:"offset"`

	// Interval is the refresh interval for this component.
	// If not specified, uses the global poll_interval.
	Interval Duration `yaml:"interval"`

	// Enabled sets whether polling starts with the controller.
	// Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// Labels are metadata key-value pairs for grouping.
	Labels map[string]string `yaml:"labels"`
}

// GridConfig defines a component grid that expands via cartesian product.
//
// For example, with dimensions {n: [1, 2, 3, 4]} and command_template
// "sonar {{.n}}", the grid expands to four components.
type GridConfig struct {
	// Name is the base name for generated components.
	Name string `yaml:"name"`

	// CommandTemplate is a Go template for generating commands.
	// Dimension keys are available as template variables: {{.n}}
	CommandTemplate string `yaml:"command_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Parser, Scale, Offset, Interval, Enabled and Labels apply to every
	// generated component, as in [ComponentConfig].
	Parser   ParserConfig      `yaml:"parser"`
	Scale    float64           `yaml:"scale"`
	Offset   float64           `yaml:"offset"`
	Interval Duration          `yaml:"interval"`
	Enabled  *bool             `yaml:"enabled"`
	Labels   map[string]string `yaml:"labels"`
}

// ParserConfig specifies how to turn a response line into a value.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	parser: float
//	parser: field:2
//	parser: json:imu.heading
//	parser: regex:T=(-?[\d.]+)
//	parser: ack
//	parser: ack:OK
//
// Structured object:
//
//	parser:
//	  type: field
//	  index: 2
type ParserConfig struct {
	// Type is "float", "field", "json", "regex" or "ack".
	Type string

	// Index is the field index (for type: field).
	Index int

	// Path is the JSON field path (for type: json).
	Path string

	// Pattern is the regular expression (for type: regex).
	Pattern string

	// Token is the acknowledgement token (for type: ack).
	Token string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ParserConfig.
func (p *ParserConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return p.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string `yaml:"type"`
			Index   int    `yaml:"index"`
			Path    string `yaml:"path"`
			Pattern string `yaml:"pattern"`
			Token   string `yaml:"token"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		p.Type = raw.Type
		p.Index = raw.Index
		p.Path = raw.Path
		p.Pattern = raw.Pattern
		p.Token = raw.Token
		return nil
	}

	return fmt.Errorf("parser must be a string or object, got %v", node.Kind)
}

// parseShorthand parses parser shorthand syntax.
//
// Supported formats:
//   - "float" → whole line is a number
//   - "field:N" → field N of a delimited line
//   - "json:path" → JSON field
//   - "regex:pattern" → first capture group
//   - "ack" or "ack:TOKEN" → acknowledgement
func (p *ParserConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		p.Type = s[:idx]
		value := s[idx+1:]

		switch p.Type {
		case "field":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid field index %q", value)
			}
			p.Index = n
		case "json":
			p.Path = value
		case "regex":
			p.Pattern = value
		case "ack":
			p.Token = value
		default:
			return fmt.Errorf("unknown parser type %q", p.Type)
		}
		return nil
	}

	switch s {
	case "float", "ack":
		p.Type = s
	default:
		return fmt.Errorf("unknown parser %q (expected 'float', 'field:N', 'json:path', 'regex:pattern', or 'ack')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the link device and address and in
// command templates. Defaults are applied for Port (8080), PollInterval
// (300ms), link type (serial) and link timeout (500ms).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}
	if cfg.Link.Type == "" {
		cfg.Link.Type = LinkSerial
	}
	if cfg.Link.Timeout == 0 {
		cfg.Link.Timeout = Duration(defaultTimeout)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < 0 {
		return fmt.Errorf("poll_interval cannot be negative, got %s", c.PollInterval.Duration())
	}
	if _, err := boardlink.ParsePolicy(c.Policy); err != nil {
		return err
	}

	if err := c.Link.expandAndValidate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}

	names := make(map[string]struct{})
	for i := range c.Components {
		cc := &c.Components[i]
		ctx := fmt.Sprintf("components[%d] (%s)", i, cc.Name)

		if cc.Name == "" {
			return fmt.Errorf("components[%d]: name is required", i)
		}
		if _, dup := names[cc.Name]; dup {
			return fmt.Errorf("%s: duplicate component name", ctx)
		}
		names[cc.Name] = struct{}{}

		if strings.TrimSpace(cc.Command) == "" {
			return fmt.Errorf("%s: command is required", ctx)
		}
		if strings.ContainsAny(cc.Command, "\r\n") {
			return fmt.Errorf("%s: command cannot contain line breaks", ctx)
		}
		if cc.Interval.Duration() < 0 {
			return fmt.Errorf("%s: interval cannot be negative, got %s", ctx, cc.Interval.Duration())
		}
		if err := validateParser(&cc.Parser, ctx); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]
		ctx := fmt.Sprintf("grids[%d] (%s)", i, g.Name)

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}

		if g.CommandTemplate == "" {
			return fmt.Errorf("%s: command_template is required", ctx)
		}
		expanded, err := expandEnvVars(g.CommandTemplate)
		if err != nil {
			return fmt.Errorf("%s: command_template: %w", ctx, err)
		}
		g.CommandTemplate = expanded

		// fail fast before the controller tries to use an invalid template
		if _, err := template.New("").Parse(g.CommandTemplate); err != nil {
			return fmt.Errorf("%s: invalid command_template: %w", ctx, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", ctx)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", ctx, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", ctx, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if g.Interval.Duration() < 0 {
			return fmt.Errorf("%s: interval cannot be negative, got %s", ctx, g.Interval.Duration())
		}
		if err := validateParser(&g.Parser, ctx); err != nil {
			return err
		}
	}

	if len(c.Components) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one component or grid must be defined")
	}

	return nil
}

func (l *LinkConfig) expandAndValidate() error {
	switch l.Type {
	case LinkSerial:
		if l.Device == "" {
			return errors.New("device is required for a serial link")
		}
		expanded, err := expandEnvVars(l.Device)
		if err != nil {
			return fmt.Errorf("device: %w", err)
		}
		l.Device = expanded

		opts, err := l.PortOptions.Normalize()
		if err != nil {
			return err
		}
		l.PortOptions = opts
	case LinkTCP:
		if l.Address == "" {
			return errors.New("address is required for a tcp link")
		}
		expanded, err := expandEnvVars(l.Address)
		if err != nil {
			return fmt.Errorf("address: %w", err)
		}
		l.Address = expanded
	default:
		return fmt.Errorf("unknown link type %q (expected 'serial' or 'tcp')", l.Type)
	}

	if len(l.RxTerminator) > 1 {
		return fmt.Errorf("rx_terminator must be a single character, got %q", l.RxTerminator)
	}
	if l.Timeout.Duration() <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", l.Timeout.Duration())
	}
	if l.MinGap.Duration() < 0 {
		return fmt.Errorf("min_gap cannot be negative, got %s", l.MinGap.Duration())
	}
	if l.Settle.Duration() < 0 {
		return fmt.Errorf("settle cannot be negative, got %s", l.Settle.Duration())
	}
	return nil
}

// validateParser validates a parser configuration.
func validateParser(p *ParserConfig, context string) error {
	switch p.Type {
	case "", "float", "ack":
	case "field":
		if p.Index < 0 {
			return fmt.Errorf("%s: parser field index cannot be negative", context)
		}
	case "json":
		if p.Path == "" {
			return fmt.Errorf("%s: parser type 'json' requires a path", context)
		}
	case "regex":
		if p.Pattern == "" {
			return fmt.Errorf("%s: parser type 'regex' requires a pattern", context)
		}
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid parser pattern: %w", context, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s: parser pattern needs a capture group", context)
		}
	default:
		return fmt.Errorf("%s: unknown parser type %q", context, p.Type)
	}
	return nil
}
