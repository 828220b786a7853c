package config

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jpalmerr/boardlink"
	"github.com/jpalmerr/boardlink/internal/link"
)

// BuildComponents converts parsed configuration into SDK Component values.
//
// It processes both direct components and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product.
func BuildComponents(cfg *Config) ([]boardlink.Component, error) {
	var components []boardlink.Component

	for _, cc := range cfg.Components {
		c, err := buildComponent(cc)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}

	for _, gc := range cfg.Grids {
		grid, err := buildGrid(gc)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", gc.Name, err)
		}
		components = append(components, grid...)
	}

	return components, nil
}

func buildComponent(cc ComponentConfig) (boardlink.Component, error) {
	parser, err := buildParser(cc.Parser, cc.Scale, cc.Offset)
	if err != nil {
		return boardlink.Component{}, fmt.Errorf("component %q: %w", cc.Name, err)
	}

	opts := []boardlink.ComponentOption{boardlink.WithParser(parser)}

	if cc.Interval != 0 {
		opts = append(opts, boardlink.WithInterval(cc.Interval.Duration()))
	}
	if cc.Enabled != nil {
		opts = append(opts, boardlink.WithEnabled(*cc.Enabled))
	}
	if len(cc.Labels) > 0 {
		opts = append(opts, boardlink.WithLabels(mapToKeyValuePairs(cc.Labels)...))
	}

	return boardlink.NewComponent(cc.Name, cc.Command, opts...)
}

func buildGrid(gc GridConfig) ([]boardlink.Component, error) {
	parser, err := buildParser(gc.Parser, gc.Scale, gc.Offset)
	if err != nil {
		return nil, err
	}

	opts := []boardlink.GridOption{
		boardlink.WithCommandTemplate(gc.CommandTemplate),
		boardlink.WithDimensions(gc.Dimensions),
		boardlink.WithGridParser(parser),
	}
	if gc.Interval != 0 {
		opts = append(opts, boardlink.WithGridInterval(gc.Interval.Duration()))
	}
	if gc.Enabled != nil {
		opts = append(opts, boardlink.WithGridEnabled(*gc.Enabled))
	}
	if len(gc.Labels) > 0 {
		opts = append(opts, boardlink.WithGridLabels(mapToKeyValuePairs(gc.Labels)...))
	}

	return boardlink.NewComponentGrid(gc.Name, opts...)
}

// mapToKeyValuePairs flattens a map in sorted key order.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildParser converts a ParserConfig into a ResponseParser, applying the
// linear transform when scale or offset is set.
func buildParser(pc ParserConfig, scale, offset float64) (boardlink.ResponseParser, error) {
	var parser boardlink.ResponseParser

	switch pc.Type {
	case "", "float":
		parser = boardlink.FloatParser
	case "field":
		parser = boardlink.FieldParser(pc.Index)
	case "json":
		parser = boardlink.JSONFieldParser(pc.Path)
	case "regex":
		p, err := boardlink.RegexParser(pc.Pattern)
		if err != nil {
			return nil, err
		}
		parser = p
	case "ack":
		parser = boardlink.AckParser(pc.Token)
	default:
		return nil, fmt.Errorf("unknown parser type %q", pc.Type)
	}

	if scale != 0 || offset != 0 {
		if scale == 0 {
			scale = 1
		}
		parser = boardlink.ScaledParser(parser, scale, offset)
	}
	return parser, nil
}

// Options converts the controller-level settings into SDK options. The link
// and components are not included; see [OpenLink] and [BuildComponents].
func Options(cfg *Config) ([]boardlink.Option, error) {
	policy, err := boardlink.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	opts := []boardlink.Option{
		boardlink.WithPort(cfg.Port),
		boardlink.WithPollingInterval(cfg.PollInterval.Duration()),
		boardlink.WithPolicy(policy),
		boardlink.WithExchangeTimeout(cfg.Link.Timeout.Duration()),
		boardlink.WithMinGap(cfg.Link.MinGap.Duration()),
	}
	if cfg.Title != "" {
		opts = append(opts, boardlink.WithTitle(cfg.Title))
	}
	return opts, nil
}

// OpenLink opens the channel described by lc. The returned link is owned by
// the caller, or by the controller once passed to [boardlink.WithLink].
func OpenLink(ctx context.Context, lc LinkConfig, logger *slog.Logger) (boardlink.Link, error) {
	if logger == nil {
		logger = slog.Default()
	}

	linkOpts := []link.Option{link.WithLogger(logger.With("link", lc.Type))}
	if lc.TxTerminator != "" {
		linkOpts = append(linkOpts, link.WithTxTerminator(lc.TxTerminator))
	}
	if lc.RxTerminator != "" {
		linkOpts = append(linkOpts, link.WithRxTerminator(lc.RxTerminator[0]))
	}
	if lc.Echo {
		linkOpts = append(linkOpts, link.WithEchoSuppression())
	}
	if lc.Settle != 0 {
		linkOpts = append(linkOpts, link.WithSettle(lc.Settle.Duration()))
	}

	var (
		l   *link.LineLink
		err error
	)
	switch lc.Type {
	case LinkTCP:
		l, err = link.DialTCP(ctx, lc.Address, linkOpts...)
	case LinkSerial, "":
		l, err = link.OpenSerial(ctx, lc.Device, lc.PortOptions, linkOpts...)
	default:
		return nil, fmt.Errorf("unknown link type %q", lc.Type)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
