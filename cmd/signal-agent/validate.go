package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sweeney/signal-agent/internal/config"
	"github.com/sweeney/signal-agent/internal/pattern"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and show how each macro compiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*opts, cmd.Flags())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), cfg)
		},
	}
}

// printSummary writes the channel map and the compiled macro table.
func printSummary(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "node %s, tick %v\n", cfg.Node, cfg.Tick())

	fmt.Fprintln(w, "channels:")
	for _, ch := range cfg.Channels {
		pin := "none"
		if ch.HasPin() {
			pin = fmt.Sprint(*ch.Pin)
		}
		inv := ""
		if ch.Invert {
			inv = " (active low)"
		}
		fmt.Fprintf(w, "  %-10s %-7s pin %s%s\n", ch.Name, ch.Kind, pin, inv)
	}

	names := make([]string, 0, len(cfg.Macros))
	for name := range cfg.Macros {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "macros:")
	for _, name := range names {
		prog, err := pattern.Compile(cfg.Macros[name], cfg.Tick())
		if err != nil {
			return fmt.Errorf("macro %q: %w", name, err)
		}
		fmt.Fprintf(w, "  %-10s %s\n", name, describe(prog, cfg))
	}
	return nil
}

func describe(p pattern.Program, cfg *config.Config) string {
	if p.Idle() {
		return "idle"
	}
	passes := "forever"
	if p.Remaining != pattern.Infinite {
		passes = fmt.Sprintf("x%d", p.Remaining+1)
	}
	return fmt.Sprintf("%d ticks (%v) %s", len(p.Ticks), p.Cycle(cfg.Tick()), passes)
}
