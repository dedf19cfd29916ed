package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rplview/internal/config"
	"rplview/internal/loader"
)

type simulateOptions struct {
	topology string
	layoutIn string
	output   string
	format   string
	ticks    int
	seed     uint64
}

func (c *cli) simulateCommand() *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Lay out a topology file without serving it",
		Long: `Load a topology file, run the layout simulation for a fixed number of
ticks and write the result.

The result is a YAML layout (usable as layout.file) or, with --format json,
a JSON snapshot of every node and link. Ticks run back to back rather than
on the wall clock. A fixed --seed makes the run reproducible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.topology == "" {
				opts.topology = c.cfg.Discovery.TopologyFile
			}
			if opts.topology == "" {
				return fmt.Errorf("no topology file: pass --topology or set discovery.topology_file")
			}
			return c.runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.topology, "topology", "t", "", "topology file (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.layoutIn, "layout", "l", "", "layout YAML to start from")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the layout here instead of stdout")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "yaml", "output format: yaml (layout) or json (snapshot)")
	cmd.Flags().IntVarP(&opts.ticks, "ticks", "n", 250, "number of ticks to run")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "random seed")

	return cmd
}

func (c *cli) runSimulate(cmd *cobra.Command, opts simulateOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.format != "yaml" && opts.format != "json" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if opts.ticks < 0 {
		return fmt.Errorf("ticks must not be negative")
	}

	// Only the topology file feeds a simulation run
	cfg := *c.cfg
	cfg.Discovery = config.DiscoveryConfig{
		TopologyFile: opts.topology,
		Interval:     c.cfg.Discovery.Interval,
		LinkWeight:   c.cfg.Discovery.LinkWeight,
	}
	cfg.Layout = config.LayoutConfig{}

	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))
	a, err := newApp(&cfg, c.logger, rng)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.layoutIn != "" {
		l, err := loader.LoadYAML(opts.layoutIn)
		if err != nil {
			return fmt.Errorf("load layout: %w", err)
		}
		a.scene.ApplyLayout(l)
	}

	if err := a.registry.TriggerSync(ctx, a.fileSource.Name()); err != nil {
		return err
	}

	for range opts.ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.scene.Tick()
	}

	nodes, links := a.scene.Len()
	c.logger.Info("simulation finished",
		zap.Int("ticks", opts.ticks),
		zap.Int("nodes", nodes),
		zap.Int("links", links))

	var data []byte
	if opts.format == "json" {
		data, err = json.MarshalIndent(a.scene.Snapshot(), "", "  ")
		data = append(data, '\n')
	} else {
		data, err = loader.ExportYAML(a.scene.CaptureLayout())
	}
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
