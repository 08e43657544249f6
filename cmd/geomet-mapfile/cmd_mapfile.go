package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"geomet-mapfile/internal/common/config"
	"geomet-mapfile/internal/mapfile/engine"
)

func newMapfileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapfile",
		Short: "Generate or update mapfiles",
	}

	var (
		layer, output, mode string
		strict              bool
	)
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate the global mapfile, or the files of a single layer",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if err := checkChoice("output", output, config.StorageFile, config.StorageStore); err != nil {
				return err
			}
			if err := checkChoice("mode", mode, config.ModeInclude, config.ModeMonolithic); err != nil {
				return err
			}

			req := engine.GenerateRequest{Layer: layer, Storage: output, Mode: mode}
			if cmd.Flags().Changed("strict") {
				req.Strict = &strict
			}

			res, err := a.engine.Generate(ctx, req)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "Run %s: %d layer(s) generated\n", res.RunID, len(res.Fragments))
			for _, f := range res.Failures {
				fmt.Fprintf(c.out, "  skipped %s: %v\n", f.Layer, f.Err)
			}
			for _, f := range res.Published.Files {
				fmt.Fprintf(c.out, "  wrote %s\n", f)
			}
			for _, k := range res.Published.Keys {
				fmt.Fprintf(c.out, "  stored %s\n", k)
			}
			if !res.OK {
				return fmt.Errorf("%d layer(s) failed", len(res.Failures))
			}
			return nil
		}),
	}
	generate.Flags().StringVarP(&layer, "layer", "l", "", "layer name (default: every layer)")
	generate.Flags().StringVarP(&output, "output", "o", "", "file or store (default: mapfile.storage)")
	generate.Flags().StringVarP(&mode, "mode", "m", "", "include or monolithic (default: mapfile.mode)")
	generate.Flags().BoolVar(&strict, "strict", false, "abort on the first layer failure")

	var updateLayer string
	update := &cobra.Command{
		Use:   "update",
		Short: "Refresh wms_timedefault in published mapfiles",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			rep, err := a.engine.Update(ctx, updateLayer)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "patched=%d unchanged=%d no-op=%d invalid=%d missing=%d\n",
				len(rep.Patched), len(rep.Unchanged), len(rep.NoOp), len(rep.Invalid), len(rep.Missing))
			for _, p := range rep.Patched {
				fmt.Fprintf(c.out, "  patched %s\n", p)
			}
			return nil
		}),
	}
	update.Flags().StringVarP(&updateLayer, "layer", "l", "", "layer name (default: every layer)")

	cmd.AddCommand(generate, update)
	return cmd
}

// checkChoice accepts an empty value (configuration default) or one of choices.
func checkChoice(flag, value string, choices ...string) error {
	if value == "" {
		return nil
	}
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("invalid --%s %q: must be one of %s", flag, value, strings.Join(choices, ", "))
}
