package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// cli is the state shared by the command tree of one invocation.
type cli struct {
	out        io.Writer
	configPath string
}

// run builds the app and hands it to fn under the configured timeout.
func (c *cli) run(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		a, err := newApp(parent, c.configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := a.timeout(parent)
		defer cancel()
		return fn(ctx, a, cmd, args)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "geomet-mapfile",
		Short:         "Generate and maintain GeoMet-Weather MapServer mapfiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config.yaml (default: ./configs/config.yaml)")

	root.AddCommand(newMapfileCmd(c), newStoreCmd(c), newMetadataCmd(c))
	return root
}
