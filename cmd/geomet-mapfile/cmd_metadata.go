package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"geomet-mapfile/internal/common/http"
	"geomet-mapfile/internal/mapfile/mcf"
)

func newMetadataCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage discovery metadata (MCF files)",
	}

	setup := &cobra.Command{
		Use:   "setup",
		Short: "Download and unpack the MCF archive",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			url := a.cfg.Mapfile.MetadataURL
			if url == "" {
				return fmt.Errorf("mapfile.metadata_url is not set")
			}
			fmt.Fprintf(c.out, "Fetching metadata from %s\n", url)
			dir, err := mcf.Fetch(ctx, http.NewClient(downloadTimeout), url, a.cfg.Mapfile.MCFDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Unpacked into %s\n", dir)
			return nil
		}),
	}

	cmd.AddCommand(setup)
	return cmd
}
