package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "geomet-mapfile/internal/common/errors"
	"geomet-mapfile/internal/mapfile/mapscript"
)

func newStoreCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the mapfile store",
	}

	setup := &cobra.Command{
		Use:   "setup",
		Short: "Create the store",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			fmt.Fprintf(c.out, "Creating store %s\n", a.store.Namespace())
			return a.store.Setup(ctx)
		}),
	}

	teardown := &cobra.Command{
		Use:   "teardown",
		Short: "Delete the store",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			fmt.Fprintf(c.out, "Deleting store %s\n", a.store.Namespace())
			return a.store.Teardown(ctx)
		}),
	}

	var (
		key, path string
		withMap   bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Store a mapfile under a key",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			if key == "" || path == "" {
				return fmt.Errorf("missing --key or --mapfile")
			}
			value, err := readMapfile(path, withMap)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Setting %s in store %s\n", key, a.store.Namespace())
			return a.store.Set(ctx, key, value)
		}),
	}
	set.Flags().StringVarP(&key, "key", "k", "", "key name")
	set.Flags().StringVarP(&path, "mapfile", "f", "", "path to mapfile")
	set.Flags().BoolVar(&withMap, "map", true, "keep the MAP object (false stores the LAYER objects only)")

	var getKey string
	get := &cobra.Command{
		Use:   "get",
		Short: "Print a stored value",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			if getKey == "" {
				return fmt.Errorf("missing --key")
			}
			value, ok, err := a.store.Get(ctx, getKey)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.NewResourceNotFoundError("store key", getKey)
			}
			fmt.Fprintln(c.out, value)
			return nil
		}),
	}
	get.Flags().StringVarP(&getKey, "key", "k", "", "key name")

	var pattern string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: c.run(func(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
			names, err := a.store.List(ctx, pattern)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(c.out, n)
			}
			return nil
		}),
	}
	list.Flags().StringVarP(&pattern, "pattern", "p", "", "key suffix, e.g. _layer")

	cmd.AddCommand(setup, teardown, set, get, list)
	return cmd
}

// readMapfile normalises a mapfile on disk through the codec. Without the
// MAP object only its LAYER blocks are kept.
func readMapfile(path string, withMap bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	objs, err := mapscript.Unmarshal(data)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	if withMap {
		return string(mapscript.Marshal(objs...)), nil
	}

	var layers []*mapscript.Object
	for _, o := range objs {
		if o.Type == "MAP" {
			layers = append(layers, o.Objects("layers")...)
			continue
		}
		if o.Type == "LAYER" {
			layers = append(layers, o)
		}
	}
	return string(mapscript.Marshal(layers...)), nil
}
