package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/quakesim/internal/artifact"
	"github.com/ZanzyTHEbar/quakesim/internal/config"
	"github.com/ZanzyTHEbar/quakesim/internal/model"
)

func newBundleCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect and publish model bundles",
	}
	cmd.AddCommand(
		newBundleInspectCmd(configPath),
		newBundlePushCmd(configPath),
	)
	return cmd
}

func newBundleInspectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <uri>",
		Short: "Validate a bundle and print its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			m, err := loadBundle(cmd.Context(), cfg, args[0])
			if err != nil {
				return err
			}
			defer m.Close()
			return writeJSON(cmd.OutOrStdout(), m.Info())
		},
	}
}

func newBundlePushCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "push <src> <dst>",
		Short: "Validate a bundle and copy it to another location",
		Long: `Copies the bundle manifest from src to dst, for example from a local file
to s3://bucket/models/damage.json. The manifest is validated first and a
relative ONNX file it names is copied alongside it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			src, err := artifact.ParseURI(args[0])
			if err != nil {
				return err
			}
			dst, err := artifact.ParseURI(args[1])
			if err != nil {
				return err
			}

			data, err := artifact.Fetch(ctx, src.String(), cfg.Model.Artifact)
			if err != nil {
				return err
			}
			b, err := model.Parse(data)
			if err != nil {
				return err
			}

			if err := put(ctx, dst, data, cfg.Model.Artifact); err != nil {
				return err
			}

			// a relative ONNX file travels with its manifest
			if b.ONNX != nil && !filepath.IsAbs(b.ONNX.Path) && !strings.Contains(b.ONNX.Path, "://") {
				onnxSrc, err := src.Sibling(b.ONNX.Path)
				if err != nil {
					return err
				}
				onnxDst, err := dst.Sibling(b.ONNX.Path)
				if err != nil {
					return err
				}
				onnx, err := artifact.Fetch(ctx, onnxSrc.String(), cfg.Model.Artifact)
				if err != nil {
					return err
				}
				if err := put(ctx, onnxDst, onnx, cfg.Model.Artifact); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s (%s) to %s\n", b.Name, b.Task, dst)
			return nil
		},
	}
}

func put(ctx context.Context, loc artifact.Location, data []byte, cfg artifact.Config) error {
	store, err := artifact.Open(ctx, loc, cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}
	if err := store.Put(ctx, loc.Key, data); err != nil {
		return fmt.Errorf("write %s: %w", loc, err)
	}
	return nil
}
