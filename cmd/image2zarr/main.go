package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FedeMPouzols/cngi-prototype/convert"
	"github.com/FedeMPouzols/cngi-prototype/fits"
	"github.com/FedeMPouzols/cngi-prototype/zarr"
)

var (
	outfile   string
	artifacts []string
	verbose   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "image2zarr [infile]",
	Short: "Convert a legacy astronomical image to a chunked zarr store",
	Long: `image2zarr converts a legacy image product (e.g. a FITS image) and any
sibling artifacts present next to it (mask, model, pb, psf, residual, sumwt)
into labeled, compressed zarr stores.

Artifacts sharing the primary image's shape are merged into one store at the
output path; each artifact with a different shape is written to its own
<prefix>.<type>.zarr store. Data is streamed one frequency channel at a time,
so images larger than memory convert fine.

Output paths starting with s3:// write to an S3 bucket configured through
IMAGE2ZARR_S3_* environment variables.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func run(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	c := &convert.Converter{
		Opener: fits.Opener{},
		Stores: openStore,
		Log:    logger,
	}
	return c.ImageToZarr(args[0], outfile, artifactsOrDefault())
}

func artifactsOrDefault() []string {
	if len(artifacts) == 0 {
		return nil // converter falls back to the fixed auxiliary list
	}
	return artifacts
}

func openStore(path string) (zarr.Store, error) {
	if strings.HasPrefix(path, "s3://") {
		return zarr.OpenS3URL(context.Background(), path)
	}
	return zarr.NewLocalStore(path)
}

func main() {
	rootCmd.Flags().StringVarP(&outfile, "outfile", "o", "", "output store path (default: infile with a .zarr extension)")
	rootCmd.Flags().StringSliceVar(&artifacts, "artifacts", nil, "artifact types to include if present (default: mask,model,pb,psf,residual,sumwt)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
