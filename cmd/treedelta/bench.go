package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/treedelta/internal/engine"
)

func newBenchCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Compare openat(2) and io_uring open throughput on a directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := engine.RunBenchmark(ctx, args[0], batchSize)
			if err != nil {
				return fmt.Errorf("benchmark: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), engine.FormatBenchmark(result))
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", engine.DefaultBatchSize,
		"file pairs per io_uring submission")
	cmd.SetErr(os.Stderr)
	return cmd
}
