package main

import (
	"context"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/kv/memory"
	"procsight/pkg/telemetry"

	"github.com/spf13/cobra"
)

var maxRows int

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture one snapshot and print it as a rolling log",
	RunE:  runSnapshot,
}

func init() {
	for _, c := range []*cobra.Command{snapshotCmd, askCmd} {
		c.Flags().StringVar(&snapshotFile, "file", "", "Read the snapshot from a JSON file instead of /proc")
		c.Flags().StringVar(&procRoot, "proc", "/proc", "procfs mount point")
		c.Flags().DurationVar(&sampleFor, "sample", time.Second, "CPU sampling window")
		c.Flags().IntVar(&maxRows, "max-rows", telemetry.DefaultMaxRows, "Rows kept after compaction (0 keeps all)")
	}
}

// captureLog runs one snapshot through the same store the monitor uses.
func captureLog(ctx context.Context, log logger.ILogger) (*telemetry.Store, error) {
	snap, err := takeSnapshot(ctx, log)
	if err != nil {
		return nil, err
	}

	store := telemetry.NewStore(memory.NewStore(), telemetry.NewFormatter(time.Now), maxRows, log)
	if _, err := store.Capture(ctx, snap); err != nil {
		return nil, err
	}
	if _, err := store.Compact(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	store, err := captureLog(cmd.Context(), logger.NewNopLogger())
	if err != nil {
		return err
	}
	printLog(cmd.OutOrStdout(), store.Read(cmd.Context()))
	return nil
}
