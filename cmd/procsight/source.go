package main

import (
	"context"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/internal/source/procfs"
	"procsight/internal/source/static"
	"procsight/pkg/telemetry"
)

var (
	snapshotFile string
	procRoot     string
	sampleFor    time.Duration
)

// takeSnapshot reads a fixture file when given, else samples /proc twice so CPU deltas are real.
func takeSnapshot(ctx context.Context, log logger.ILogger) (telemetry.Snapshot, error) {
	if snapshotFile != "" {
		src, err := static.FromFile(snapshotFile)
		if err != nil {
			return nil, err
		}
		return src.GetSnapshot(ctx)
	}

	src := procfs.New(procRoot, sampleFor, log)
	if _, err := src.GetSnapshot(ctx); err != nil {
		return nil, err
	}
	if sampleFor > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sampleFor):
		}
	}
	return src.GetSnapshot(ctx)
}
