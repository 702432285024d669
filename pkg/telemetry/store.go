package telemetry

import (
	"context"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"
	"procsight/pkg/kv"
)

// Store is the rolling log store. Each capture replaces the persisted row set;
// compaction bounds it to MaxRows. Capture and compaction do not coordinate,
// so the last writer wins.
type Store struct {
	kv        kv.Store
	formatter *Formatter
	maxRows   int
	logger    logger.ILogger
}

func NewStore(store kv.Store, formatter *Formatter, maxRows int, log logger.ILogger) *Store {
	return &Store{
		kv:        store,
		formatter: formatter,
		maxRows:   maxRows,
		logger:    log,
	}
}

// Capture formats s and overwrites the persisted log with its rows.
// On a storage failure the previous value is left untouched.
func (s *Store) Capture(ctx context.Context, snap Snapshot) (RollingLog, error) {
	log := NewRollingLog(s.maxRows)
	log.Rows = s.formatter.Format(snap)

	if err := s.kv.Set(ctx, kv.KeyProcessLogs, log.String()); err != nil {
		s.logger.Error("RollingLog", "Failed to persist capture", map[string]interface{}{
			"error": err.Error(),
			"rows":  len(log.Rows),
		})
		return RollingLog{}, apperr.Storage("telemetry.capture", err)
	}

	s.logger.Debug("RollingLog", "Captured snapshot", map[string]interface{}{"rows": len(log.Rows)})
	return log, nil
}

// Compact trims the persisted log to the most recent maxRows rows.
// It writes only when trimming is needed, so repeated calls are no-ops.
func (s *Store) Compact(ctx context.Context) (RollingLog, error) {
	current, err := s.load(ctx)
	if err != nil {
		return RollingLog{}, err
	}
	if current.MaxRows <= 0 || current.Len() <= current.MaxRows {
		return current, nil
	}

	compacted := current.Compacted()
	if err := s.kv.Set(ctx, kv.KeyProcessLogs, compacted.String()); err != nil {
		s.logger.Error("RollingLog", "Failed to persist compaction", map[string]interface{}{"error": err.Error()})
		return RollingLog{}, apperr.Storage("telemetry.compact", err)
	}

	s.logger.Info("RollingLog", "Compacted log", map[string]interface{}{
		"before": current.Len(),
		"after":  compacted.Len(),
	})
	return compacted, nil
}

// Read returns the persisted log, or a header-only log when nothing is
// stored or the stored value cannot be read.
func (s *Store) Read(ctx context.Context) RollingLog {
	log, err := s.load(ctx)
	if err != nil {
		return NewRollingLog(s.maxRows)
	}
	return log
}

func (s *Store) load(ctx context.Context) (RollingLog, error) {
	blob, found, err := s.kv.Get(ctx, kv.KeyProcessLogs)
	if err != nil {
		s.logger.Warn("RollingLog", "Failed to read log", map[string]interface{}{"error": err.Error()})
		return RollingLog{}, apperr.Storage("telemetry.read", err)
	}
	if !found {
		return NewRollingLog(s.maxRows), nil
	}

	log, err := ParseRollingLog(blob, s.maxRows)
	if err != nil {
		s.logger.Warn("RollingLog", "Discarding malformed log", map[string]interface{}{"error": err.Error()})
		return NewRollingLog(s.maxRows), nil
	}
	return log, nil
}
