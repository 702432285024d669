// Package monitor wires a snapshot source to the rolling log store and the
// telemetry bus, with capture, compaction and session refresh running as
// scheduled jobs on one dispatcher.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/bus"
	"procsight/pkg/scheduler"
	"procsight/pkg/telemetry"
)

const (
	EventProcessUpdated = "process.updated"
	EventProcessExited  = "process.exited"

	ReasonCapture = "capture"
	ReasonUpdate  = "update"
	ReasonExit    = "exit"
)

// Update is the payload published to telemetry subscribers.
type Update struct {
	Reason string               `json:"reason"`
	At     time.Time            `json:"at"`
	Log    telemetry.RollingLog `json:"log"`
	Text   string               `json:"text"`
}

// Refresher re-validates the AI session on its own interval.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Options struct {
	CaptureInterval time.Duration
	CompactInterval time.Duration
	RefreshInterval time.Duration
	MaxRows         int
}

func DefaultOptions() Options {
	return Options{
		CaptureInterval: 2 * time.Second,
		CompactInterval: 2 * time.Minute,
		RefreshInterval: 15 * time.Minute,
		MaxRows:         telemetry.DefaultMaxRows,
	}
}

type Monitor struct {
	source    telemetry.Source
	store     *telemetry.Store
	formatter *telemetry.Formatter
	bus       *bus.Bus[*Update]
	sched     *scheduler.Scheduler
	refresher Refresher
	opts      Options

	mu     sync.RWMutex
	latest telemetry.Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// refresh runs off the dispatcher so a slow re-acquisition never delays capture.
	refreshing atomic.Bool
	refreshWg  sync.WaitGroup

	logger logger.ILogger
}

func New(
	source telemetry.Source,
	store *telemetry.Store,
	formatter *telemetry.Formatter,
	updates *bus.Bus[*Update],
	sched *scheduler.Scheduler,
	refresher Refresher,
	opts Options,
	log logger.ILogger,
) *Monitor {
	return &Monitor{
		source:    source,
		store:     store,
		formatter: formatter,
		bus:       updates,
		sched:     sched,
		refresher: refresher,
		opts:      opts,
		latest:    telemetry.Snapshot{},
		logger:    log,
	}
}

// Start loads the initial snapshot, schedules the periodic jobs and begins
// listening to source pushes.
func (m *Monitor) Start(ctx context.Context) error {
	snap, err := m.source.GetSnapshot(ctx)
	if err != nil {
		m.logger.Warn("Monitor", "Initial snapshot failed", map[string]interface{}{"error": err.Error()})
		snap = telemetry.Snapshot{}
	}
	m.setLatest(snap)

	capture := m.sched.Every("telemetry.capture", m.opts.CaptureInterval, m.captureJob)
	m.sched.Every("telemetry.compact", m.opts.CompactInterval, m.compactJob)
	if m.refresher != nil {
		m.sched.Every("session.refresh", m.opts.RefreshInterval, m.refreshJob)
	}
	if err := m.sched.On(EventProcessUpdated, m.handleUpdate); err != nil {
		return err
	}
	if err := m.sched.On(EventProcessExited, m.handleExit); err != nil {
		return err
	}
	if err := m.sched.Start(ctx); err != nil {
		return err
	}
	capture.Trigger()

	listenCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.source.Listen(listenCtx, &listener{m: m}); err != nil {
			m.logger.Error("Monitor", "Source listener stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	m.logger.Info("Monitor", "Monitor started", map[string]interface{}{
		"processes":        len(snap),
		"capture_interval": m.opts.CaptureInterval.String(),
		"compact_interval": m.opts.CompactInterval.String(),
	})
	return nil
}

func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.sched.Stop()
	m.refreshWg.Wait()
	m.logger.Info("Monitor", "Monitor stopped", nil)
}

// Latest returns a copy of the most recent snapshot.
func (m *Monitor) Latest() telemetry.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest.Clone()
}

func (m *Monitor) setLatest(s telemetry.Snapshot) {
	m.mu.Lock()
	m.latest = s.Clone()
	m.mu.Unlock()
}

// Read returns the persisted rolling log.
func (m *Monitor) Read(ctx context.Context) telemetry.RollingLog {
	return m.store.Read(ctx)
}

// Capture persists the latest snapshot immediately and publishes it.
func (m *Monitor) Capture(ctx context.Context) (telemetry.RollingLog, error) {
	log, err := m.store.Capture(ctx, m.Latest())
	if err != nil {
		return telemetry.RollingLog{}, err
	}
	m.publish(ReasonCapture, log)
	return log, nil
}

func (m *Monitor) Compact(ctx context.Context) (telemetry.RollingLog, error) {
	return m.store.Compact(ctx)
}

func (m *Monitor) Subscribe(cb func(*Update)) *bus.Subscription {
	return m.bus.Subscribe(cb)
}

// Terminate passes through to the source.
func (m *Monitor) Terminate(ctx context.Context, pid int) (bool, error) {
	ok, err := m.source.Terminate(ctx, pid)
	if err != nil {
		m.logger.Warn("Monitor", "Terminate failed", map[string]interface{}{"pid": pid, "error": err.Error()})
		return false, err
	}
	return ok, nil
}

func (m *Monitor) captureJob(ctx context.Context) error {
	_, err := m.Capture(ctx)
	return err
}

func (m *Monitor) compactJob(ctx context.Context) error {
	_, err := m.store.Compact(ctx)
	return err
}

// refreshJob starts a session refresh bound to the scheduler context and
// skips the tick while the previous one is still running.
func (m *Monitor) refreshJob(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		m.logger.Debug("Monitor", "Session refresh still running, skipping tick", nil)
		return nil
	}
	m.refreshWg.Add(1)
	go func() {
		defer m.refreshWg.Done()
		defer m.refreshing.Store(false)
		if err := m.refresher.Refresh(ctx); err != nil {
			m.logger.Warn("Monitor", "Session refresh failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

func (m *Monitor) handleUpdate(ctx context.Context, payload []byte) error {
	snap, err := telemetry.DecodeSnapshot(payload)
	if err != nil {
		return fmt.Errorf("decode update: %w", err)
	}
	m.setLatest(snap)
	m.publishLatest(ReasonUpdate)
	return nil
}

func (m *Monitor) handleExit(ctx context.Context, payload []byte) error {
	pid, err := strconv.Atoi(string(payload))
	if err != nil {
		return fmt.Errorf("decode exit: %w", err)
	}
	m.mu.Lock()
	delete(m.latest, pid)
	m.mu.Unlock()
	m.publishLatest(ReasonExit)
	return nil
}

// publishLatest formats the in-memory snapshot without persisting it.
func (m *Monitor) publishLatest(reason string) {
	log := telemetry.NewRollingLog(m.opts.MaxRows)
	log.Rows = m.formatter.Format(m.Latest())
	m.publish(reason, log)
}

func (m *Monitor) publish(reason string, log telemetry.RollingLog) {
	n := m.bus.Publish(&Update{
		Reason: reason,
		At:     time.Now().UTC(),
		Log:    log,
		Text:   log.String(),
	})
	m.logger.Debug("Monitor", "Published telemetry", map[string]interface{}{
		"reason":      reason,
		"rows":        log.Len(),
		"subscribers": n,
	})
}

// listener turns source pushes into scheduler events so they are handled
// on the dispatcher alongside the periodic jobs.
type listener struct {
	m *Monitor
}

func (l *listener) OnUpdate(s telemetry.Snapshot) {
	data, err := telemetry.EncodeSnapshot(s)
	if err != nil {
		l.m.logger.Error("Monitor", "Failed to encode update", map[string]interface{}{"error": err.Error()})
		return
	}
	l.inject(EventProcessUpdated, data)
}

func (l *listener) OnExit(pid int) {
	l.inject(EventProcessExited, []byte(strconv.Itoa(pid)))
}

func (l *listener) inject(event string, payload []byte) {
	if err := l.m.sched.Inject(event, payload); err != nil {
		l.m.logger.Warn("Monitor", "Failed to inject event", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
	}
}
