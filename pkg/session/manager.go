// Package session manages the lifecycle of the local model session:
// probe, create, validate, refresh and destroy.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"
	"procsight/pkg/bus"
	"procsight/pkg/llm"

	"github.com/google/uuid"
)

// DefaultRefreshInterval is how often a ready session is re-validated.
const DefaultRefreshInterval = 15 * time.Minute

// probeText is sent to check that a handle still answers.
const probeText = "test"

// Manager owns exactly one live session handle at a time.
type Manager struct {
	backend llm.LocalBackend

	// acqMu serializes acquisition so only one handle is ever being created.
	acqMu sync.Mutex

	mu        sync.RWMutex
	cfg       llm.SessionConfig
	status    Status
	detail    string
	handle    llm.SessionHandle
	sessionID string
	updatedAt time.Time

	changes *bus.Bus[State]
	now     func() time.Time
	logger  logger.ILogger
}

func NewManager(backend llm.LocalBackend, cfg llm.SessionConfig, log logger.ILogger) *Manager {
	return &Manager{
		backend:   backend,
		cfg:       Clamp(cfg),
		status:    StatusChecking,
		changes:   bus.New[State]("SessionStatus", log),
		now:       time.Now,
		updatedAt: time.Now(),
		logger:    log,
	}
}

// OnStatusChange registers a listener invoked after every transition.
func (m *Manager) OnStatusChange(cb func(State)) *bus.Subscription {
	return m.changes.Subscribe(cb)
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	return State{
		ID:              m.sessionID,
		Status:          m.status,
		Label:           m.status.Label(),
		Detail:          m.detail,
		HasHandle:       m.handle != nil,
		UpdatedAt:       m.updatedAt,
		Temperature:     m.cfg.Temperature,
		TopK:            m.cfg.TopK,
		MaxOutputTokens: m.cfg.MaxOutputTokens,
		TimeoutSeconds:  m.cfg.TimeoutSeconds,
	}
}

func (m *Manager) Config() llm.SessionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) transition(to Status, detail string) {
	m.mu.Lock()
	from := m.status
	if !canTransition(from, to) {
		m.mu.Unlock()
		m.logger.Warn("SessionManager", "Ignoring invalid status transition", map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		})
		return
	}
	m.status = to
	m.detail = detail
	m.updatedAt = m.now()
	state := m.stateLocked()
	m.mu.Unlock()

	m.logger.Info("SessionManager", "Status changed", map[string]interface{}{
		"from":   string(from),
		"to":     string(to),
		"detail": detail,
	})
	m.changes.Publish(state)
}

func (m *Manager) setDetail(detail string) {
	m.mu.Lock()
	m.detail = detail
	m.updatedAt = m.now()
	state := m.stateLocked()
	m.mu.Unlock()
	m.changes.Publish(state)
}

// Acquire runs the full acquisition sequence from checking. Any existing
// handle is destroyed first. The returned error mirrors the final status:
// nil for ready or downloading.
func (m *Manager) Acquire(ctx context.Context) error {
	m.acqMu.Lock()
	defer m.acqMu.Unlock()
	return m.acquireLocked(ctx)
}

func (m *Manager) acquireLocked(ctx context.Context) error {
	m.transition(StatusChecking, "")
	m.dropHandle(ctx)

	if m.backend == nil {
		m.transition(StatusUnavailable, "AI model is not available")
		return apperr.CapabilityUnavailable("session.acquire", errors.New("no local backend"))
	}

	caps, err := m.backend.Capabilities(ctx)
	if err != nil {
		m.transition(StatusUnavailable, "AI model is not available")
		return apperr.CapabilityUnavailable("session.acquire", err)
	}

	cfg := m.Config()
	switch caps.Available {
	case llm.AvailableReadily:
		h, err := m.create(ctx, cfg, nil)
		if err != nil {
			m.transition(StatusError, err.Error())
			return apperr.SessionCreation("session.acquire", err)
		}
		if !m.probe(ctx, h) {
			m.destroy(ctx, h)
			m.transition(StatusError, "Failed to create valid session")
			return apperr.SessionCreation("session.acquire", errors.New("failed to create valid session"))
		}
		m.install(h)
		m.transition(StatusReady, "")
		return nil

	case llm.AvailableAfterDownload:
		m.transition(StatusDownloading, "Model needs to be downloaded first. This may take a moment.")
		h, err := m.create(ctx, cfg, m.onProgress)
		if err != nil {
			m.transition(StatusError, err.Error())
			return apperr.SessionCreation("session.acquire", err)
		}
		m.install(h)
		m.transition(StatusReady, "")
		return nil

	default:
		m.transition(StatusUnavailable, "AI model is not available")
		return apperr.CapabilityUnavailable("session.acquire",
			fmt.Errorf("capability %q", caps.Available))
	}
}

func (m *Manager) onProgress(loaded, total int64) {
	if total <= 0 {
		return
	}
	// Ready waits for the handle to be installed, so 100% only updates the detail.
	pct := int(float64(loaded) / float64(total) * 100)
	if pct >= 100 {
		m.setDetail("Model downloaded, starting session")
		return
	}
	m.setDetail(fmt.Sprintf("Downloading model: %d%%", pct))
}

type createResult struct {
	handle llm.SessionHandle
	err    error
}

// create bounds backend creation by cfg.TimeoutSeconds. A handle that
// arrives after the deadline is destroyed.
func (m *Manager) create(ctx context.Context, cfg llm.SessionConfig, progress llm.ProgressFunc) (llm.SessionHandle, error) {
	if cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	done := make(chan createResult, 1)
	go func() {
		h, err := m.backend.Create(ctx, cfg, progress)
		done <- createResult{handle: h, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && res.handle == nil {
			return nil, errors.New("backend returned no session")
		}
		return res.handle, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.handle != nil {
				m.destroy(context.Background(), res.handle)
			}
		}()
		return nil, fmt.Errorf("session creation timed out after %ds: %w", cfg.TimeoutSeconds, ctx.Err())
	}
}

func (m *Manager) probe(ctx context.Context, h llm.SessionHandle) bool {
	if h == nil {
		return false
	}
	if _, err := h.Prompt(ctx, probeText); err != nil {
		m.logger.Warn("SessionManager", "Session probe failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

func (m *Manager) install(h llm.SessionHandle) {
	m.mu.Lock()
	m.handle = h
	m.sessionID = uuid.NewString()
	m.mu.Unlock()
}

func (m *Manager) dropHandle(ctx context.Context) {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.sessionID = ""
	m.mu.Unlock()

	if h != nil {
		m.destroy(ctx, h)
	}
}

// destroy swallows failures; a handle that cannot be destroyed is abandoned.
func (m *Manager) destroy(ctx context.Context, h llm.SessionHandle) {
	if err := h.Destroy(ctx); err != nil {
		m.logger.Warn("SessionManager", "Error destroying session", map[string]interface{}{"error": err.Error()})
	}
}

// Validate reports whether the current handle answers a probe.
func (m *Manager) Validate(ctx context.Context) bool {
	m.mu.RLock()
	h := m.handle
	status := m.status
	m.mu.RUnlock()

	if status != StatusReady {
		return false
	}
	return m.probe(ctx, h)
}

// Refresh re-validates a ready session and re-acquires it when the probe fails.
// Sessions in other states are left alone, and so is a session whose
// acquisition is already in progress.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.acqMu.TryLock() {
		m.logger.Debug("SessionManager", "Acquisition in progress, skipping refresh", nil)
		return nil
	}
	defer m.acqMu.Unlock()

	if m.Status() != StatusReady {
		return nil
	}
	if m.Validate(ctx) {
		return nil
	}

	m.logger.Info("SessionManager", "Session expired, refreshing", nil)
	return m.acquireLocked(ctx)
}

// Ensure returns nil when a usable session exists, acquiring one when the
// current session is missing or fails validation. A downloading session
// counts as not usable.
func (m *Manager) Ensure(ctx context.Context) error {
	m.acqMu.Lock()
	defer m.acqMu.Unlock()

	if m.Validate(ctx) {
		return nil
	}
	if err := m.acquireLocked(ctx); err != nil {
		return err
	}
	if m.Status() != StatusReady {
		return apperr.SessionInvalid("session.ensure", fmt.Errorf("session is %s", m.Status()))
	}
	return nil
}

// Restart is the explicit user re-check. It is the only way out of error and unavailable.
func (m *Manager) Restart(ctx context.Context) error {
	return m.Acquire(ctx)
}

// Reconfigure replaces the creation settings and restarts the session.
func (m *Manager) Reconfigure(ctx context.Context, cfg llm.SessionConfig) error {
	m.mu.Lock()
	m.cfg = Clamp(cfg)
	m.mu.Unlock()
	return m.Restart(ctx)
}

// Prompt sends text through the current handle.
func (m *Manager) Prompt(ctx context.Context, text string) (string, error) {
	m.mu.RLock()
	h := m.handle
	status := m.status
	m.mu.RUnlock()

	if h == nil || status != StatusReady {
		return "", apperr.SessionInvalid("session.prompt", fmt.Errorf("session is %s", status))
	}
	return h.Prompt(ctx, text)
}

// Close destroys the current handle. Destroy failures are logged, not returned.
func (m *Manager) Close(ctx context.Context) {
	m.acqMu.Lock()
	defer m.acqMu.Unlock()

	m.dropHandle(ctx)
	m.changes.Close()
}
