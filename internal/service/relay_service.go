package service

import (
	"sync"
	"time"

	"procsight/internal/monitor"
	"procsight/internal/pkg/logger"
	"procsight/pkg/bus"
	"procsight/pkg/events"
	"procsight/pkg/session"
)

const (
	MessageTelemetry = "telemetry"
	MessageSession   = "session"
)

type UpdateSource interface {
	Subscribe(cb func(*monitor.Update)) *bus.Subscription
}

type StatusSource interface {
	OnStatusChange(cb func(session.State)) *bus.Subscription
}

// Broadcaster pushes JSON frames to live clients (the websocket hub).
type Broadcaster interface {
	BroadcastJSON(kind string, v interface{}) error
}

// EventPublisher relays events off-process (the NATS publisher).
type EventPublisher interface {
	PublishAsync(event events.Event)
}

// RelayService forwards every telemetry publish and session transition to
// the websocket hub and, when configured, to NATS.
type RelayService struct {
	updates   UpdateSource
	statuses  StatusSource
	hub       Broadcaster
	publisher EventPublisher

	mu   sync.Mutex
	subs []*bus.Subscription

	logger logger.ILogger
}

// NewRelayService accepts nil for statuses, hub or publisher.
func NewRelayService(updates UpdateSource, statuses StatusSource, hub Broadcaster, publisher EventPublisher, log logger.ILogger) *RelayService {
	return &RelayService{
		updates:   updates,
		statuses:  statuses,
		hub:       hub,
		publisher: publisher,
		logger:    log,
	}
}

func (s *RelayService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs, s.updates.Subscribe(s.onUpdate))
	if s.statuses != nil {
		s.subs = append(s.subs, s.statuses.OnStatusChange(s.onStatus))
	}
}

func (s *RelayService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		sub.Cancel()
	}
	s.subs = nil
}

func (s *RelayService) onUpdate(u *monitor.Update) {
	if s.hub != nil {
		if err := s.hub.BroadcastJSON(MessageTelemetry, u); err != nil {
			s.logger.Warn("Relay", "Broadcast failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.publisher != nil {
		s.publisher.PublishAsync(events.Telemetry(u.Reason, u.Text, u.Log.Len(), u.At))
	}
}

func (s *RelayService) onStatus(st session.State) {
	if s.hub != nil {
		if err := s.hub.BroadcastJSON(MessageSession, st); err != nil {
			s.logger.Warn("Relay", "Broadcast failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.publisher != nil {
		at := st.UpdatedAt
		if at.IsZero() {
			at = time.Now()
		}
		s.publisher.PublishAsync(events.SessionStatus(string(st.Status), st.Detail, at))
	}
}
