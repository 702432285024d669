package service

import (
	"sync"
	"testing"
	"time"

	"procsight/internal/monitor"
	"procsight/internal/pkg/logger"
	"procsight/pkg/bus"
	"procsight/pkg/events"
	"procsight/pkg/session"
	"procsight/pkg/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updateBus struct{ b *bus.Bus[*monitor.Update] }

func (u updateBus) Subscribe(cb func(*monitor.Update)) *bus.Subscription {
	return u.b.Subscribe(cb)
}

type statusBus struct{ b *bus.Bus[session.State] }

func (s statusBus) OnStatusChange(cb func(session.State)) *bus.Subscription {
	return s.b.Subscribe(cb)
}

type recordingHub struct {
	mu    sync.Mutex
	kinds []string
}

func (h *recordingHub) BroadcastJSON(kind string, v interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kinds = append(h.kinds, kind)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) PublishAsync(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func TestRelayForwardsUpdatesAndStatuses(t *testing.T) {
	nop := logger.NewNopLogger()
	updates := bus.New[*monitor.Update]("telemetry", nop)
	statuses := bus.New[session.State]("session", nop)
	hub := &recordingHub{}
	pub := &recordingPublisher{}

	relay := NewRelayService(updateBus{updates}, statusBus{statuses}, hub, pub, nop)
	relay.Start()

	log := telemetry.NewRollingLog(12)
	log.Rows = []telemetry.Row{{ProcessID: 1}, {ProcessID: 2}}
	updates.Publish(&monitor.Update{Reason: monitor.ReasonCapture, At: time.Now(), Log: log, Text: log.String()})
	statuses.Publish(session.State{Status: session.StatusReady})

	assert.Equal(t, []string{MessageTelemetry, MessageSession}, hub.kinds)
	require.Len(t, pub.events, 2)
	assert.Equal(t, events.TypeTelemetryCapture, pub.events[0].EventType())
	assert.Equal(t, 2, pub.events[0].Payload()["rows"])
	assert.Equal(t, events.TypeSessionStatus, pub.events[1].EventType())
	assert.False(t, pub.events[1].Timestamp().IsZero())

	relay.Stop()
	updates.Publish(&monitor.Update{Reason: monitor.ReasonUpdate})
	assert.Len(t, hub.kinds, 2)
}

func TestRelayWithoutOptionalSinks(t *testing.T) {
	nop := logger.NewNopLogger()
	updates := bus.New[*monitor.Update]("telemetry", nop)

	relay := NewRelayService(updateBus{updates}, nil, nil, nil, nop)
	relay.Start()
	defer relay.Stop()

	assert.Equal(t, 1, updates.Publish(&monitor.Update{Reason: monitor.ReasonExit}))
}
