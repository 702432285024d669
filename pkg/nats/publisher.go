package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName    = "TELEMETRY"
	SubjectPrefix = "procsight"

	// Telemetry is ephemeral; the stream only keeps the most recent messages.
	streamMaxMsgs = 1000
)

// Subject returns the full NATS subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + "." + eventType
}

// Publisher relays events to a JetStream stream.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
}

func connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	return nc, js, nil
}

func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.MemoryStorage,
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   streamMaxMsgs,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		log.Warn("NATS", "Failed to ensure stream", map[string]interface{}{
			"stream": StreamName,
			"error":  err.Error(),
		})
	}

	return &Publisher{nc: nc, js: js, logger: log}, nil
}

// Publish waits for the JetStream ack.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, subject, err := encode(event)
	if err != nil {
		return err
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

// PublishAsync does not wait for the ack. Used from synchronous bus callbacks.
func (p *Publisher) PublishAsync(event events.Event) {
	data, subject, err := encode(event)
	if err != nil {
		p.logger.Warn("NATS", "Dropping event", map[string]interface{}{"error": err.Error()})
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.logger.Warn("NATS", "Async publish failed", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

func encode(event events.Event) ([]byte, string, error) {
	data, err := json.Marshal(event.Payload())
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return data, Subject(event.EventType()), nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
