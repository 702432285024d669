// Package scheduler runs periodic tasks and injected events on a single
// dispatcher goroutine, so jobs never execute concurrently with each other.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"procsight/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

var ErrNotRunning = errors.New("scheduler: not running")

const (
	eventsTopic   = "scheduler.events"
	eventMetadata = "event"
)

// Job is a periodic unit of work.
type Job func(ctx context.Context) error

// Handler processes one injected event.
type Handler func(ctx context.Context, payload []byte) error

// Task is a handle to a periodic job.
type Task struct {
	Name     string
	Interval time.Duration

	job    Job
	sch    *Scheduler
	stop   chan struct{}
	once   sync.Once
	runs   int
	runsMu sync.Mutex
}

// Cancel stops future runs. A run already queued still executes.
func (t *Task) Cancel() {
	t.once.Do(func() { close(t.stop) })
}

// Trigger queues an immediate run outside the interval.
func (t *Task) Trigger() {
	t.sch.enqueue(t.Name, func(ctx context.Context) error {
		return t.run(ctx)
	})
}

// Runs reports how many times the job has executed.
func (t *Task) Runs() int {
	t.runsMu.Lock()
	defer t.runsMu.Unlock()
	return t.runs
}

func (t *Task) run(ctx context.Context) error {
	select {
	case <-t.stop:
		return nil
	default:
	}
	t.runsMu.Lock()
	t.runs++
	t.runsMu.Unlock()
	return t.job(ctx)
}

type work struct {
	name string
	fn   Job
	done func()
}

type Scheduler struct {
	pubSub *gochannel.GoChannel
	work   chan work

	mu       sync.Mutex
	tasks    []*Task
	handlers map[string]Handler
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logger.ILogger
}

func New(log logger.ILogger) *Scheduler {
	// One topic and one subscriber that acks only after the handler ran keeps
	// injected events in call order.
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NopLogger{},
	)

	return &Scheduler{
		pubSub:   pubSub,
		work:     make(chan work, 64),
		handlers: make(map[string]Handler),
		logger:   log,
	}
}

// Every registers a periodic job. Tasks added after Start begin immediately.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) *Task {
	t := &Task{
		Name:     name,
		Interval: interval,
		job:      job,
		sch:      s,
		stop:     make(chan struct{}),
	}

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	running := s.running
	ctx := s.ctx
	s.mu.Unlock()

	if running {
		s.startTicker(ctx, t)
	}
	return t
}

// On registers the handler for an event name. Only one handler per name is kept.
func (s *Scheduler) On(event string, h Handler) error {
	if event == "" {
		return errors.New("scheduler: empty event name")
	}
	s.mu.Lock()
	s.handlers[event] = h
	s.mu.Unlock()
	return nil
}

// Inject hands an event to the dispatcher and returns once its handler has
// run. Events are handled in the order Inject was called. Inject must not be
// called from a job or handler, since those run on the dispatcher itself.
func (s *Scheduler) Inject(event string, payload []byte) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(eventMetadata, event)
	if err := s.pubSub.Publish(eventsTopic, msg); err != nil {
		return fmt.Errorf("inject %s: %w", event, err)
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	tasks := append([]*Task(nil), s.tasks...)
	events := len(s.handlers)
	runCtx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatch(runCtx)

	if err := s.consume(runCtx); err != nil {
		s.Stop()
		return err
	}
	for _, t := range tasks {
		s.startTicker(runCtx, t)
	}

	s.logger.Info("Scheduler", "Scheduler started", map[string]interface{}{
		"tasks":  len(tasks),
		"events": events,
	})
	return nil
}

// Stop cancels all tasks and waits for the dispatcher to exit. A stopped
// scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	if err := s.pubSub.Close(); err != nil {
		s.logger.Warn("Scheduler", "Failed to close pubsub", map[string]interface{}{"error": err.Error()})
	}
	s.logger.Info("Scheduler", "Scheduler stopped", nil)
}

// startTicker is a no-op for tasks without a positive interval; those run only on Trigger.
func (s *Scheduler) startTicker(ctx context.Context, t *Task) {
	if t.Interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.stop:
				return
			case <-ticker.C:
				s.enqueue(t.Name, t.run)
			}
		}
	}()
}

func (s *Scheduler) consume(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, eventsTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", eventsTopic, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range messages {
			s.handleMessage(ctx, msg)
		}
	}()
	return nil
}

// handleMessage forwards msg to the dispatcher and acks it once the handler has run.
func (s *Scheduler) handleMessage(ctx context.Context, msg *message.Message) {
	event := msg.Metadata.Get(eventMetadata)

	s.mu.Lock()
	h := s.handlers[event]
	s.mu.Unlock()

	if h == nil {
		msg.Ack()
		return
	}

	done := make(chan struct{})
	queued := s.enqueueWithDone(ctx, event, func(ctx context.Context) error {
		return h(ctx, msg.Payload)
	}, func() { close(done) })
	if !queued {
		msg.Nack()
		return
	}

	select {
	case <-done:
		msg.Ack()
	case <-ctx.Done():
		msg.Nack()
	}
}

func (s *Scheduler) enqueue(name string, fn Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	s.enqueueWithDone(ctx, name, fn, nil)
}

func (s *Scheduler) enqueueWithDone(ctx context.Context, name string, fn Job, done func()) bool {
	select {
	case s.work <- work{name: name, fn: fn, done: done}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-s.work:
			s.execute(ctx, w)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, w work) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduler", "Job panicked", map[string]interface{}{
				"job":   w.name,
				"panic": fmt.Sprint(r),
			})
		}
		if w.done != nil {
			w.done()
		}
	}()

	if err := w.fn(ctx); err != nil {
		s.logger.Warn("Scheduler", "Job failed", map[string]interface{}{
			"job":   w.name,
			"error": err.Error(),
		})
	}
}
