// Package static is an in-memory snapshot source whose pushes are driven by the caller.
package static

import (
	"context"
	"os"
	"sync"

	"procsight/pkg/telemetry"
)

var _ telemetry.Source = &Source{}

type Source struct {
	mu         sync.Mutex
	snap       telemetry.Snapshot
	listeners  []telemetry.Listener
	terminated []int
}

func New(snap telemetry.Snapshot) *Source {
	if snap == nil {
		snap = telemetry.Snapshot{}
	}
	return &Source{snap: snap.Clone()}
}

// FromFile loads a JSON snapshot keyed by process id.
func FromFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	snap, err := telemetry.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return New(snap), nil
}

func (s *Source) GetSnapshot(ctx context.Context) (telemetry.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone(), nil
}

// Listen registers l for Push and Exit calls until ctx ends.
func (s *Source) Listen(ctx context.Context, l telemetry.Listener) error {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// Push replaces the snapshot and notifies listeners.
func (s *Source) Push(snap telemetry.Snapshot) {
	s.mu.Lock()
	s.snap = snap.Clone()
	listeners := append([]telemetry.Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnUpdate(snap.Clone())
	}
}

// Exit removes pid and notifies listeners.
func (s *Source) Exit(pid int) {
	s.mu.Lock()
	delete(s.snap, pid)
	listeners := append([]telemetry.Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.OnExit(pid)
	}
}

// Listening reports how many listeners are attached.
func (s *Source) Listening() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *Source) Terminate(ctx context.Context, pid int) (bool, error) {
	s.mu.Lock()
	_, ok := s.snap[pid]
	if ok {
		s.terminated = append(s.terminated, pid)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.Exit(pid)
	return true, nil
}

func (s *Source) Terminated() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.terminated...)
}
