package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"
	"procsight/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	mu         sync.Mutex
	promptErr  error
	destroyErr error
	prompts    []string
	destroyed  bool
}

func (h *fakeHandle) Prompt(ctx context.Context, text string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts = append(h.prompts, text)
	if h.destroyed {
		return "", apperr.SessionInvalid("fake.prompt", errors.New("destroyed"))
	}
	if h.promptErr != nil {
		return "", h.promptErr
	}
	return "ok: " + text, nil
}

func (h *fakeHandle) Destroy(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	return h.destroyErr
}

func (h *fakeHandle) setPromptErr(err error) {
	h.mu.Lock()
	h.promptErr = err
	h.mu.Unlock()
}

func (h *fakeHandle) isDestroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// scriptedBackend answers capability probes from a script, repeating the last entry.
type scriptedBackend struct {
	mu        sync.Mutex
	caps      []llm.Availability
	capsErr   error
	createErr error
	delay     time.Duration
	progress  [][2]int64
	handles   []*fakeHandle
	nextErr   error
}

func (b *scriptedBackend) Capabilities(ctx context.Context) (llm.Capabilities, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capsErr != nil {
		return llm.Capabilities{}, b.capsErr
	}
	a := b.caps[0]
	if len(b.caps) > 1 {
		b.caps = b.caps[1:]
	}
	return llm.Capabilities{Available: a}, nil
}

func (b *scriptedBackend) Create(ctx context.Context, cfg llm.SessionConfig, progress llm.ProgressFunc) (llm.SessionHandle, error) {
	b.mu.Lock()
	delay, createErr, steps := b.delay, b.createErr, b.progress
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if createErr != nil {
		return nil, createErr
	}
	if progress != nil {
		for _, s := range steps {
			progress(s[0], s[1])
		}
	}

	h := &fakeHandle{promptErr: b.nextErr}
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h, nil
}

func (b *scriptedBackend) lastHandle() *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[len(b.handles)-1]
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.statuses); n == 0 || r.statuses[n-1] != s.Status {
		r.statuses = append(r.statuses, s.Status)
	}
}

func (r *recorder) get() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func newTestManager(b llm.LocalBackend) (*Manager, *recorder) {
	m := NewManager(b, DefaultConfig("Be brief."), logger.NewNopLogger())
	r := &recorder{}
	m.OnStatusChange(r.record)
	return m, r
}

func TestAcquireReadily(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}}
	m, r := newTestManager(b)

	require.NoError(t, m.Acquire(context.Background()))

	assert.Equal(t, StatusReady, m.Status())
	assert.Equal(t, []Status{StatusChecking, StatusReady}, r.get())
	assert.Equal(t, []string{"test"}, b.lastHandle().prompts)
	assert.NotEmpty(t, m.State().ID)

	text, err := m.Prompt(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok: hello", text)
}

func TestAcquireScriptedSequences(t *testing.T) {
	tests := []struct {
		name      string
		backend   *scriptedBackend
		want      []Status
		wantFinal Status
		wantKind  apperr.Kind
	}{
		{
			name:      "after download reaches 100 percent",
			backend:   &scriptedBackend{caps: []llm.Availability{llm.AvailableAfterDownload}, progress: [][2]int64{{10, 100}, {100, 100}}},
			want:      []Status{StatusChecking, StatusDownloading, StatusReady},
			wantFinal: StatusReady,
		},
		{
			name:      "download creation fails",
			backend:   &scriptedBackend{caps: []llm.Availability{llm.AvailableAfterDownload}, createErr: errors.New("disk full")},
			want:      []Status{StatusChecking, StatusDownloading, StatusError},
			wantFinal: StatusError,
			wantKind:  apperr.KindSessionCreationFailure,
		},
		{
			name:      "unknown capability",
			backend:   &scriptedBackend{caps: []llm.Availability{llm.AvailableNo}},
			want:      []Status{StatusChecking, StatusUnavailable},
			wantFinal: StatusUnavailable,
			wantKind:  apperr.KindCapabilityUnavailable,
		},
		{
			name:      "probe failure",
			backend:   &scriptedBackend{capsErr: errors.New("connection refused")},
			want:      []Status{StatusChecking, StatusUnavailable},
			wantFinal: StatusUnavailable,
			wantKind:  apperr.KindCapabilityUnavailable,
		},
		{
			name:      "creation fails",
			backend:   &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}, createErr: errors.New("boom")},
			want:      []Status{StatusChecking, StatusError},
			wantFinal: StatusError,
			wantKind:  apperr.KindSessionCreationFailure,
		},
		{
			name:      "created session fails validation",
			backend:   &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}, nextErr: errors.New("no answer")},
			want:      []Status{StatusChecking, StatusError},
			wantFinal: StatusError,
			wantKind:  apperr.KindSessionCreationFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, r := newTestManager(tt.backend)

			err := m.Acquire(context.Background())
			if tt.wantKind == "" {
				require.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			}
			assert.Equal(t, tt.want, r.get())
			assert.Equal(t, tt.wantFinal, m.Status())
		})
	}
}

func TestNilBackendIsUnavailable(t *testing.T) {
	m, _ := newTestManager(nil)
	err := m.Acquire(context.Background())
	assert.Equal(t, apperr.KindCapabilityUnavailable, apperr.KindOf(err))
	assert.Equal(t, StatusUnavailable, m.Status())
}

func TestCreationTimeout(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}, delay: 5 * time.Second}
	cfg := DefaultConfig("")
	cfg.TimeoutSeconds = 1
	m := NewManager(b, cfg, logger.NewNopLogger())

	start := time.Now()
	err := m.Acquire(context.Background())

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, apperr.KindSessionCreationFailure, apperr.KindOf(err))
	assert.Equal(t, StatusError, m.Status())
}

func TestRefreshReacquiresExpiredSession(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}}
	m, r := newTestManager(b)
	require.NoError(t, m.Acquire(context.Background()))
	first := b.lastHandle()

	require.NoError(t, m.Refresh(context.Background()))
	assert.Same(t, first, b.lastHandle(), "valid session is kept")

	first.setPromptErr(apperr.SessionInvalid("fake", errors.New("expired")))
	require.NoError(t, m.Refresh(context.Background()))

	assert.True(t, first.isDestroyed())
	assert.NotSame(t, first, b.lastHandle())
	assert.Equal(t, StatusReady, m.Status())
	assert.Equal(t, []Status{StatusChecking, StatusReady, StatusChecking, StatusReady}, r.get())
}

func TestErrorIsTerminalUntilRestart(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableNo, llm.AvailableReadily}}
	m, _ := newTestManager(b)

	_ = m.Acquire(context.Background())
	require.Equal(t, StatusUnavailable, m.Status())

	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, StatusUnavailable, m.Status())

	require.NoError(t, m.Restart(context.Background()))
	assert.Equal(t, StatusReady, m.Status())
}

func TestPromptWithoutSession(t *testing.T) {
	m, _ := newTestManager(&scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}})
	_, err := m.Prompt(context.Background(), "hi")
	assert.Equal(t, apperr.KindSessionInvalid, apperr.KindOf(err))
}

func TestEnsure(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}}
	m, _ := newTestManager(b)

	require.NoError(t, m.Ensure(context.Background()))
	h := b.lastHandle()
	require.NoError(t, m.Ensure(context.Background()))
	assert.Same(t, h, b.lastHandle())

	unavailable, _ := newTestManager(&scriptedBackend{caps: []llm.Availability{llm.AvailableNo}})
	err := unavailable.Ensure(context.Background())
	assert.True(t, apperr.IsSessionRelated(err))
}

func TestCloseSwallowsDestroyFailure(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}}
	m, _ := newTestManager(b)
	require.NoError(t, m.Acquire(context.Background()))

	h := b.lastHandle()
	h.destroyErr = errors.New("already gone")
	m.Close(context.Background())

	assert.True(t, h.isDestroyed())
	assert.False(t, m.State().HasHandle)
}

func TestReconfigureClampsAndRestarts(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}}
	m, _ := newTestManager(b)
	require.NoError(t, m.Acquire(context.Background()))
	first := b.lastHandle()

	require.NoError(t, m.Reconfigure(context.Background(), llm.SessionConfig{Temperature: 3, TopK: 20}))

	cfg := m.Config()
	assert.Equal(t, 1.0, cfg.Temperature)
	assert.Equal(t, 8, cfg.TopK)
	assert.True(t, first.isDestroyed())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, canTransition(StatusDownloading, StatusReady))
	assert.True(t, canTransition(StatusDownloading, StatusError))
	assert.False(t, canTransition(StatusReady, StatusError))
	assert.False(t, canTransition(StatusUnavailable, StatusReady))
	assert.False(t, canTransition(StatusError, StatusReady))
	assert.True(t, canTransition(StatusError, StatusChecking))
}

func TestReadyAfterDownloadAlwaysHasHandle(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableAfterDownload}, progress: [][2]int64{{50, 100}, {100, 100}}}
	m := NewManager(b, DefaultConfig(""), logger.NewNopLogger())

	var mu sync.Mutex
	var ready []State
	m.OnStatusChange(func(s State) {
		if s.Status == StatusReady {
			mu.Lock()
			ready = append(ready, s)
			mu.Unlock()
		}
	})

	require.NoError(t, m.Acquire(context.Background()))
	require.Equal(t, StatusReady, m.Status())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ready) > 0
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for _, s := range ready {
		assert.True(t, s.HasHandle)
	}
}

func TestRefreshSkipsWhileAcquiring(t *testing.T) {
	b := &scriptedBackend{caps: []llm.Availability{llm.AvailableReadily}, delay: 1500 * time.Millisecond}
	m, _ := newTestManager(b)

	acquired := make(chan error, 1)
	go func() { acquired <- m.Acquire(context.Background()) }()
	require.Eventually(t, func() bool { return m.Status() == StatusChecking }, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Refresh(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, <-acquired)
	assert.Equal(t, StatusReady, m.Status())
}
