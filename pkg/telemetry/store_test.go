package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"procsight/internal/pkg/logger"
	"procsight/pkg/apperr"
	"procsight/pkg/kv"
	"procsight/pkg/kv/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyKV fails writes or reads on demand.
type flakyKV struct {
	kv.Store
	failSet bool
	failGet bool
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errors.New("read failed")
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.failSet {
		return errors.New("quota exceeded")
	}
	return f.Store.Set(ctx, key, value)
}

func newTestStore(backing kv.Store) *Store {
	return NewStore(backing, NewFormatter(fixedNow), DefaultMaxRows, logger.NewNopLogger())
}

func snapshotOf(n int) Snapshot {
	snap := Snapshot{}
	for i := 1; i <= n; i++ {
		snap[i] = ProcessRecord{
			CPUPercent: float64(i),
			Type:       ProcessTypeRenderer,
			Tasks:      []Task{{Title: fmt.Sprintf("Tab %d", i)}},
		}
	}
	return snap
}

func TestReadBeforeCaptureIsHeaderOnly(t *testing.T) {
	s := newTestStore(memory.NewStore())

	log := s.Read(context.Background())
	assert.Equal(t, Header, log.Header)
	assert.Empty(t, log.Rows)
	assert.Equal(t, Header, log.String())
}

func TestCaptureThenReadReturnsEveryRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewStore())

	for _, n := range []int{0, 1, 5, 15} {
		t.Run(fmt.Sprintf("%d processes", n), func(t *testing.T) {
			_, err := s.Capture(ctx, snapshotOf(n))
			require.NoError(t, err)

			log := s.Read(ctx)
			assert.Len(t, log.Rows, n)
		})
	}
}

func TestCaptureReplacesPreviousRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewStore())

	_, err := s.Capture(ctx, snapshotOf(5))
	require.NoError(t, err)
	_, err = s.Capture(ctx, Snapshot{99: {Type: ProcessTypeGPU}})
	require.NoError(t, err)

	log := s.Read(ctx)
	require.Len(t, log.Rows, 1)
	assert.Equal(t, 99, log.Rows[0].ProcessID)
}

func TestCompactKeepsMostRecentTwelve(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewStore())

	_, err := s.Capture(ctx, snapshotOf(15))
	require.NoError(t, err)

	log, err := s.Compact(ctx)
	require.NoError(t, err)
	require.Len(t, log.Rows, 12)
	assert.Equal(t, 4, log.Rows[0].ProcessID)
	assert.Equal(t, 15, log.Rows[11].ProcessID)

	persisted := s.Read(ctx)
	assert.Equal(t, log.String(), persisted.String())
	assert.Equal(t, Header, persisted.Header)
}

func TestCompactIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewStore())

	_, err := s.Capture(ctx, snapshotOf(20))
	require.NoError(t, err)

	first, err := s.Compact(ctx)
	require.NoError(t, err)
	second, err := s.Compact(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
}

func TestCompactWithinBoundDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	backing := &flakyKV{Store: memory.NewStore()}
	s := newTestStore(backing)

	_, err := s.Capture(ctx, snapshotOf(3))
	require.NoError(t, err)

	backing.failSet = true
	log, err := s.Compact(ctx)
	require.NoError(t, err)
	assert.Len(t, log.Rows, 3)
}

func TestCaptureStorageFailureKeepsPreviousValue(t *testing.T) {
	ctx := context.Background()
	backing := &flakyKV{Store: memory.NewStore()}
	s := newTestStore(backing)

	_, err := s.Capture(ctx, snapshotOf(2))
	require.NoError(t, err)

	backing.failSet = true
	_, err = s.Capture(ctx, snapshotOf(7))
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorageFailure, apperr.KindOf(err))

	backing.failSet = false
	assert.Len(t, s.Read(ctx).Rows, 2)
}

func TestReadFailureYieldsEmptyLog(t *testing.T) {
	ctx := context.Background()
	backing := &flakyKV{Store: memory.NewStore()}
	s := newTestStore(backing)

	_, err := s.Capture(ctx, snapshotOf(2))
	require.NoError(t, err)

	backing.failGet = true
	assert.Empty(t, s.Read(ctx).Rows)

	_, err = s.Compact(ctx)
	assert.Equal(t, apperr.KindStorageFailure, apperr.KindOf(err))
}

func TestMalformedBlobReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	require.NoError(t, backing.Set(ctx, kv.KeyProcessLogs, Header+"\nnot a row"))

	s := newTestStore(backing)
	assert.Empty(t, s.Read(ctx).Rows)
}

func TestConcurrentCaptureAndCompactDoNotCrash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memory.NewStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, _ = s.Capture(ctx, snapshotOf(n))
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.Compact(ctx)
		}()
	}
	wg.Wait()

	log := s.Read(ctx)
	assert.Equal(t, Header, log.Header)
}
