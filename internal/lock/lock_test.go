package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dormitory-housing-backend/internal/apperr"
)

func TestManager_KeysSerialize(t *testing.T) {
	m := NewManager(time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Keys(context.Background(), ApplicationKey(1))
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.size(), "keys should be dropped once released")
}

func TestManager_Timeout(t *testing.T) {
	m := NewManager(20 * time.Millisecond)

	release, err := m.Dormitories(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	_, err = m.Dormitories(context.Background(), 1)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, "dormitory:1 is busy, try again", apperr.Message(err))

	// A different dormitory is still available.
	other, err := m.Dormitories(context.Background(), 2)
	require.NoError(t, err)
	other()
}

func TestManager_StructureExcludesDormitories(t *testing.T) {
	m := NewManager(20 * time.Millisecond)

	release, err := m.Structure(context.Background())
	require.NoError(t, err)

	_, err = m.Dormitories(context.Background(), 5)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	release()

	dorm, err := m.Dormitories(context.Background(), 5)
	require.NoError(t, err)

	_, err = m.Structure(context.Background())
	assert.ErrorIs(t, err, apperr.ErrConflict, "structure must wait for dormitory holders")
	dorm()
}

func TestManager_OverlappingSetsDoNotDeadlock(t *testing.T) {
	m := NewManager(2 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := m.Dormitories(context.Background(), 1, 2)
			require.NoError(t, err)
			release()
		}()
		go func() {
			defer wg.Done()
			release, err := m.Dormitories(context.Background(), 2, 1)
			require.NoError(t, err)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.size())
}

func TestManager_CancelledContext(t *testing.T) {
	m := NewManager(time.Second)
	release, err := m.Keys(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Keys(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"c", "a", "b", "a"}))
}
