// Package lock serializes mutations per dormitory and per application.
//
// Lock order is fixed: Keys (applications, applicants, batches) first, then
// either Dormitories or Structure. Holding a dormitory lock while asking for
// a key is not allowed.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"dormitory-housing-backend/internal/apperr"
)

const maxReaders = 1 << 30

// ErrBusy is wrapped by the Conflict returned when a wait times out, so
// callers can tell contention apart from a rule violation.
var ErrBusy = errors.New("lock wait timed out")

// Release gives back everything a successful acquisition took.
type Release func()

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

// Manager hands out named mutexes plus one structure-wide read/write lock.
// Every acquisition gives up after the configured timeout.
type Manager struct {
	timeout   time.Duration
	structure *semaphore.Weighted

	mu   sync.Mutex
	keys map[string]*keyLock
}

// NewManager creates a lock manager whose waits are bounded by timeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		timeout:   timeout,
		structure: semaphore.NewWeighted(maxReaders),
		keys:      make(map[string]*keyLock),
	}
}

func ApplicationKey(id int64) string    { return fmt.Sprintf("application:%d", id) }
func ApplicantKey(ticket string) string { return "applicant:" + ticket }
func dormitoryKey(id int64) string      { return fmt.Sprintf("dormitory:%d", id) }
func BatchKey(name string) string       { return "batch:" + name }

// Keys locks every named key. Keys are taken in sorted order so two callers
// asking for overlapping sets cannot deadlock.
func (m *Manager) Keys(ctx context.Context, keys ...string) (Release, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.acquireKeys(ctx, keys)
}

// Dormitories takes a shared hold on the structure and exclusive locks on
// the given dormitories.
func (m *Manager) Dormitories(ctx context.Context, ids ...int64) (Release, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.structure.Acquire(ctx, 1); err != nil {
		return nil, busy(ctx, "dormitory structure", err)
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, dormitoryKey(id))
	}
	release, err := m.acquireKeys(ctx, keys)
	if err != nil {
		m.structure.Release(1)
		return nil, err
	}
	return func() {
		release()
		m.structure.Release(1)
	}, nil
}

// Structure takes exclusive access to every dormitory at once.
func (m *Manager) Structure(ctx context.Context) (Release, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.structure.Acquire(ctx, maxReaders); err != nil {
		return nil, busy(ctx, "dormitory structure", err)
	}
	return func() { m.structure.Release(maxReaders) }, nil
}

func (m *Manager) acquireKeys(ctx context.Context, keys []string) (Release, error) {
	keys = dedupe(keys)

	held := make([]string, 0, len(keys))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.release(held[i])
		}
	}

	for _, key := range keys {
		if err := m.acquire(ctx, key); err != nil {
			releaseAll()
			return nil, busy(ctx, key, err)
		}
		held = append(held, key)
	}
	return releaseAll, nil
}

func (m *Manager) acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	kl, ok := m.keys[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		m.keys[key] = kl
	}
	kl.refs++
	m.mu.Unlock()

	if err := kl.sem.Acquire(ctx, 1); err != nil {
		m.mu.Lock()
		m.dropRef(key, kl)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kl, ok := m.keys[key]
	if !ok {
		return
	}
	kl.sem.Release(1)
	m.dropRef(key, kl)
}

// dropRef must be called with m.mu held.
func (m *Manager) dropRef(key string, kl *keyLock) {
	kl.refs--
	if kl.refs == 0 {
		delete(m.keys, key)
	}
}

// size reports how many keys are tracked; used by tests to check cleanup.
func (m *Manager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func busy(ctx context.Context, what string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperr.Error{Kind: apperr.ErrConflict, Message: fmt.Sprintf("%s is busy, try again", what), Err: ErrBusy}
	}
	return err
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
