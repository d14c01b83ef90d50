package timer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type memoryStore struct {
	mu      sync.Mutex
	states  map[string]State
	saveErr error
	loadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{states: map[string]State{}}
}

func (m *memoryStore) Load(_ context.Context, key string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if state, ok := m.states[key]; ok {
		copied := state
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStore) Save(_ context.Context, key string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.states[key] = state
	return nil
}

func (m *memoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

func testArena(store Store) *Arena {
	return NewArena(store, zerolog.Nop())
}

func TestStartFreshCountdown(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)

	cd, err := arena.Start(context.Background(), "s1", 120)
	assert.NoError(t, err)
	assert.Equal(t, 120, cd.Remaining())
	assert.False(t, cd.IsExpired())

	persisted := store.states["s1"]
	assert.Equal(t, 120, persisted.RemainingSeconds)
	assert.Equal(t, 120, persisted.TotalSeconds)
}

func TestStartResumesPersistedState(t *testing.T) {
	store := newMemoryStore()
	store.states["s1"] = State{RemainingSeconds: 45, TotalSeconds: 120}
	arena := testArena(store)

	cd, err := arena.Start(context.Background(), "s1", 120)
	assert.NoError(t, err)
	assert.Equal(t, 45, cd.Remaining(), "persisted remaining time wins over a fresh total")
	assert.Equal(t, 75, cd.State().ElapsedSeconds())
}

func TestStartPreservesExpiredPersistedState(t *testing.T) {
	store := newMemoryStore()
	store.states["s1"] = State{RemainingSeconds: 0, TotalSeconds: 120, Expired: true}
	arena := testArena(store)

	cd, err := arena.Start(context.Background(), "s1", 120)
	assert.NoError(t, err)
	assert.True(t, cd.IsExpired(), "expiry is terminal; a reload must not grant a fresh countdown")
	assert.Equal(t, 0, cd.Remaining())

	// A rehydrated expired countdown is inert and must not re-emit expiry.
	cd.Tick(context.Background())
	select {
	case <-arena.Expiries():
		t.Fatal("rehydrated expired countdown must not emit an expiry event")
	default:
	}
}

func TestStartReturnsExpiredInMemoryCountdown(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	cd, _ := arena.Start(ctx, "s1", 2)
	cd.Tick(ctx)
	cd.Tick(ctx)
	assert.True(t, cd.IsExpired())

	again, err := arena.Start(ctx, "s1", 120)
	assert.NoError(t, err)
	assert.Same(t, cd, again)
	assert.True(t, again.IsExpired())
	assert.Equal(t, 0, again.Remaining())
}

func TestStartReturnsRunningCountdown(t *testing.T) {
	arena := testArena(newMemoryStore())
	ctx := context.Background()

	first, err := arena.Start(ctx, "s1", 120)
	assert.NoError(t, err)
	first.Tick(ctx)

	second, err := arena.Start(ctx, "s1", 120)
	assert.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 119, second.Remaining())
}

func TestStartSurvivesStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.saveErr = errors.New("redis down")
	store.loadErr = errors.New("redis down")
	arena := testArena(store)

	cd, err := arena.Start(context.Background(), "s1", 60)
	assert.NoError(t, err)
	assert.Equal(t, 60, cd.Remaining())
}

func TestTickDecrementsAndPersists(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	cd, _ := arena.Start(ctx, "s1", 3)
	cd.Tick(ctx)

	assert.Equal(t, 2, cd.Remaining())
	assert.Equal(t, 2, store.states["s1"].RemainingSeconds)
}

func TestTickEmitsExpiryExactlyOnce(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	cd, _ := arena.Start(ctx, "s1", 2)
	cd.Tick(ctx)
	cd.Tick(ctx)
	assert.True(t, cd.IsExpired())

	// Further ticks must stay inert.
	cd.Tick(ctx)
	cd.Tick(ctx)
	assert.Equal(t, 0, cd.Remaining())

	select {
	case key := <-arena.Expiries():
		assert.Equal(t, "s1", key)
	default:
		t.Fatal("expected one expiry event")
	}

	select {
	case <-arena.Expiries():
		t.Fatal("expiry emitted more than once")
	default:
	}
}

func TestTickAllDrivesEverySession(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	a, _ := arena.Start(ctx, "a", 10)
	b, _ := arena.Start(ctx, "b", 20)

	arena.tickAll(ctx)

	assert.Equal(t, 9, a.Remaining())
	assert.Equal(t, 19, b.Remaining())
}

func TestStopFreezesWithoutExpiry(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	cd, _ := arena.Start(ctx, "s1", 10)
	assert.NoError(t, arena.Stop(ctx, "s1"))

	cd.Tick(ctx)
	assert.Equal(t, 10, cd.Remaining(), "frozen countdown must not tick")

	select {
	case <-arena.Expiries():
		t.Fatal("stop must not emit an expiry event")
	default:
	}

	_, ok := store.states["s1"]
	assert.False(t, ok, "persisted state must be cleared")
}

func TestStopThenStartBeginsFresh(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	cd, _ := arena.Start(ctx, "s1", 10)
	cd.Tick(ctx)
	assert.NoError(t, arena.Stop(ctx, "s1"))

	fresh, err := arena.Start(ctx, "s1", 10)
	assert.NoError(t, err)
	assert.Equal(t, 10, fresh.Remaining())
}

func TestSnapshotFallsBackToStore(t *testing.T) {
	store := newMemoryStore()
	store.states["cold"] = State{RemainingSeconds: 30, TotalSeconds: 60}
	arena := testArena(store)

	snap, err := arena.Snapshot(context.Background(), "cold")
	assert.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, 30, snap.RemainingSeconds)
}

func TestSnapshotPrefersLiveCountdown(t *testing.T) {
	store := newMemoryStore()
	arena := testArena(store)
	ctx := context.Background()

	cd, _ := arena.Start(ctx, "s1", 60)
	cd.Tick(ctx)

	snap, err := arena.Snapshot(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 59, snap.RemainingSeconds)
}
