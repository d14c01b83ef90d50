package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the persisted snapshot of one countdown, keyed by the caller's
// durable session key so a page reload resumes instead of restarting.
type State struct {
	RemainingSeconds int       `json:"remaining_seconds"`
	TotalSeconds     int       `json:"total_seconds"`
	Expired          bool      `json:"expired"`
	StartedAt        time.Time `json:"started_at"`
}

// ElapsedSeconds derives elapsed time from the persisted fields.
func (s State) ElapsedSeconds() int {
	return s.TotalSeconds - s.RemainingSeconds
}

// Store persists countdown state across reloads and process restarts.
type Store interface {
	Load(ctx context.Context, key string) (*State, error)
	Save(ctx context.Context, key string, state State) error
	Clear(ctx context.Context, key string) error
}

// Arena owns every active countdown in this process. Countdowns are explicit
// per-key state objects, not process-wide globals, so concurrent sessions
// (multiple tabs, multiple users) cannot corrupt each other.
type Arena struct {
	mu       sync.Mutex
	sessions map[string]*Countdown
	store    Store
	expiries chan string
	logger   zerolog.Logger
}

func NewArena(store Store, logger zerolog.Logger) *Arena {
	return &Arena{
		sessions: make(map[string]*Countdown),
		store:    store,
		expiries: make(chan string, 64),
		logger:   logger.With().Str("component", "timer_arena").Logger(),
	}
}

// Expiries is the event stream of session keys whose countdown reached zero.
// Each key is emitted exactly once. The owning session subscribes here
// instead of wiring callbacks into the timer.
func (a *Arena) Expiries() <-chan string {
	return a.expiries
}

// Start initializes or resumes the countdown for key. Persisted state wins
// over totalSeconds: that is the reload-survival mechanism. Expiry is
// terminal: an expired countdown, in memory or persisted, is returned as-is
// and never replaced by a fresh one. Only an explicit Stop or Reset clears
// the key for a new session.
func (a *Arena) Start(ctx context.Context, key string, totalSeconds int) (*Countdown, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.sessions[key]; ok && !c.isStopped() {
		return c, nil
	}

	state := State{
		RemainingSeconds: totalSeconds,
		TotalSeconds:     totalSeconds,
		StartedAt:        time.Now().UTC(),
	}
	if persisted, err := a.store.Load(ctx, key); err != nil {
		a.logger.Warn().Err(err).Str("session_key", key).Msg("load persisted countdown failed, starting fresh")
	} else if persisted != nil {
		state = *persisted
		if state.Expired || state.RemainingSeconds <= 0 {
			state.Expired = true
			state.RemainingSeconds = 0
		}
	}

	c := &Countdown{
		key:       key,
		remaining: state.RemainingSeconds,
		total:     state.TotalSeconds,
		startedAt: state.StartedAt,
		expired:   state.Expired,
		arena:     a,
	}
	a.sessions[key] = c

	if err := a.store.Save(ctx, key, state); err != nil {
		// The in-memory countdown still runs; only reload-resume degrades.
		a.logger.Warn().Err(err).Str("session_key", key).Msg("persist countdown start failed")
	}
	return c, nil
}

// Get returns the in-memory countdown for key, if any.
func (a *Arena) Get(key string) (*Countdown, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.sessions[key]
	return c, ok
}

// Snapshot returns countdown state for key, falling back to the persisted
// store when no in-memory countdown exists (e.g. after a process restart).
func (a *Arena) Snapshot(ctx context.Context, key string) (*State, error) {
	if c, ok := a.Get(key); ok {
		s := c.State()
		return &s, nil
	}
	return a.store.Load(ctx, key)
}

// Stop freezes the countdown without marking expiry and clears persisted
// state, so a later Start with the same key begins fresh. Used on manual
// submit.
func (a *Arena) Stop(ctx context.Context, key string) error {
	a.mu.Lock()
	c, ok := a.sessions[key]
	delete(a.sessions, key)
	a.mu.Unlock()

	if ok {
		c.freeze()
	}
	return a.store.Clear(ctx, key)
}

// Reset discards all in-memory and persisted state for key without emitting
// any expiry event.
func (a *Arena) Reset(ctx context.Context, key string) error {
	a.mu.Lock()
	c, ok := a.sessions[key]
	delete(a.sessions, key)
	a.mu.Unlock()

	if ok {
		c.freeze()
	}
	return a.store.Clear(ctx, key)
}

// Run drives one tick per second across every active countdown until the
// context is cancelled.
func (a *Arena) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.tickAll(ctx)
		}
	}
}

func (a *Arena) tickAll(ctx context.Context) {
	a.mu.Lock()
	active := make([]*Countdown, 0, len(a.sessions))
	for _, c := range a.sessions {
		active = append(active, c)
	}
	a.mu.Unlock()

	for _, c := range active {
		c.Tick(ctx)
	}
}

func (a *Arena) emitExpiry(key string) {
	select {
	case a.expiries <- key:
	default:
		a.logger.Error().Str("session_key", key).Msg("expiry channel full, event dropped")
	}
}

// Countdown is the per-session timer state object.
type Countdown struct {
	mu        sync.Mutex
	key       string
	remaining int
	total     int
	startedAt time.Time
	expired   bool
	stopped   bool
	arena     *Arena
}

// Tick decrements the countdown by one second. On reaching zero it marks the
// countdown expired, emits the expiry event exactly once, and becomes inert:
// further ticks are no-ops.
func (c *Countdown) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.expired || c.stopped {
		c.mu.Unlock()
		return
	}

	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.expired = true
	}
	state := c.stateLocked()
	expiredNow := c.expired
	c.mu.Unlock()

	if err := c.arena.store.Save(ctx, c.key, state); err != nil {
		c.arena.logger.Warn().Err(err).Str("session_key", c.key).Msg("persist countdown tick failed")
	}
	if expiredNow {
		c.arena.emitExpiry(c.key)
	}
}

// State returns a consistent snapshot.
func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Countdown) stateLocked() State {
	return State{
		RemainingSeconds: c.remaining,
		TotalSeconds:     c.total,
		Expired:          c.expired,
		StartedAt:        c.startedAt,
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// IsExpired reports whether the countdown has run out. Monotonic: once true
// it stays true for the life of the session.
func (c *Countdown) IsExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Countdown) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Countdown) freeze() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}
