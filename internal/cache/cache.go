// Package cache maintains a per-session cached view of a user's plan/usage
// snapshot: fetch-on-demand with request coalescing, event-applied patches
// that avoid network round trips, and adaptive background polling. The cache
// is the single owner of the snapshot; consumers read through Snapshot and
// subscribe through OnChange instead of re-fetching independently.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"plansync/internal/events"
	"plansync/internal/types"
)

// Poll tiers. The fast tier covers users close to their limit (where a stale
// view risks a wrong publication decision) and brand-new users whose usage
// changes quickly.
const (
	FastPollInterval = 30 * time.Second
	SlowPollInterval = 5 * time.Minute
)

// Interval returns the polling interval appropriate for the given snapshot.
// Pure function; the cache reschedules its timer with this after every
// snapshot change. A nil snapshot polls fast so a failed first fetch is
// retried promptly.
func Interval(s *types.PlanLimitSnapshot) time.Duration {
	if s == nil {
		return FastPollInterval
	}
	if s.UsagePercentage >= types.NearLimitPercent || s.IsAtLimit || s.CurrentUsage <= 3 {
		return FastPollInterval
	}
	return SlowPollInterval
}

// Fetcher is the slice of the API client the cache needs.
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*types.PlanLimitSnapshot, error)
}

// ChangeHandler observes snapshot replacements. The snapshot argument is the
// new cached value and must be treated as read-only.
type ChangeHandler func(*types.PlanLimitSnapshot)

// Config holds the settings for constructing a LimitStatusCache.
type Config struct {
	Identity string // user ID the cache is scoped to
	IsAdmin  bool   // admins bypass plan gating; the cache stays empty
	Fetcher  Fetcher
	Bus      *events.Bus // optional; nil disables event-applied patches
	Logger   *slog.Logger
}

// LimitStatusCache is the per-session snapshot cache. Construct one per
// authenticated identity; Close it on logout before building the next one.
type LimitStatusCache struct {
	identity string
	isAdmin  bool
	fetcher  Fetcher
	bus      *events.Bus
	logger   *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	snapshot *types.PlanLimitSnapshot
	lastErr  error
	session  uint64 // bumped on Close; stale commits check it
	closed   bool
	polling  bool
	timer    *time.Timer
	unsubs   []func()

	handlerID int
	handlers  map[int]ChangeHandler
}

// New constructs a cache and, for non-admin identities, performs the initial
// refresh and starts polling. Admin identities get an inert cache: Snapshot
// is always nil and no fetch ever happens.
func New(cfg Config) *LimitStatusCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &LimitStatusCache{
		identity: cfg.Identity,
		isAdmin:  cfg.IsAdmin,
		fetcher:  cfg.Fetcher,
		bus:      cfg.Bus,
		logger:   logger.With("component", "limit_cache", "user_id", cfg.Identity),
		handlers: make(map[int]ChangeHandler),
	}

	if c.isAdmin {
		return c
	}

	if c.bus != nil {
		for _, kind := range []events.Kind{
			events.PropertyCreated,
			events.PropertyToggled,
			events.PropertyDeleted,
			events.PropertyCountSynced,
		} {
			c.unsubs = append(c.unsubs, c.bus.Subscribe(kind, c.applyEvent))
		}
	}

	c.mu.Lock()
	c.polling = true
	c.mu.Unlock()

	go func() {
		if _, err := c.Refresh(context.Background()); err != nil {
			c.logger.Warn("initial status fetch failed", "error", err)
		}
	}()

	return c
}

// Snapshot returns the last known snapshot without touching the network.
// Nil means status is unknown (not yet loaded, or admin identity); callers
// must treat unknown as not-publishable.
func (c *LimitStatusCache) Snapshot() *types.PlanLimitSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// LastError returns the error from the most recent failed refresh, or nil.
// A failed refresh never clears a previously good snapshot, so callers can
// render a stale value together with this error.
func (c *LimitStatusCache) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnChange registers a handler invoked after every snapshot replacement.
// Returns an unsubscribe function.
func (c *LimitStatusCache) OnChange(fn ChangeHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.handlerID
	c.handlerID++
	c.handlers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Refresh forces a network fetch and replaces the cached snapshot. Overlapping
// callers share one in-flight request; each receives the same result.
func (c *LimitStatusCache) Refresh(ctx context.Context) (*types.PlanLimitSnapshot, error) {
	if c.isAdmin {
		return nil, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "cache is closed", nil)
	}
	session := c.session
	c.mu.Unlock()

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		snap, err := c.fetcher.FetchSnapshot(ctx)
		if err != nil {
			c.recordFailure(session, err)
			return nil, err
		}
		c.commit(session, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.PlanLimitSnapshot), nil
}

// applyEvent handles a bus delivery. A detail carrying a snapshot is applied
// in place; one without triggers a refresh. Events can arrive before or after
// the originating call's own response lands, so commits are idempotent.
func (c *LimitStatusCache) applyEvent(d events.Detail) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	session := c.session
	c.mu.Unlock()

	if d.Snapshot != nil {
		c.commit(session, d.Snapshot)
		return
	}

	go func() {
		if _, err := c.Refresh(context.Background()); err != nil {
			c.logger.Warn("event-triggered refresh failed", "error", err)
		}
	}()
}

// commit installs a new snapshot if the session is still current, notifies
// change handlers, and reschedules the poll timer for the new state.
func (c *LimitStatusCache) commit(session uint64, snap *types.PlanLimitSnapshot) {
	c.mu.Lock()
	if c.closed || session != c.session {
		// Late response from a previous identity; drop it.
		c.mu.Unlock()
		return
	}
	c.snapshot = snap
	c.lastErr = nil

	handlers := make([]ChangeHandler, 0, len(c.handlers))
	for _, fn := range c.handlers {
		handlers = append(handlers, fn)
	}
	c.rescheduleLocked(Interval(snap))
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(snap)
	}
}

// recordFailure notes a refresh error without disturbing the cached value,
// and stops polling when the failure is an authentication error.
func (c *LimitStatusCache) recordFailure(session uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || session != c.session {
		return
	}
	c.lastErr = err

	if types.IsAuthError(err) {
		c.logger.Warn("stopping polling after auth failure")
		c.stopPollingLocked()
		return
	}
	c.rescheduleLocked(Interval(c.snapshot))
}

// rescheduleLocked re-arms the poll timer. Caller holds c.mu.
func (c *LimitStatusCache) rescheduleLocked(d time.Duration) {
	if !c.polling {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	session := c.session
	c.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		live := !c.closed && session == c.session && c.polling
		c.mu.Unlock()
		if !live {
			return
		}
		if _, err := c.Refresh(context.Background()); err != nil {
			c.logger.Warn("poll refresh failed", "error", err)
		}
	})
}

func (c *LimitStatusCache) stopPollingLocked() {
	c.polling = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Close clears the cache, stops polling, and detaches from the bus. It must
// run synchronously on logout or identity switch, before the next identity's
// first read; responses still in flight are discarded by the session stamp.
func (c *LimitStatusCache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.session++
	c.snapshot = nil
	c.lastErr = nil
	c.stopPollingLocked()
	unsubs := c.unsubs
	c.unsubs = nil
	c.handlers = make(map[int]ChangeHandler)
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
