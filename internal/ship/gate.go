// Package ship guards ship actions with cooldowns and picks surveys for
// extraction.
package ship

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/metrics"
)

// Cooldown is the time before which an actor may not act again.
// A zero ExpiresAt means no cooldown.
type Cooldown struct {
	Actor        string    `json:"shipSymbol"`
	ExpiresAt    time.Time `json:"expiration"`
	TotalSeconds int       `json:"totalSeconds"`
}

// Active reports whether the cooldown still blocks at now.
func (c Cooldown) Active(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.Before(c.ExpiresAt)
}

// Action performs a remote ship action.
type Action func(ctx context.Context) (cache.Record, error)

// CooldownReader fetches the authoritative cooldown for an actor.
type CooldownReader func(ctx context.Context, actor string) (Cooldown, error)

// Outcome is the result of a guarded action. A rejected action was never
// invoked; Remaining is the whole seconds left on the cooldown.
type Outcome struct {
	Result    cache.Record `json:"result,omitempty"`
	Rejected  bool         `json:"rejected"`
	Remaining int          `json:"remaining_seconds,omitempty"`
}

// Gate keeps the last known cooldown per actor and rejects actions that
// would certainly fail. The remote service stays authoritative: after every
// action the stored cooldown is replaced by a fresh read.
type Gate struct {
	mu        sync.Mutex
	cooldowns map[string]Cooldown
	primed    map[string]bool
	prime     bool
	now       core.Clock
	log       zerolog.Logger
}

// NewGate creates a gate. With prime set, the first use of an actor reads
// its remote cooldown before deciding.
func NewGate(now core.Clock, prime bool, log zerolog.Logger) *Gate {
	if now == nil {
		now = core.SystemClock
	}
	return &Gate{
		cooldowns: make(map[string]Cooldown),
		primed:    make(map[string]bool),
		prime:     prime,
		now:       now,
		log:       log.With().Str("component", "gate").Logger(),
	}
}

// Guard runs action for actor unless a stored cooldown is still active.
// After action returns, successful or not, readCooldown is called and its
// result stored. The action's error is returned as is.
func (g *Gate) Guard(ctx context.Context, actor string, action Action, readCooldown CooldownReader) (Outcome, error) {
	if remaining, ok := g.Check(ctx, actor, readCooldown); ok {
		metrics.GuardedActions.WithLabelValues("rejected").Inc()
		g.log.Debug().Str("actor", actor).Int("remaining", remaining).Msg("action rejected, cooldown active")
		return Outcome{Rejected: true, Remaining: remaining}, nil
	}

	result, err := action(ctx)
	g.refresh(ctx, actor, readCooldown)

	if err != nil {
		metrics.GuardedActions.WithLabelValues("failed").Inc()
		return Outcome{}, err
	}
	metrics.GuardedActions.WithLabelValues("executed").Inc()
	return Outcome{Result: result}, nil
}

// Check primes actor's cooldown when priming is on and this is its first
// use, then reports the remaining seconds like Remaining.
func (g *Gate) Check(ctx context.Context, actor string, readCooldown CooldownReader) (int, bool) {
	if g.prime && !g.isPrimed(actor) {
		g.refresh(ctx, actor, readCooldown)
	}
	return g.Remaining(actor)
}

// Remaining returns the seconds left on actor's stored cooldown, rounded up.
// ok is false when no cooldown is active.
func (g *Gate) Remaining(actor string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cd, ok := g.cooldowns[actor]
	now := g.now()
	if !ok || !cd.Active(now) {
		return 0, false
	}
	return core.RemainingSeconds(cd.ExpiresAt, now), true
}

// Cooldown returns the stored cooldown for actor.
func (g *Gate) Cooldown(actor string) (Cooldown, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cd, ok := g.cooldowns[actor]
	return cd, ok
}

// Set stores a cooldown observed elsewhere, e.g. in an action response.
func (g *Gate) Set(cd Cooldown) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed[cd.Actor] = true
	if cd.ExpiresAt.IsZero() {
		delete(g.cooldowns, cd.Actor)
		return
	}
	g.cooldowns[cd.Actor] = cd
}

func (g *Gate) isPrimed(actor string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.primed[actor]
}

// refresh replaces the stored cooldown with the remote one. If the read
// fails the stored cooldown is dropped, so the next call goes through and
// the remote service decides.
func (g *Gate) refresh(ctx context.Context, actor string, readCooldown CooldownReader) {
	cd, err := readCooldown(ctx, actor)
	if err != nil {
		g.log.Warn().Err(err).Str("actor", actor).Msg("cooldown read failed, clearing local cooldown")
		g.mu.Lock()
		delete(g.cooldowns, actor)
		g.primed[actor] = true
		g.mu.Unlock()
		return
	}
	cd.Actor = actor
	g.Set(cd)
}
