package ratelimit

import (
	"context"
	"sync"
	"time"

	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/logger"
)

// Kind selects which throttle a call is subject to.
type Kind string

const (
	KindGlobal  Kind = "global"
	KindAccount Kind = "account"
	KindPost    Kind = "post"
)

// SharedWindow is a global window kept outside the process (see RedisWindow).
// Reserve records the call and returns 0 when it fits, otherwise the time to
// wait before trying again.
type SharedWindow interface {
	Reserve(ctx context.Context, now time.Time) (time.Duration, error)
}

// Governor owns the RateBudget for the external API: a rolling one-minute
// window of requests_per_minute calls, a one-second window of
// ceil(requests_per_minute/60) calls, and minimum spacing between calls of
// the account and post kinds. It only ever delays callers.
type Governor struct {
	mu sync.Mutex

	clock  Clock
	log    logger.Logger
	shared SharedWindow

	minute *SlidingWindow
	second *SlidingWindow

	delays   map[Kind]time.Duration
	lastCall map[Kind]time.Time
	lastKey  map[Kind]map[string]time.Time
}

// Option configures a Governor
type Option func(*Governor)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(g *Governor) { g.clock = c }
}

// WithLogger sets the logger used for wait and fallback messages
func WithLogger(l logger.Logger) Option {
	return func(g *Governor) { g.log = l }
}

// WithSharedWindow enforces the one-minute budget across processes as well
func WithSharedWindow(w SharedWindow) Option {
	return func(g *Governor) { g.shared = w }
}

// NewGovernor builds a Governor from the rate_limits config section
func NewGovernor(cfg config.RateLimitConfig, opts ...Option) *Governor {
	g := &Governor{
		clock: RealClock(),
		log:   logger.NewNopLogger(),
		delays: map[Kind]time.Duration{
			KindAccount: cfg.AccountDelay(),
			KindPost:    cfg.PostDelay(),
		},
		lastCall: make(map[Kind]time.Time),
		lastKey: map[Kind]map[string]time.Time{
			KindAccount: {},
			KindPost:    {},
		},
	}
	for _, opt := range opts {
		opt(g)
	}

	rpm := cfg.RequestsPerMinute
	if rpm < 1 {
		rpm = 1
	}
	perSecond := (rpm + 59) / 60
	g.minute = NewSlidingWindow(rpm, time.Minute, g.clock)
	g.second = NewSlidingWindow(perSecond, time.Second, g.clock)
	return g
}

// Acquire blocks until a call of the given kind may proceed and records it.
// KindGlobal consults only the request windows; KindAccount and KindPost
// consult only their spacing.
func (g *Governor) Acquire(ctx context.Context, kind Kind, key string) error {
	if kind == KindGlobal {
		return g.admit(ctx, kind, key, false, true)
	}
	return g.admit(ctx, kind, key, true, false)
}

// Admit applies both the kind's spacing and the global windows, recording
// the call once under a single timestamp. This is what outbound API calls use.
func (g *Governor) Admit(ctx context.Context, kind Kind, key string) error {
	return g.admit(ctx, kind, key, kind != KindGlobal, true)
}

// LastCall returns when a call for key of the given kind was last admitted.
func (g *Governor) LastCall(kind Kind, key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastKey[kind][key]
	return t, ok
}

// InFlightMinute returns the number of calls in the trailing minute
func (g *Governor) InFlightMinute() int {
	return g.minute.Count()
}

func (g *Governor) admit(ctx context.Context, kind Kind, key string, spacing, global bool) error {
	var (
		waited   time.Duration
		reserved bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		g.mu.Lock()
		now := g.clock.Now()
		wait := g.localWait(kind, now, spacing, global)
		g.mu.Unlock()

		// the shared window is a network round trip and runs unlocked; one
		// reservation covers the whole admission
		if wait == 0 && global && g.shared != nil && !reserved {
			wait = g.reserveShared(ctx, now)
			reserved = wait == 0
		}

		if wait == 0 {
			g.mu.Lock()
			now = g.clock.Now()
			// another caller may have taken the local slot meanwhile
			if wait = g.localWait(kind, now, spacing, global); wait == 0 {
				g.record(kind, key, now, spacing, global)
				g.mu.Unlock()
				logger.LogRateWait(g.log, string(kind), key, waited)
				return nil
			}
			g.mu.Unlock()
		}

		if wait < 0 || wait > g.maxWait(kind, spacing) {
			return &errs.GovernorTimeout{Kind: string(kind), Key: key, Wait: wait}
		}
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// localWait is the longest wait any in-process window or lane demands.
// Callers hold g.mu.
func (g *Governor) localWait(kind Kind, now time.Time, spacing, global bool) time.Duration {
	var wait time.Duration
	if spacing {
		wait = g.spacingWait(kind, now)
	}
	if global {
		if w := g.minute.peek(now); w > wait {
			wait = w
		}
		if w := g.second.peek(now); w > wait {
			wait = w
		}
	}
	return wait
}

// record commits an admitted call. Callers hold g.mu.
func (g *Governor) record(kind Kind, key string, now time.Time, spacing, global bool) {
	if spacing {
		g.lastCall[kind] = now
		if keys, ok := g.lastKey[kind]; ok {
			keys[key] = now
		}
	}
	if global {
		g.minute.record(now)
		g.second.record(now)
	}
}

// spacingWait returns max(0, delay - (now - last)) for the kind's lane.
// Spacing is measured against the previous call of the kind regardless of
// key, so it also bounds consecutive calls for the same key.
func (g *Governor) spacingWait(kind Kind, now time.Time) time.Duration {
	delay := g.delays[kind]
	last, ok := g.lastCall[kind]
	if !ok || delay <= 0 {
		return 0
	}
	wait := delay - now.Sub(last)
	if wait < 0 {
		return 0
	}
	return wait
}

func (g *Governor) reserveShared(ctx context.Context, now time.Time) time.Duration {
	wait, err := g.shared.Reserve(ctx, now)
	if err != nil {
		g.log.WithError(err).Warn("Shared rate window unavailable, using local window only")
		return 0
	}
	if wait > time.Minute {
		wait = time.Minute
	}
	return wait
}

// maxWait is the largest wait a single step can legitimately compute.
func (g *Governor) maxWait(kind Kind, spacing bool) time.Duration {
	bound := time.Minute
	if spacing && g.delays[kind] > bound {
		bound = g.delays[kind]
	}
	return bound
}
