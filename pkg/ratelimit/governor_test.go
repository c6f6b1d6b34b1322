package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igsync/pkg/config"
	errs "igsync/pkg/errors"
	"igsync/pkg/logger"
)

func newTestGovernor(rpm int, accountDelay, postDelay float64, opts ...Option) (*Governor, *FakeClock) {
	clock := NewFakeClock(epoch)
	opts = append([]Option{WithClock(clock)}, opts...)
	g := NewGovernor(config.RateLimitConfig{
		RequestsPerMinute:    rpm,
		DelayBetweenAccounts: accountDelay,
		DelayBetweenPosts:    postDelay,
	}, opts...)
	return g, clock
}

// maxInWindow returns the largest number of timestamps inside any
// half-open window [t, t+window) starting at a recorded call.
func maxInWindow(calls []time.Time, window time.Duration) int {
	best := 0
	for i := range calls {
		n := 0
		for j := i; j < len(calls) && calls[j].Sub(calls[i]) < window; j++ {
			n++
		}
		if n > best {
			best = n
		}
	}
	return best
}

func TestGovernorRollingMinuteBound(t *testing.T) {
	for _, rpm := range []int{1, 7, 30, 60, 240} {
		t.Run(fmt.Sprintf("rpm_%d", rpm), func(t *testing.T) {
			g, clock := newTestGovernor(rpm, 0, 0)
			rng := rand.New(rand.NewSource(int64(rpm)))
			kinds := []Kind{KindGlobal, KindAccount, KindPost}

			var calls []time.Time
			for i := 0; i < 3*rpm+20; i++ {
				// irregular arrivals between calls
				clock.Advance(time.Duration(rng.Intn(400)) * time.Millisecond)
				kind := kinds[rng.Intn(len(kinds))]
				require.NoError(t, g.Admit(context.Background(), kind, "acct"))
				calls = append(calls, clock.Now())
			}

			assert.LessOrEqual(t, maxInWindow(calls, time.Minute), rpm)
			assert.LessOrEqual(t, maxInWindow(calls, time.Second), (rpm+59)/60)
		})
	}
}

func TestGovernorAccountSpacingScenario(t *testing.T) {
	g, clock := newTestGovernor(240, 2.0, 1.0)
	start := clock.Now()

	var calls []time.Time
	for i := 1; i <= 5; i++ {
		require.NoError(t, g.Admit(context.Background(), KindAccount, fmt.Sprintf("account_%d", i)))
		calls = append(calls, clock.Now())
	}

	assert.GreaterOrEqual(t, clock.Now().Sub(start), 8*time.Second)
	assert.LessOrEqual(t, maxInWindow(calls, time.Second), 4)
}

func TestGovernorSameAccountSpacing(t *testing.T) {
	g, clock := newTestGovernor(600, 1.5, 0)
	ctx := context.Background()

	require.NoError(t, g.Admit(ctx, KindAccount, "acme"))
	first, ok := g.LastCall(KindAccount, "acme")
	require.True(t, ok)

	clock.Advance(400 * time.Millisecond)
	require.NoError(t, g.Admit(ctx, KindAccount, "acme"))
	second, _ := g.LastCall(KindAccount, "acme")

	assert.GreaterOrEqual(t, second.Sub(first), 1500*time.Millisecond)
}

func TestGovernorPostSpacingIndependentOfAccounts(t *testing.T) {
	g, clock := newTestGovernor(600, 5.0, 0.5)
	ctx := context.Background()

	require.NoError(t, g.Admit(ctx, KindAccount, "acme"))
	start := clock.Now()
	require.NoError(t, g.Admit(ctx, KindPost, "acme"))
	require.NoError(t, g.Admit(ctx, KindPost, "acme"))
	require.NoError(t, g.Admit(ctx, KindPost, "acme"))

	// post calls do not wait for the 5s account spacing
	assert.Equal(t, time.Second, clock.Now().Sub(start))
}

func TestGovernorAcquireKinds(t *testing.T) {
	g, clock := newTestGovernor(2, 1.0, 0)
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx, KindGlobal, ""))
	require.NoError(t, g.Acquire(ctx, KindGlobal, ""))
	assert.Equal(t, 2, g.InFlightMinute())

	// spacing-only acquire is not held back by the exhausted window
	before := clock.Now()
	require.NoError(t, g.Acquire(ctx, KindAccount, "acme"))
	assert.Equal(t, before, clock.Now())

	// the third global call has to wait for the minute to roll over
	require.NoError(t, g.Acquire(ctx, KindGlobal, ""))
	assert.Equal(t, time.Minute, clock.Now().Sub(epoch))
}

func TestGovernorCancellation(t *testing.T) {
	g := NewGovernor(config.RateLimitConfig{RequestsPerMinute: 60, DelayBetweenAccounts: 30})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, g.Admit(ctx, KindAccount, "a"))
	err := g.Admit(ctx, KindAccount, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGovernorRealClockSpacing(t *testing.T) {
	g := NewGovernor(config.RateLimitConfig{RequestsPerMinute: 6000, DelayBetweenAccounts: 0.05})
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Admit(context.Background(), KindAccount, fmt.Sprintf("a%d", i)))
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

type stubShared struct {
	waits     []time.Duration
	err       error
	calls     int
	onReserve func()
}

func (s *stubShared) Reserve(ctx context.Context, now time.Time) (time.Duration, error) {
	s.calls++
	if s.onReserve != nil {
		s.onReserve()
	}
	if s.err != nil {
		return 0, s.err
	}
	if len(s.waits) == 0 {
		return 0, nil
	}
	w := s.waits[0]
	s.waits = s.waits[1:]
	return w, nil
}

func TestGovernorSharedWindow(t *testing.T) {
	t.Run("delays on shared budget", func(t *testing.T) {
		shared := &stubShared{waits: []time.Duration{3 * time.Second}}
		g, clock := newTestGovernor(60, 0, 0, WithSharedWindow(shared))

		require.NoError(t, g.Admit(context.Background(), KindGlobal, ""))
		assert.Equal(t, 3*time.Second, clock.Slept())
		assert.Equal(t, 2, shared.calls)
	})

	t.Run("falls back when unavailable", func(t *testing.T) {
		log := logger.NewTestLogger()
		shared := &stubShared{err: errors.New("connection refused")}
		g, clock := newTestGovernor(60, 0, 0, WithSharedWindow(shared), WithLogger(log))

		require.NoError(t, g.Admit(context.Background(), KindGlobal, ""))
		assert.Zero(t, clock.Slept())
		assert.True(t, log.HasMessage("Shared rate window unavailable"))
	})

	t.Run("reserves without holding the governor lock", func(t *testing.T) {
		shared := &stubShared{}
		g, _ := newTestGovernor(60, 1, 0, WithSharedWindow(shared))
		var unlocked bool
		shared.onReserve = func() {
			if g.mu.TryLock() {
				unlocked = true
				g.mu.Unlock()
			}
		}

		require.NoError(t, g.Admit(context.Background(), KindAccount, "alpha"))
		assert.True(t, unlocked)
		assert.Equal(t, 1, shared.calls)
		_, ok := g.LastCall(KindAccount, "alpha")
		assert.True(t, ok)
	})

	t.Run("one reservation per admission", func(t *testing.T) {
		shared := &stubShared{}
		g, clock := newTestGovernor(60, 0, 0, WithSharedWindow(shared))
		// a competing caller takes the local slot while the reservation is in flight
		shared.onReserve = func() {
			if shared.calls == 1 {
				g.mu.Lock()
				g.record(KindGlobal, "", clock.Now(), false, true)
				g.mu.Unlock()
			}
		}

		require.NoError(t, g.Admit(context.Background(), KindGlobal, ""))
		assert.Equal(t, 1, shared.calls)
		assert.Equal(t, time.Second, clock.Slept())
		assert.Equal(t, 2, g.InFlightMinute())
	})

	t.Run("invalid wait is an assertion", func(t *testing.T) {
		shared := &stubShared{waits: []time.Duration{-time.Second}}
		g, _ := newTestGovernor(60, 0, 0, WithSharedWindow(shared))

		err := g.Admit(context.Background(), KindGlobal, "")
		var timeout *errs.GovernorTimeout
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, "global", timeout.Kind)
	})
}
