package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(discardWriter{})
	return log
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLimiter_FailOpenWithoutRedis(t *testing.T) {
	l := New("", 3600, 100, 1000, discardLogger())

	decision, err := l.Admit(context.Background(), "client-1", domain.TierBasic)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestLimiter_EnterpriseTierShortCircuitsAllow(t *testing.T) {
	l := New("", 3600, 100, 1000, discardLogger())

	decision, err := l.Admit(context.Background(), "client-1", domain.TierEnterprise)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, -1, decision.Remaining)
}

func TestLimiter_InvalidURLFailsOpen(t *testing.T) {
	l := New("not a valid url", 3600, 100, 1000, discardLogger())
	decision, err := l.Admit(context.Background(), "client-1", domain.TierBasic)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func newMiniredisLimiter(t *testing.T, windowSize int64, basicLimit, professionalLimit int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisURL := fmt.Sprintf("redis://%s", mr.Addr())
	l := New(redisURL, windowSize, basicLimit, professionalLimit, discardLogger())
	require.NotNil(t, l.client, "limiter should have connected to miniredis")
	return l, mr
}

// TestLimiter_SlidingWindowAdmitsThenDenies exercises the real Lua
// sliding-window script end to end: after exactly the tier limit worth
// of admissions, the next request is denied until the window elapses.
func TestLimiter_SlidingWindowAdmitsThenDenies(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 60, 3, 1000)
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision, err := l.Admit(ctx, "client-1", domain.TierBasic)
		require.NoError(t, err)
		assert.Truef(t, decision.Allowed, "admission %d should be allowed", i+1)
	}

	decision, err := l.Admit(ctx, "client-1", domain.TierBasic)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Equal(t, int64(60), decision.RetryAfter)
}

// TestLimiter_SlidingWindowResetsAfterWindowElapses confirms that once
// window_size has elapsed, the admission count resets and a previously
// denied identity is admitted again.
func TestLimiter_SlidingWindowResetsAfterWindowElapses(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 60, 1, 1000)
	defer mr.Close()

	ctx := context.Background()
	decision, err := l.Admit(ctx, "client-2", domain.TierBasic)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = l.Admit(ctx, "client-2", domain.TierBasic)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	mr.FastForward(61 * time.Second)

	decision, err = l.Admit(ctx, "client-2", domain.TierBasic)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

// TestLimiter_TiersAreIndependentPerIdentity confirms that two distinct
// identities each get their own window and do not share admission state.
func TestLimiter_TiersAreIndependentPerIdentity(t *testing.T) {
	l, mr := newMiniredisLimiter(t, 60, 1, 1000)
	defer mr.Close()

	ctx := context.Background()
	decisionA, err := l.Admit(ctx, "client-a", domain.TierBasic)
	require.NoError(t, err)
	assert.True(t, decisionA.Allowed)

	decisionB, err := l.Admit(ctx, "client-b", domain.TierBasic)
	require.NoError(t, err)
	assert.True(t, decisionB.Allowed)

	decisionA2, err := l.Admit(ctx, "client-a", domain.TierBasic)
	require.NoError(t, err)
	assert.False(t, decisionA2.Allowed)
}
