package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
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

func TestRedisCache_DegradedModeIsNoOp(t *testing.T) {
	c := New("", discardLogger())
	assert.False(t, c.IsConnected())

	ctx := context.Background()

	val, found, err := c.Get(ctx, "drug:aspirin")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	require.NoError(t, c.Set(ctx, "drug:aspirin", []byte("x"), 60))
	require.NoError(t, c.Delete(ctx, "drug:aspirin"))
	require.NoError(t, c.Ping(ctx))

	exists, err := c.Exists(ctx, "drug:aspirin")
	require.NoError(t, err)
	assert.False(t, exists)

	n, err := c.Incr(ctx, "ratelimit:basic:client1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisCache_InvalidURLDegrades(t *testing.T) {
	c := New("not-a-valid-redis-url", discardLogger())
	assert.False(t, c.IsConnected())
}

func newMiniredisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(fmt.Sprintf("redis://%s", mr.Addr()), discardLogger())
	require.True(t, c.IsConnected(), "cache should have connected to miniredis")
	return c, mr
}

// TestRedisCache_SetGetRoundTrip exercises a live Redis connection: a
// value written with Set is readable via Get before its ttl elapses.
func TestRedisCache_SetGetRoundTrip(t *testing.T) {
	c, mr := newMiniredisCache(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, DrugKey("aspirin"), []byte("acetylsalicylic acid"), 60))

	val, found, err := c.Get(ctx, DrugKey("aspirin"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "acetylsalicylic acid", string(val))
}

// TestRedisCache_TTLExpiryProducesMiss confirms a key written with a
// short ttl becomes a miss once that ttl elapses.
func TestRedisCache_TTLExpiryProducesMiss(t *testing.T) {
	c, mr := newMiniredisCache(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, SearchKey("abc123"), []byte("cached-results"), 5))

	_, found, err := c.Get(ctx, SearchKey("abc123"))
	require.NoError(t, err)
	assert.True(t, found)

	mr.FastForward(6 * time.Second)

	_, found, err = c.Get(ctx, SearchKey("abc123"))
	require.NoError(t, err)
	assert.False(t, found)
}

// TestRedisCache_DeleteRemovesKey confirms Delete takes effect against a
// live connection, not just in degraded no-op mode.
func TestRedisCache_DeleteRemovesKey(t *testing.T) {
	c, mr := newMiniredisCache(t)
	defer mr.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, RefreshTokenKey("jti-1"), []byte("active"), 0))

	exists, err := c.Exists(ctx, RefreshTokenKey("jti-1"))
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, RefreshTokenKey("jti-1")))

	exists, err = c.Exists(ctx, RefreshTokenKey("jti-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKeyNamespacing(t *testing.T) {
	assert.Equal(t, "drug:aspirin", DrugKey("aspirin"))
	assert.Equal(t, "drug:aspirin:predictions", DrugPredictionsKey("aspirin"))
	assert.Equal(t, "cancer:lung", CancerKey("lung"))
	assert.Equal(t, "search:abc123", SearchKey("abc123"))
	assert.Equal(t, "paper:12345:summary", PaperSummaryKey("12345"))
	assert.Equal(t, "analysis:market:aspirin:lung", MarketAnalysisKey("aspirin", "lung"))
	assert.Equal(t, "refresh:jti-1", RefreshTokenKey("jti-1"))
	assert.Equal(t, "ratelimit:basic:client1", RateLimitKey("basic", "client1"))
}
