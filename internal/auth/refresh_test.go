package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oncopurpose/repurposing-engine/internal/cache"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(discardWriter{})
	return log
}

func newTestManager(t *testing.T, ttl time.Duration) *RefreshTokenManager {
	t.Helper()
	mr := miniredis.RunT(t)
	cacheLayer := cache.New(fmt.Sprintf("redis://%s", mr.Addr()), discardLogger())
	require.True(t, cacheLayer.IsConnected())
	return NewRefreshTokenManager(cacheLayer, ttl, discardLogger())
}

func assertAuthInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, domain.ErrAuthInvalid, svcErr.Code)
}

// TestRefreshTokenManager_RotationInvalidatesReusedJTI exercises the
// login -> rotate -> reuse-rejected -> new-token-succeeds sequence: login
// issues jti A; rotating A issues jti B; rotating A again is rejected;
// rotating B succeeds.
func TestRefreshTokenManager_RotationInvalidatesReusedJTI(t *testing.T) {
	m := newTestManager(t, time.Hour)
	ctx := context.Background()

	a, err := m.Issue(ctx, "user-1")
	require.NoError(t, err)

	subject, err := m.Validate(ctx, a.JTI)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)

	b, err := m.Rotate(ctx, a.JTI)
	require.NoError(t, err)
	assert.NotEqual(t, a.JTI, b.JTI)
	assert.Equal(t, "user-1", b.Subject)

	_, err = m.Rotate(ctx, a.JTI)
	assertAuthInvalid(t, err)

	_, err = m.Validate(ctx, a.JTI)
	assertAuthInvalid(t, err)

	c, err := m.Rotate(ctx, b.JTI)
	require.NoError(t, err)
	assert.NotEqual(t, b.JTI, c.JTI)

	subject, err = m.Validate(ctx, c.JTI)
	require.NoError(t, err)
	assert.Equal(t, "user-1", subject)
}

func TestRefreshTokenManager_ValidateUnknownJTIIsAuthInvalid(t *testing.T) {
	m := newTestManager(t, time.Hour)

	_, err := m.Validate(context.Background(), "never-issued")
	assertAuthInvalid(t, err)
}

func TestRefreshTokenManager_ValidateExpiredRecordIsAuthInvalid(t *testing.T) {
	m := newTestManager(t, time.Second)
	ctx := context.Background()

	record, err := m.Issue(ctx, "user-1")
	require.NoError(t, err)

	record.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, m.put(ctx, record))

	_, err = m.Validate(ctx, record.JTI)
	assertAuthInvalid(t, err)
}

func TestRefreshTokenManager_RevokeIsIdempotentAndBlocksFurtherUse(t *testing.T) {
	m := newTestManager(t, time.Hour)
	ctx := context.Background()

	record, err := m.Issue(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, record.JTI))
	_, err = m.Validate(ctx, record.JTI)
	assertAuthInvalid(t, err)

	// Revoking again, or revoking a jti that never existed, is a no-op.
	require.NoError(t, m.Revoke(ctx, record.JTI))
	require.NoError(t, m.Revoke(ctx, "never-issued"))
}

func TestRefreshTokenManager_RotateUnknownJTIIsAuthInvalid(t *testing.T) {
	m := newTestManager(t, time.Hour)

	_, err := m.Rotate(context.Background(), "never-issued")
	assertAuthInvalid(t, err)
}
