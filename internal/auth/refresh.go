// Package auth implements the refresh-token lifecycle. Password hashing
// and JWT encoding live elsewhere; this package only tracks each
// token's issued, active, rotated, revoked, or expired state in the
// cache layer's refresh:{jti} namespace, not just a bare presence flag.
package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/oncopurpose/repurposing-engine/internal/cache"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// RefreshTokenManager issues, rotates, and revokes RefreshTokenRecords
// against the cache layer's refresh:{jti} namespace. Rotated, revoked,
// and expired are terminal states: any token not active fails
// authentication.
type RefreshTokenManager struct {
	cacheLayer domain.CacheLayer
	ttl        time.Duration
	log        *logrus.Logger
}

// NewRefreshTokenManager constructs a manager whose issued tokens
// expire after ttl.
func NewRefreshTokenManager(cacheLayer domain.CacheLayer, ttl time.Duration, log *logrus.Logger) *RefreshTokenManager {
	return &RefreshTokenManager{cacheLayer: cacheLayer, ttl: ttl, log: log}
}

func (m *RefreshTokenManager) put(ctx context.Context, record domain.RefreshTokenRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return &domain.ServiceError{Code: domain.ErrInternal, Message: "failed to encode refresh token record"}
	}
	ttl := int(time.Until(record.ExpiresAt).Seconds())
	if ttl <= 0 {
		ttl = 1
	}
	if err := m.cacheLayer.Set(ctx, cache.RefreshTokenKey(record.JTI), body, ttl); err != nil {
		return &domain.ServiceError{Code: domain.ErrCache, Message: "failed to persist refresh token"}
	}
	return nil
}

func (m *RefreshTokenManager) get(ctx context.Context, jti string) (domain.RefreshTokenRecord, bool, error) {
	value, ok, err := m.cacheLayer.Get(ctx, cache.RefreshTokenKey(jti))
	if err != nil {
		return domain.RefreshTokenRecord{}, false, &domain.ServiceError{Code: domain.ErrCache, Message: "refresh token lookup failed"}
	}
	if !ok {
		return domain.RefreshTokenRecord{}, false, nil
	}
	var record domain.RefreshTokenRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return domain.RefreshTokenRecord{}, false, &domain.ServiceError{Code: domain.ErrInternal, Message: "failed to decode refresh token record"}
	}
	return record, true, nil
}

// Issue creates a new active RefreshTokenRecord for subject, used at
// login.
func (m *RefreshTokenManager) Issue(ctx context.Context, subject string) (domain.RefreshTokenRecord, error) {
	record := domain.RefreshTokenRecord{
		JTI:       uuid.NewString(),
		Subject:   subject,
		State:     domain.TokenActive,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(m.ttl),
	}
	if err := m.put(ctx, record); err != nil {
		return domain.RefreshTokenRecord{}, err
	}
	return record, nil
}

// Validate reports whether jti authenticates a subject: the stored
// record must exist and report Active per its State and ExpiresAt.
// Absence or a non-active State (including a never-issued or
// already-rotated/revoked jti) is AuthInvalid, never a silent miss.
func (m *RefreshTokenManager) Validate(ctx context.Context, jti string) (subject string, err error) {
	record, ok, getErr := m.get(ctx, jti)
	if getErr != nil {
		return "", getErr
	}
	if !ok || !record.Active(time.Now().UTC()) {
		return "", &domain.ServiceError{Code: domain.ErrAuthInvalid, Message: "invalid refresh token"}
	}
	return record.Subject, nil
}

// Rotate validates oldJTI, marks it rotated, and issues a fresh active
// record for the same subject. A reused, already-rotated jti is logged
// at warn level as a possible token-theft signal before being rejected.
func (m *RefreshTokenManager) Rotate(ctx context.Context, oldJTI string) (domain.RefreshTokenRecord, error) {
	old, ok, err := m.get(ctx, oldJTI)
	if err != nil {
		return domain.RefreshTokenRecord{}, err
	}
	if !ok || !old.Active(time.Now().UTC()) {
		m.log.WithField("jti", oldJTI).Warn("auth: refresh attempted with unknown, expired, or already-rotated jti")
		return domain.RefreshTokenRecord{}, &domain.ServiceError{Code: domain.ErrAuthInvalid, Message: "invalid refresh token"}
	}

	old.State = domain.TokenRotated
	if err := m.put(ctx, old); err != nil {
		return domain.RefreshTokenRecord{}, err
	}

	next, err := m.Issue(ctx, old.Subject)
	if err != nil {
		return domain.RefreshTokenRecord{}, err
	}

	m.log.WithFields(logrus.Fields{"old_jti": oldJTI, "new_jti": next.JTI, "subject": old.Subject}).Info("auth: refresh token rotated")
	return next, nil
}

// Revoke marks jti revoked unconditionally, used at logout
// (active→revoked). A jti with no stored record is a no-op, not an
// error, since logout is idempotent.
func (m *RefreshTokenManager) Revoke(ctx context.Context, jti string) error {
	record, ok, err := m.get(ctx, jti)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	record.State = domain.TokenRevoked
	if err := m.put(ctx, record); err != nil {
		return err
	}
	return nil
}
