// Package store implements the Analysis Store (C8): a durable,
// append-only record of generated analyses and user-visible artifacts,
// backed by Postgres when a database URL is configured and by an
// ephemeral SQLite file otherwise.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// New selects a backend: Postgres when databaseURL is set, else a
// process-local ephemeral SQLite file. An unreachable Postgres at
// startup falls back to the ephemeral store with a warning rather than
// failing the process.
func New(ctx context.Context, databaseURL, ephemeralPath string, log *logrus.Logger) (domain.AnalysisStore, error) {
	if databaseURL != "" {
		pg, err := NewPostgresStore(databaseURL, log)
		if err != nil {
			log.WithError(err).Warn("analysis store: postgres unavailable, falling back to ephemeral store")
			return NewSQLiteStore(ephemeralPath, log)
		}
		return pg, nil
	}
	return NewSQLiteStore(ephemeralPath, log)
}

// newArtifactID generates a stable artifact identifier.
func newArtifactID() string {
	return uuid.NewString()
}

// scanner is the shared interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
