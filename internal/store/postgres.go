package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/database"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

// PostgresStore is the durable Analysis Store backend used when
// DATABASE_URL is configured.
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewPostgresStore opens a Postgres connection pool and ensures the
// analysis_artifacts schema exists.
func NewPostgresStore(databaseURL string, log *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	runner, err := database.NewMigrationRunner(db, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare schema migrations: %w", err)
	}
	defer runner.Close()
	if err := runner.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema migrations: %w", err)
	}

	log.Info("analysis store: connected to postgres")
	return &PostgresStore{db: db, log: log}, nil
}

// NewPostgresStoreFromDB wraps an already-open *sql.DB, skipping schema
// migrations. Used by tests that inject a sqlmock connection.
func NewPostgresStoreFromDB(db *sql.DB, log *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// Insert writes an artifact. AnalysisArtifacts are append-only: there
// is no upsert path, and a repeated ArtifactID is a caller bug, not a
// correction.
func (s *PostgresStore) Insert(ctx context.Context, artifact domain.AnalysisArtifact) (string, error) {
	if artifact.ArtifactID == "" {
		artifact.ArtifactID = newArtifactID()
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	inputsJSON, err := json.Marshal(artifact.Inputs)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(artifact.Outputs)
	if err != nil {
		return "", fmt.Errorf("marshal outputs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_artifacts (
			artifact_id, kind, subject, session_id, inputs, outputs, confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		artifact.ArtifactID, string(artifact.Kind), artifact.Subject, artifact.SessionID,
		inputsJSON, outputsJSON, artifact.Confidence, artifact.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert artifact: %w", err)
	}
	return artifact.ArtifactID, nil
}

// List returns artifacts matching filter, newest first.
func (s *PostgresStore) List(ctx context.Context, filter domain.ArtifactFilter, limit int) ([]domain.AnalysisArtifact, error) {
	query := `SELECT artifact_id, kind, subject, session_id, inputs, outputs, confidence, created_at
		FROM analysis_artifacts WHERE 1=1`
	var args []interface{}
	n := 1
	add := func(clause string, value interface{}) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", clause, n-1)
		args = append(args, value)
	}
	if filter.Kind != "" {
		add("kind", string(filter.Kind))
	}
	if filter.Subject != "" {
		add("subject", filter.Subject)
	}
	if filter.SessionID != "" {
		add("session_id", filter.SessionID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var results []domain.AnalysisArtifact
	for rows.Next() {
		a, err := scanPgArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Get retrieves a single artifact by ID.
func (s *PostgresStore) Get(ctx context.Context, artifactID string) (domain.AnalysisArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, kind, subject, session_id, inputs, outputs, confidence, created_at
		FROM analysis_artifacts WHERE artifact_id = $1
	`, artifactID)

	a, err := scanPgArtifact(row)
	if err == sql.ErrNoRows {
		return domain.AnalysisArtifact{}, &domain.NotFoundError{Kind: "artifact", ID: artifactID}
	}
	if err != nil {
		return domain.AnalysisArtifact{}, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanPgArtifact(s scanner) (domain.AnalysisArtifact, error) {
	var a domain.AnalysisArtifact
	var kind string
	var inputsJSON, outputsJSON []byte
	var confidence sql.NullFloat64

	if err := s.Scan(&a.ArtifactID, &kind, &a.Subject, &a.SessionID, &inputsJSON, &outputsJSON, &confidence, &a.CreatedAt); err != nil {
		return domain.AnalysisArtifact{}, err
	}

	a.Kind = domain.ArtifactKind(kind)
	if err := json.Unmarshal(inputsJSON, &a.Inputs); err != nil {
		return domain.AnalysisArtifact{}, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if err := json.Unmarshal(outputsJSON, &a.Outputs); err != nil {
		return domain.AnalysisArtifact{}, fmt.Errorf("unmarshal outputs: %w", err)
	}
	if confidence.Valid {
		a.Confidence = &confidence.Float64
	}
	return a, nil
}
