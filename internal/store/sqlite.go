package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the ephemeral Analysis Store backend used when
// DATABASE_URL is unset. Artifacts written here survive only the
// process lifetime of the file they're written to.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore opens (creating if necessary) a local SQLite file to
// back the Analysis Store in degraded/ephemeral mode.
func NewSQLiteStore(path string, log *logrus.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := sqliteCreateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.WithField("path", path).Info("analysis store: running in ephemeral sqlite mode")

	return &SQLiteStore{db: db, log: log}, nil
}

func sqliteCreateSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_artifacts (
		artifact_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		subject TEXT DEFAULT '',
		session_id TEXT DEFAULT '',
		inputs TEXT NOT NULL,
		outputs TEXT NOT NULL,
		confidence REAL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON analysis_artifacts(kind);
	CREATE INDEX IF NOT EXISTS idx_artifacts_subject ON analysis_artifacts(subject);
	CREATE INDEX IF NOT EXISTS idx_artifacts_session_id ON analysis_artifacts(session_id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON analysis_artifacts(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Insert writes an artifact, assigning it an ID and created_at if unset.
func (s *SQLiteStore) Insert(ctx context.Context, artifact domain.AnalysisArtifact) (string, error) {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		artifact.ArtifactID, string(artifact.Kind), artifact.Subject, artifact.SessionID,
		string(inputsJSON), string(outputsJSON), artifact.Confidence, artifact.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert artifact: %w", err)
	}
	return artifact.ArtifactID, nil
}

// List returns artifacts matching filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter domain.ArtifactFilter, limit int) ([]domain.AnalysisArtifact, error) {
	query := "SELECT artifact_id, kind, subject, session_id, inputs, outputs, confidence, created_at FROM analysis_artifacts WHERE 1=1"
	var args []interface{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.Subject != "" {
		query += " AND subject = ?"
		args = append(args, filter.Subject)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var results []domain.AnalysisArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Get retrieves a single artifact by ID.
func (s *SQLiteStore) Get(ctx context.Context, artifactID string) (domain.AnalysisArtifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, kind, subject, session_id, inputs, outputs, confidence, created_at
		FROM analysis_artifacts WHERE artifact_id = ?
	`, artifactID)

	a, err := scanArtifact(row)
	if err == sql.ErrNoRows {
		return domain.AnalysisArtifact{}, &domain.NotFoundError{Kind: "artifact", ID: artifactID}
	}
	if err != nil {
		return domain.AnalysisArtifact{}, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanArtifact(s scanner) (domain.AnalysisArtifact, error) {
	var a domain.AnalysisArtifact
	var kind, inputsJSON, outputsJSON string
	var confidence sql.NullFloat64

	if err := s.Scan(&a.ArtifactID, &kind, &a.Subject, &a.SessionID, &inputsJSON, &outputsJSON, &confidence, &a.CreatedAt); err != nil {
		return domain.AnalysisArtifact{}, err
	}

	a.Kind = domain.ArtifactKind(kind)
	if err := json.Unmarshal([]byte(inputsJSON), &a.Inputs); err != nil {
		return domain.AnalysisArtifact{}, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if err := json.Unmarshal([]byte(outputsJSON), &a.Outputs); err != nil {
		return domain.AnalysisArtifact{}, fmt.Errorf("unmarshal outputs: %w", err)
	}
	if confidence.Valid {
		a.Confidence = &confidence.Float64
	}
	return a, nil
}
