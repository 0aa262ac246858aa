package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(testDiscard{})
	return log
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestSQLiteStore_InsertGetList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")
	s, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	conf := 0.82
	artifact := domain.AnalysisArtifact{
		Kind:       domain.ArtifactSearch,
		Inputs:     map[string]interface{}{"q": "metformin"},
		Outputs:    map[string]interface{}{"match_count": float64(3)},
		Confidence: &conf,
		SessionID:  "sess-1",
	}

	id, err := s.Insert(ctx, artifact)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ArtifactSearch, got.Kind)
	assert.Equal(t, "metformin", got.Inputs["q"])
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.82, *got.Confidence, 0.0001)

	list, err := s.List(ctx, domain.ArtifactFilter{SessionID: "sess-1"}, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ArtifactID)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")
	s, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(context.Background(), "nonexistent")
	require.Error(t, err)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestPostgresStore_InsertWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStoreFromDB(db, testLogger())

	mock.ExpectExec("INSERT INTO analysis_artifacts").
		WithArgs(sqlmock.AnyArg(), string(domain.ArtifactMarketReport), "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := s.Insert(context.Background(), domain.AnalysisArtifact{
		Kind:    domain.ArtifactMarketReport,
		Inputs:  map[string]interface{}{"drug_id": "aspirin"},
		Outputs: map[string]interface{}{},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStoreFromDB(db, testLogger())

	mock.ExpectQuery("SELECT artifact_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = s.Get(context.Background(), "missing")
	require.Error(t, err)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
