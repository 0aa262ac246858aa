package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oncopurpose/repurposing-engine/internal/cache"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/oncopurpose/repurposing-engine/internal/index"
	"github.com/oncopurpose/repurposing-engine/internal/scoring"
	"github.com/oncopurpose/repurposing-engine/internal/search"
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

type stubGatherer struct {
	evidence domain.ExternalEvidence
}

func (s stubGatherer) Gather(ctx context.Context, query string) domain.ExternalEvidence {
	return s.evidence
}

type stubStore struct {
	inserted []domain.AnalysisArtifact
}

func (s *stubStore) Insert(ctx context.Context, artifact domain.AnalysisArtifact) (string, error) {
	artifact.ArtifactID = fmt.Sprintf("artifact-%d", len(s.inserted))
	s.inserted = append(s.inserted, artifact)
	return artifact.ArtifactID, nil
}

func (s *stubStore) List(ctx context.Context, filter domain.ArtifactFilter, limit int) ([]domain.AnalysisArtifact, error) {
	return s.inserted, nil
}

func (s *stubStore) Get(ctx context.Context, artifactID string) (domain.AnalysisArtifact, error) {
	for _, a := range s.inserted {
		if a.ArtifactID == artifactID {
			return a, nil
		}
	}
	return domain.AnalysisArtifact{}, &domain.NotFoundError{Kind: "artifact", ID: artifactID}
}

func (s *stubStore) Close() error { return nil }

var _ domain.AnalysisStore = (*stubStore)(nil)

func testCorpus() *domain.Corpus {
	return &domain.Corpus{
		Drugs: []domain.Drug{
			{
				DrugID:            "d1",
				Name:              "Metformin",
				ClinicalPhase:     domain.PhaseApproved,
				MechanismOfAction: "AMPK activation",
				DiseaseArea:       "ovarian cancer",
				Indication:        "type 2 diabetes",
				Source:            domain.SourceBroadHub,
			},
		},
		HeroCases: []domain.HeroCase{
			{DrugID: "d1", DrugName: "Metformin", RepurposedCancers: []string{"ovarian cancer"}, ConfidenceScore: 0.6, EvidenceLevel: domain.EvidenceHigh},
		},
	}
}

func newTestOrchestrator(t *testing.T, gatherer Gatherer) (*Orchestrator, *stubStore) {
	t.Helper()
	idx, err := index.New().Build(testCorpus())
	require.NoError(t, err)
	scorer := scoring.New()
	engine := search.New(idx, scorer)

	mr := miniredis.RunT(t)
	cacheLayer := cache.New(fmt.Sprintf("redis://%s", mr.Addr()), discardLogger())
	require.True(t, cacheLayer.IsConnected())

	store := &stubStore{}

	o := New(Config{
		Index:                idx,
		Search:               engine,
		Scorer:               scorer,
		Cache:                cacheLayer,
		Fetchers:             gatherer,
		Store:                store,
		SearchTTLSeconds:     60,
		MarketAnalysisTTLSec: 60,
		LiveEvidenceDeadline: time.Second,
		Log:                  discardLogger(),
	})
	return o, store
}

func TestOrchestrator_QueryCachesAcrossCalls(t *testing.T) {
	o, _ := newTestOrchestrator(t, stubGatherer{})
	ctx := context.Background()
	req := domain.SearchRequest{QueryTerms: "metformin", Page: domain.Pagination{Limit: 50}}

	first, err := o.Query(ctx, req, false, false, "", "")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	require.NotEmpty(t, first.Matches)

	second, err := o.Query(ctx, req, false, false, "", "")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Matches, second.Matches)
}

func TestOrchestrator_QueryPersistsSearchArtifactWhenRequested(t *testing.T) {
	o, store := newTestOrchestrator(t, stubGatherer{})
	ctx := context.Background()
	req := domain.SearchRequest{QueryTerms: "metformin", Page: domain.Pagination{Limit: 50}}

	_, err := o.Query(ctx, req, false, true, "session-1", "user-1")
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, domain.ArtifactSearch, store.inserted[0].Kind)
	assert.Equal(t, "session-1", store.inserted[0].SessionID)
	assert.Equal(t, "user-1", store.inserted[0].Subject)
}

func TestOrchestrator_QueryWithLiveEvidenceMergesAndReportsDataSources(t *testing.T) {
	evidence := domain.ExternalEvidence{
		Papers: []domain.Paper{{PMID: "1", Title: "Metformin in ovarian cancer", CitationCount: 40}},
	}
	o, _ := newTestOrchestrator(t, stubGatherer{evidence: evidence})
	ctx := context.Background()
	req := domain.SearchRequest{QueryTerms: "metformin", Page: domain.Pagination{Limit: 50}}

	result, err := o.Query(ctx, req, true, false, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)
	assert.Contains(t, result.DataSources, "pubmed")
}

func TestOrchestrator_Stats(t *testing.T) {
	o, _ := newTestOrchestrator(t, stubGatherer{})

	stats, err := o.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DrugCount)
	assert.Equal(t, 1, stats.HeroCaseCount)
	assert.Equal(t, 1, stats.CountsByPhase[domain.PhaseApproved])
	assert.Equal(t, 1, stats.CountsByEvidence[domain.EvidenceHigh])
}

func TestOrchestrator_LookupMechanismDelegatesToSearchEngine(t *testing.T) {
	o, _ := newTestOrchestrator(t, stubGatherer{})

	drugs, err := o.LookupMechanism(context.Background(), "ampk")
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	assert.Equal(t, "Metformin", drugs[0].Name)
}

func TestOrchestrator_DrugDetailsJoinsHeroCases(t *testing.T) {
	o, _ := newTestOrchestrator(t, stubGatherer{})

	details, err := o.DrugDetails(context.Background(), "METFORMIN")
	require.NoError(t, err)
	assert.Equal(t, "Metformin", details.Drug.Name)
	require.Len(t, details.HeroCases, 1)
	assert.Equal(t, []string{"ovarian cancer"}, details.HeroCases[0].RepurposedCancers)

	_, err = o.DrugDetails(context.Background(), "no-such-drug")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestOrchestrator_BuildMarketReportUnknownDrugIsNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, stubGatherer{})

	_, err := o.BuildMarketReport(context.Background(), "nonexistent", "ovarian cancer")
	require.Error(t, err)
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestOrchestrator_BuildMarketReportPersistsAndCaches(t *testing.T) {
	o, store := newTestOrchestrator(t, stubGatherer{})
	ctx := context.Background()

	artifact, err := o.BuildMarketReport(ctx, "d1", "ovarian cancer")
	require.NoError(t, err)
	assert.Equal(t, domain.ArtifactMarketReport, artifact.Kind)
	require.NotNil(t, artifact.Confidence)
	require.Len(t, store.inserted, 1)

	cached, err := o.BuildMarketReport(ctx, "d1", "ovarian cancer")
	require.NoError(t, err)
	assert.Equal(t, artifact.ArtifactID, cached.ArtifactID)
	assert.Len(t, store.inserted, 1, "the second call should be served from cache, not re-inserted")
}

func TestFingerprint_IsStableAndOrderIndependentOnPhases(t *testing.T) {
	reqA := domain.SearchRequest{
		QueryTerms: "Metformin",
		Filters:    domain.SearchFilters{PhaseIn: []domain.ClinicalPhase{domain.PhasePhase2, domain.PhaseApproved}},
		Page:       domain.Pagination{Limit: 50},
	}
	reqB := domain.SearchRequest{
		QueryTerms: "  metformin  ",
		Filters:    domain.SearchFilters{PhaseIn: []domain.ClinicalPhase{domain.PhaseApproved, domain.PhasePhase2}},
		Page:       domain.Pagination{Limit: 50},
	}
	assert.Equal(t, Fingerprint(reqA), Fingerprint(reqB))

	reqC := reqB
	reqC.Page.Limit = 10
	assert.NotEqual(t, Fingerprint(reqB), Fingerprint(reqC))
}
