package scoring

import (
	"testing"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestScorer_ApprovedHighEvidenceYieldsHighTier(t *testing.T) {
	s := New()
	confidence, tier, explanation := s.Score(domain.EvidenceBundle{
		Phase:         "Approved",
		TrialCount:    120,
		CitationCount: 400,
		Sources:       []string{"PubMed", "ClinicalTrials.gov", "DrugBank"},
		Pathways:      []string{"mTOR", "AMPK", "HIF-1a", "PI3K"},
	})

	// Every factor maxes out except sources, which averages
	// (0.75 + 0.90 + 0.50)/3 for PubMed/ClinicalTrials/unrecognized:
	// 0.40 + 0.20 + 0.15 + 0.15*0.7167 + 0.10 = 0.9575, rounded 0.96.
	assert.Equal(t, domain.TierVeryHigh, tier)
	assert.InDelta(t, 0.96, confidence, 0.001)
	assert.Len(t, explanation, 5)
}

func TestScorer_ApprovedPhaseAloneScoresLow(t *testing.T) {
	s := New()
	confidence, tier, _ := s.Score(domain.EvidenceBundle{Phase: "Approved"})

	// 0.40*1.0 for the phase plus 0.10*0.30 for the empty pathway list.
	assert.InDelta(t, 0.43, confidence, 0.001)
	assert.Equal(t, domain.TierLow, tier)
}

func TestScorer_NoEvidenceYieldsVeryLowTier(t *testing.T) {
	s := New()
	confidence, tier, _ := s.Score(domain.EvidenceBundle{})

	assert.Equal(t, domain.TierVeryLow, tier)
	assert.Greater(t, confidence, 0.0)
}

func TestScorer_IsPureAndDeterministic(t *testing.T) {
	s := New()
	bundle := domain.EvidenceBundle{
		Phase:         "Phase 2",
		TrialCount:    12,
		CitationCount: 40,
		Sources:       []string{"PubMed"},
		Pathways:      []string{"mTOR"},
	}

	first, firstTier, _ := s.Score(bundle)
	second, secondTier, _ := s.Score(bundle)

	assert.Equal(t, first, second)
	assert.Equal(t, firstTier, secondTier)
}

func TestScorer_ExplanationContributionsSumToConfidence(t *testing.T) {
	s := New()
	confidence, _, explanation := s.Score(domain.EvidenceBundle{
		Phase:         "Phase 1",
		TrialCount:    3,
		CitationCount: 5,
		Sources:       []string{"PubMed"},
	})

	var sum float64
	for _, f := range explanation {
		sum += f.Contribution
	}
	assert.InDelta(t, confidence, sum, 0.02)
}

func TestScorer_RecognizedSourceOutscoresUnknownSource(t *testing.T) {
	s := New()
	withFDA, _, _ := s.Score(domain.EvidenceBundle{Sources: []string{"FDA"}})
	withUnknown, _, _ := s.Score(domain.EvidenceBundle{Sources: []string{"unknown-registry"}})

	assert.Greater(t, withFDA, withUnknown)
}
