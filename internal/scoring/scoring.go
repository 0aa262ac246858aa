// Package scoring implements the confidence scorer: a pure,
// deterministic weighted model over an EvidenceBundle. Every exported
// function is total over its domain and never fails.
package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
)

// Weights for the five scoring factors.
const (
	weightPhase      = 0.40
	weightTrials     = 0.20
	weightCitations  = 0.15
	weightSources    = 0.15
	weightMechanism  = 0.10
)

// Scorer implements domain.Scorer as a weighted sum of five clamped
// sub-scores.
type Scorer struct{}

// New constructs a Scorer. It carries no state: every call is pure.
func New() *Scorer {
	return &Scorer{}
}

// Score computes confidence, tier, and a per-factor explanation from
// bundle. Same input always yields byte-identical output.
func (Scorer) Score(bundle domain.EvidenceBundle) (float64, domain.Tier, []domain.FactorContribution) {
	phaseSub := domain.Clamp01(phaseSubScore(bundle.Phase))
	trialsSub := domain.Clamp01(trialCountSubScore(bundle.TrialCount))
	citationsSub := domain.Clamp01(citationSubScore(bundle.CitationCount))
	sourcesSub := domain.Clamp01(sourceSubScore(bundle.Sources))
	mechanismSub := domain.Clamp01(mechanismSubScore(len(bundle.Pathways)))

	// total is the weighted sum of the UNROUNDED sub-scores; only the
	// per-factor explanation lines and the final confidence are rounded,
	// so rounding error from one factor never compounds into another.
	total := phaseSub*weightPhase + trialsSub*weightTrials + citationsSub*weightCitations +
		sourcesSub*weightSources + mechanismSub*weightMechanism

	explanation := []domain.FactorContribution{
		factor("phase", phaseSub, weightPhase),
		factor("trial_count", trialsSub, weightTrials),
		factor("citations", citationsSub, weightCitations),
		factor("sources", sourcesSub, weightSources),
		factor("mechanism", mechanismSub, weightMechanism),
	}

	confidence := domain.Clamp01(round2(total))

	return confidence, domain.TierFor(confidence), explanation
}

func factor(name string, subScore, weight float64) domain.FactorContribution {
	subScore = domain.Clamp01(subScore)
	return domain.FactorContribution{
		Factor:       name,
		SubScore:     round2(subScore),
		Weight:       weight,
		Contribution: round2(subScore * weight),
	}
}

// phaseSubScore matches the bundle's phase field against the rules in
// the listed order; earliest match wins, same cascade as
// domain.NormalizeClinicalPhase.
func phaseSubScore(phase string) float64 {
	lower := strings.ToLower(phase)
	switch {
	case strings.Contains(lower, "approved"):
		return 1.0
	case strings.Contains(lower, "phase 3"), strings.Contains(lower, "phase iii"):
		return 0.85
	case strings.Contains(lower, "phase 2"), strings.Contains(lower, "phase ii"):
		return 0.65
	case strings.Contains(lower, "phase 1"), strings.Contains(lower, "phase i"):
		return 0.45
	case strings.Contains(lower, "preclinical"):
		return 0.25
	default:
		return 0.10
	}
}

func trialCountSubScore(n int) float64 {
	switch {
	case n >= 100:
		return 1.0
	case n >= 50:
		return 0.85
	case n >= 20:
		return 0.70
	case n >= 10:
		return 0.55
	case n >= 5:
		return 0.40
	case n >= 1:
		return 0.25
	default:
		return 0
	}
}

func citationSubScore(n int) float64 {
	switch {
	case n >= 300:
		return 1.0
	case n >= 150:
		return 0.85
	case n >= 75:
		return 0.70
	case n >= 30:
		return 0.55
	case n >= 10:
		return 0.40
	case n >= 1:
		return 0.25
	default:
		return 0
	}
}

// sourceSubScore maps each source to its credibility, takes the top 3 by
// value, and averages them. An empty list scores 0.
func sourceSubScore(sources []string) float64 {
	if len(sources) == 0 {
		return 0
	}
	values := make([]float64, 0, len(sources))
	for _, s := range sources {
		values = append(values, domain.SourceCredibility(s))
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	if len(values) > 3 {
		values = values[:3]
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func mechanismSubScore(pathwayCount int) float64 {
	switch {
	case pathwayCount >= 4:
		return 1.0
	case pathwayCount == 3:
		return 0.85
	case pathwayCount == 2:
		return 0.70
	case pathwayCount == 1:
		return 0.55
	default:
		return 0.30
	}
}

// round2 rounds v to two decimal places so repeated scoring of the same
// bundle stays byte-identical despite floating-point sums.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ domain.Scorer = Scorer{}
