// Package search implements the search engine: a five-strategy
// substring cascade over the indexed corpus, a parallel hero-case
// matching rule, evidence synthesis into the scorer, and ranking,
// dedup, and pagination.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
)

// Pagination bounds. The API layer defaults an absent limit to 50, the
// value of DefaultLimit, before building a SearchRequest; the
// orchestrator passes the request through unchanged, and Search itself
// only enforces the hard MaxLimit ceiling.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Engine implements domain.SearchEngine over a published, read-only
// domain.Index and domain.Scorer.
type Engine struct {
	index  domain.Index
	scorer domain.Scorer
}

// New constructs an Engine over idx and scorer.
func New(idx domain.Index, scorer domain.Scorer) *Engine {
	return &Engine{index: idx, scorer: scorer}
}

// candidate is an internal working record before a ScoredMatch is
// finalized: it carries the primary/secondary flag the ranking needs.
type candidate struct {
	match   domain.ScoredMatch
	primary bool
}

// Search runs the five-strategy cascade plus the hero-case rule, scores
// every candidate, dedups by (drug_id, cancer_type), ranks, and
// paginates.
func (e *Engine) Search(ctx context.Context, req domain.SearchRequest) ([]domain.ScoredMatch, error) {
	if err := validatePagination(req.Page); err != nil {
		return nil, err
	}
	query := normalizeQuery(req.QueryTerms)
	if query == "" {
		return nil, domain.NewValidationError("q", "query must not be empty", req.QueryTerms)
	}
	if req.Page.Limit == 0 {
		return []domain.ScoredMatch{}, nil
	}

	var (
		heroMatches   []domain.ScoredMatch
		corpusMatches []candidate
		wg            sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		heroMatches = e.matchHeroCases(query)
	}()
	go func() {
		defer wg.Done()
		corpusMatches = e.matchCorpus(query)
	}()
	wg.Wait()

	merged := e.assemble(heroMatches, corpusMatches, req.Filters)
	rank(merged)
	return paginate(merged, req.Page), nil
}

// LookupMechanism wraps by_mechanism directly, independent of the
// general search cascade, for the first-class mechanism-lookup
// operation.
func (e *Engine) LookupMechanism(ctx context.Context, substring string) ([]domain.Drug, error) {
	term := normalizeQuery(substring)
	if term == "" {
		return nil, domain.NewValidationError("mechanism", "mechanism substring must not be empty", substring)
	}
	return e.index.SubstringMechanism(term), nil
}

// matchHeroCases applies the hero-case rule: match if query is a
// substring of drug_name, any repurposed_cancers element, mechanism, or
// any pathway.
func (e *Engine) matchHeroCases(query string) []domain.ScoredMatch {
	var out []domain.ScoredMatch
	for _, h := range e.index.HeroCases() {
		if !heroMatches(h, query) {
			continue
		}
		for _, cancer := range h.RepurposedCancers {
			confidence := domain.Clamp01(h.ConfidenceScore)
			out = append(out, domain.ScoredMatch{
				DrugID:     h.DrugID,
				DrugName:   h.DrugName,
				CancerType: cancer,
				Confidence: confidence,
				Tier:       domain.TierFor(confidence),
				Explanation: []domain.FactorContribution{
					{Factor: "curated_hero_confidence", SubScore: confidence, Weight: 1.0, Contribution: confidence},
				},
				EvidenceSnapshot: domain.EvidenceBundle{
					Phase:         "",
					TrialCount:    h.TrialCount,
					CitationCount: h.CitationCount,
					Sources:       []string{"curated"},
					Pathways:      h.Pathways,
				},
				SourceOrigin: domain.OriginHero,
				IsHero:       true,
				Primary:      true,
				DemoPriority: h.DemoPriority,
			})
		}
	}
	return out
}

func heroMatches(h domain.HeroCase, query string) bool {
	if strings.Contains(strings.ToLower(h.DrugName), query) {
		return true
	}
	if strings.Contains(strings.ToLower(h.Mechanism), query) {
		return true
	}
	for _, c := range h.RepurposedCancers {
		if strings.Contains(strings.ToLower(c), query) {
			return true
		}
	}
	for _, p := range h.Pathways {
		if strings.Contains(strings.ToLower(p), query) {
			return true
		}
	}
	return false
}

// matchCorpus runs the five-strategy cascade. The first strategy to
// yield a non-empty set becomes "primary"; any drug picked up only by a
// later strategy is "secondary".
func (e *Engine) matchCorpus(query string) []candidate {
	seen := make(map[string]bool)
	var out []candidate
	primaryDecided := false

	addAll := func(drugs []domain.Drug) {
		anyNew := false
		for _, d := range drugs {
			if seen[d.DrugID] {
				continue
			}
			seen[d.DrugID] = true
			anyNew = true
			out = append(out, candidate{
				match:   e.synthesizeMatch(d),
				primary: !primaryDecided,
			})
		}
		if !primaryDecided && anyNew {
			primaryDecided = true
		}
	}

	if exact, ok := e.index.ByName(query); ok {
		addAll([]domain.Drug{exact})
	}
	addAll(e.index.SubstringName(query))
	addAll(e.index.SubstringMechanism(query))
	addAll(e.index.SubstringTarget(query))
	addAll(e.index.SubstringDiseaseOrIndication(query))

	return out
}

// synthesizeMatch builds an EvidenceBundle from the curated Drug fields
// (trial and citation counts default to zero when unknown) and scores it.
func (e *Engine) synthesizeMatch(d domain.Drug) domain.ScoredMatch {
	bundle := domain.EvidenceBundle{
		Phase:         string(d.ClinicalPhase),
		TrialCount:    0,
		CitationCount: 0,
		Sources:       []string{string(d.Source)},
		Pathways:      parsePathways(d.MechanismOfAction),
	}
	confidence, tier, explanation := e.scorer.Score(bundle)

	return domain.ScoredMatch{
		DrugID:           d.DrugID,
		DrugName:         d.Name,
		CancerType:       cancerLabel(d),
		Confidence:       confidence,
		Tier:             tier,
		Explanation:      explanation,
		EvidenceSnapshot: bundle,
		SourceOrigin:     domain.OriginCorpus,
		IsHero:           false,
	}
}

// cancerLabel derives the cancer-type label a corpus-only match is
// attributed to, since Drug carries no dedicated cancer field: the
// disease area stands in when present, the indication otherwise.
func cancerLabel(d domain.Drug) string {
	if d.DiseaseArea != "" {
		return d.DiseaseArea
	}
	return d.Indication
}

// parsePathways extracts a structured pathway list from a free-text
// mechanism-of-action string when it looks like a delimited list.
func parsePathways(moa string) []string {
	moa = strings.TrimSpace(moa)
	if moa == "" {
		return nil
	}
	var parts []string
	switch {
	case strings.Contains(moa, ";"):
		parts = strings.Split(moa, ";")
	case strings.Contains(moa, "|"):
		parts = strings.Split(moa, "|")
	case strings.Count(moa, ",") >= 1:
		parts = strings.Split(moa, ",")
	default:
		return nil
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// assemble merges hero and corpus candidates, applies filters, and
// dedups by (drug_id, cancer_type). Hero matches are added first, so a
// HeroCase always overrides a corpus-only match for the same pair.
func (e *Engine) assemble(heroMatches []domain.ScoredMatch, corpusMatches []candidate, filters domain.SearchFilters) []domain.ScoredMatch {
	seen := make(map[string]bool, len(heroMatches)+len(corpusMatches))
	var out []domain.ScoredMatch

	heroPairs := make(map[string]bool, len(heroMatches))
	for _, m := range heroMatches {
		key := m.DrugID + "|" + strings.ToLower(m.CancerType)
		heroPairs[key] = true
		if !passesFilters(m, nil, filters) {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}

	for _, c := range corpusMatches {
		key := c.match.DrugID + "|" + strings.ToLower(c.match.CancerType)
		if seen[key] || heroPairs[key] {
			continue
		}
		d, _ := e.index.ByName(c.match.DrugName)
		if !passesFilters(c.match, &d, filters) {
			continue
		}
		seen[key] = true
		m := c.match
		m.Primary = c.primary
		out = append(out, m)
	}

	return out
}

// passesFilters applies the three enumerated filters. drug is the
// backing Drug record of a corpus match; hero matches are passed nil and
// only min_confidence applies to them: oncology_only skips them since a
// hero case's repurposed cancers are oncology by definition, and
// phase_in skips them since a HeroCase carries no phase.
func passesFilters(m domain.ScoredMatch, drug *domain.Drug, filters domain.SearchFilters) bool {
	if filters.MinConfidence != nil && m.Confidence < *filters.MinConfidence {
		return false
	}
	if filters.OncologyOnly && m.SourceOrigin != domain.OriginHero {
		if drug == nil || !domain.IsOncologyRelated(drug.DiseaseArea+" "+drug.Indication) {
			return false
		}
	}
	if len(filters.PhaseIn) > 0 && m.SourceOrigin != domain.OriginHero {
		if drug == nil || !phaseIn(drug.ClinicalPhase, filters.PhaseIn) {
			return false
		}
	}
	return true
}

func phaseIn(phase domain.ClinicalPhase, phases []domain.ClinicalPhase) bool {
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}

// rank sorts matches hero before corpus, primary before secondary,
// confidence descending, curated demo_priority ascending, name
// ascending. Hero results carry Primary=true uniformly, so within the
// hero block this reduces to curated confidence descending with a
// stable insertion-order tie-break.
func rank(matches []domain.ScoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.IsHero != b.IsHero {
			return a.IsHero
		}
		if a.Primary != b.Primary {
			return a.Primary
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.DemoPriority != b.DemoPriority {
			return a.DemoPriority < b.DemoPriority
		}
		return a.DrugName < b.DrugName
	})
}

// paginate applies the offset/limit window after ranking.
func paginate(matches []domain.ScoredMatch, page domain.Pagination) []domain.ScoredMatch {
	if page.Offset >= len(matches) {
		return []domain.ScoredMatch{}
	}
	end := page.Offset + page.Limit
	if end > len(matches) {
		end = len(matches)
	}
	out := matches[page.Offset:end]
	result := make([]domain.ScoredMatch, len(out))
	copy(result, out)
	return result
}

// validatePagination enforces the hard pagination ceiling.
func validatePagination(page domain.Pagination) error {
	if page.Offset < 0 {
		return domain.NewValidationError("offset", "offset must be non-negative", page.Offset)
	}
	if page.Limit < 0 {
		return domain.NewValidationError("limit", "limit must be non-negative", page.Limit)
	}
	if page.Limit > MaxLimit {
		return domain.NewValidationError("limit", "limit exceeds maximum of 200", page.Limit)
	}
	return nil
}

// normalizeQuery lowercases, collapses whitespace, and strips leading
// and trailing punctuation.
func normalizeQuery(q string) string {
	q = strings.Join(strings.Fields(strings.ToLower(q)), " ")
	return strings.Trim(q, ".,;:!?'\"()[]{}")
}

var _ domain.SearchEngine = (*Engine)(nil)
