// Package orchestrator composes the index, scorer, search engine,
// external fetchers, cache layer, and analysis store for a single user
// query: fingerprint, cache lookup, corpus search, optional
// live-evidence fan-out with re-score, cache population, and optional
// artifact persistence.
package orchestrator

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/cache"
	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// Gatherer is the shared-deadline external-evidence fan-out contract
// the orchestrator needs from pkg/fetchers.Service.
type Gatherer interface {
	Gather(ctx context.Context, query string) domain.ExternalEvidence
}

// Orchestrator implements domain.QueryOrchestrator.
type Orchestrator struct {
	index      domain.Index
	search     domain.SearchEngine
	scorer     domain.Scorer
	cacheLayer domain.CacheLayer
	fetchers   Gatherer
	store      domain.AnalysisStore

	searchTTL            int
	marketAnalysisTTL    int
	liveEvidenceDeadline time.Duration

	log *logrus.Logger
}

// Config bundles the orchestrator's dependencies and TTL/deadline
// policy, assembled once at startup.
type Config struct {
	Index                domain.Index
	Search               domain.SearchEngine
	Scorer               domain.Scorer
	Cache                domain.CacheLayer
	Fetchers             Gatherer
	Store                domain.AnalysisStore
	SearchTTLSeconds     int
	MarketAnalysisTTLSec int
	LiveEvidenceDeadline time.Duration
	Log                  *logrus.Logger
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		index:                cfg.Index,
		search:               cfg.Search,
		scorer:               cfg.Scorer,
		cacheLayer:           cfg.Cache,
		fetchers:             cfg.Fetchers,
		store:                cfg.Store,
		searchTTL:            cfg.SearchTTLSeconds,
		marketAnalysisTTL:    cfg.MarketAnalysisTTLSec,
		liveEvidenceDeadline: cfg.LiveEvidenceDeadline,
		log:                  cfg.Log,
	}
}

// cachedResult is the JSON shape stored at search:{fingerprint}. The
// ranking fields ScoredMatch leaves out of its JSON form travel in
// Ranking, one entry per match, so a cache hit returns equal matches.
type cachedResult struct {
	Matches     []domain.ScoredMatch `json:"matches"`
	Ranking     []rankingFields      `json:"ranking"`
	DataSources []string             `json:"data_sources"`
}

type rankingFields struct {
	IsHero       bool `json:"is_hero"`
	Primary      bool `json:"primary"`
	DemoPriority int  `json:"demo_priority"`
}

// Query runs one search request end to end: cache lookup by
// fingerprint, corpus search on a miss, optional live-evidence fan-out,
// cache population, and optional artifact persistence.
func (o *Orchestrator) Query(ctx context.Context, req domain.SearchRequest, wantLiveEvidence bool, persist bool, sessionID, subject string) (domain.OrchestratorResult, error) {
	start := time.Now()
	fingerprint := Fingerprint(req)

	if raw, hit, err := o.cacheLayer.Get(ctx, cache.SearchKey(string(fingerprint))); err == nil && hit {
		var cached cachedResult
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			for i := 0; i < len(cached.Matches) && i < len(cached.Ranking); i++ {
				r := cached.Ranking[i]
				cached.Matches[i].IsHero, cached.Matches[i].Primary, cached.Matches[i].DemoPriority = r.IsHero, r.Primary, r.DemoPriority
			}
			return domain.OrchestratorResult{
				Matches:       cached.Matches,
				CacheHit:      true,
				DataSources:   cached.DataSources,
				ElapsedMillis: time.Since(start).Milliseconds(),
			}, nil
		}
		o.log.Warn("orchestrator: cached search result failed to unmarshal, falling through to live path")
	}

	matches, err := o.search.Search(ctx, req)
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	dataSources := sourcesUsed(matches)
	var degraded []string

	if wantLiveEvidence && len(matches) > 0 {
		fetchCtx, cancel := context.WithTimeout(ctx, o.liveEvidenceDeadline)
		evidence := o.fetchers.Gather(fetchCtx, req.QueryTerms)
		cancel()

		degraded = evidence.Degraded
		matches = o.rescoreWithLiveEvidence(matches, evidence)
		dataSources = append(dataSources, liveSourceNames(evidence)...)
	}

	if err := ctx.Err(); err == nil {
		ranking := make([]rankingFields, len(matches))
		for i, m := range matches {
			ranking[i] = rankingFields{IsHero: m.IsHero, Primary: m.Primary, DemoPriority: m.DemoPriority}
		}
		if payload, marshalErr := json.Marshal(cachedResult{Matches: matches, Ranking: ranking, DataSources: dataSources}); marshalErr == nil {
			if setErr := o.cacheLayer.Set(ctx, cache.SearchKey(string(fingerprint)), payload, o.searchTTL); setErr != nil {
				o.log.WithError(setErr).Warn("orchestrator: failed to populate search cache")
			}
		}
	}

	if persist {
		o.persistSearchArtifact(ctx, req, matches, sessionID, subject)
	}

	return domain.OrchestratorResult{
		Matches:       matches,
		CacheHit:      false,
		DataSources:   dedupStrings(dataSources),
		Degraded:      degraded,
		ElapsedMillis: time.Since(start).Milliseconds(),
	}, nil
}

// rescoreWithLiveEvidence merges fetched evidence into every match whose
// drug name it touches, re-scores, and re-ranks. Matches with no fetcher
// contribution are left exactly as the corpus-only scoring produced
// them, never penalized further.
func (o *Orchestrator) rescoreWithLiveEvidence(matches []domain.ScoredMatch, evidence domain.ExternalEvidence) []domain.ScoredMatch {
	out := make([]domain.ScoredMatch, len(matches))
	copy(out, matches)

	for i, m := range out {
		merged := domain.MergeExternalEvidence(m.EvidenceSnapshot, m.DrugName, evidence)
		if sameBundle(merged, m.EvidenceSnapshot) {
			continue
		}
		confidence, tier, explanation := o.scorer.Score(merged)
		out[i].Confidence = confidence
		out[i].Tier = tier
		out[i].Explanation = explanation
		out[i].EvidenceSnapshot = merged
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsHero != out[j].IsHero {
			return out[i].IsHero
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].DrugName < out[j].DrugName
	})
	return out
}

func sameBundle(a, b domain.EvidenceBundle) bool {
	return a.TrialCount == b.TrialCount && a.CitationCount == b.CitationCount && len(a.Sources) == len(b.Sources)
}

func sourcesUsed(matches []domain.ScoredMatch) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		s := string(m.SourceOrigin)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func liveSourceNames(evidence domain.ExternalEvidence) []string {
	var out []string
	if len(evidence.Papers) > 0 {
		out = append(out, "pubmed")
	}
	if len(evidence.Trials) > 0 {
		out = append(out, "clinicaltrials")
	}
	if len(evidence.Drugs) > 0 {
		out = append(out, "drugbank")
	}
	return out
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (o *Orchestrator) persistSearchArtifact(ctx context.Context, req domain.SearchRequest, matches []domain.ScoredMatch, sessionID, subject string) {
	inputs := map[string]interface{}{
		"query_terms": req.QueryTerms,
		"offset":      req.Page.Offset,
		"limit":       req.Page.Limit,
	}
	outputs := map[string]interface{}{
		"match_count": len(matches),
	}
	var confidence *float64
	if len(matches) > 0 {
		c := matches[0].Confidence
		confidence = &c
	}

	artifact := domain.AnalysisArtifact{
		Kind:       domain.ArtifactSearch,
		Inputs:     inputs,
		Outputs:    outputs,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
		SessionID:  sessionID,
		Subject:    subject,
	}
	if _, err := o.store.Insert(ctx, artifact); err != nil {
		o.log.WithError(err).Warn("orchestrator: failed to persist search artifact, continuing")
	}
}

// Stats aggregates corpus, hero-case, and source counts for the
// statistics operation.
func (o *Orchestrator) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{
		CountsByPhase:    make(map[domain.ClinicalPhase]int),
		CountsByEvidence: make(map[domain.EvidenceLevel]int),
		CountsBySource:   make(map[domain.DrugSource]int),
	}

	drugs := o.index.All()
	stats.DrugCount = len(drugs)
	for _, d := range drugs {
		stats.CountsByPhase[d.ClinicalPhase]++
		stats.CountsBySource[d.Source]++
	}

	heroes := o.index.HeroCases()
	stats.HeroCaseCount = len(heroes)
	for _, h := range heroes {
		stats.CountsByEvidence[h.EvidenceLevel]++
	}

	return stats, nil
}

// LookupMechanism wraps the Search Engine's mechanism-lookup operation.
func (o *Orchestrator) LookupMechanism(ctx context.Context, substring string) ([]domain.Drug, error) {
	return o.search.LookupMechanism(ctx, substring)
}

// DrugDetails resolves name case-insensitively against the corpus and
// joins in any hero cases for the same drug.
func (o *Orchestrator) DrugDetails(ctx context.Context, name string) (domain.DrugDetails, error) {
	if strings.TrimSpace(name) == "" {
		return domain.DrugDetails{}, domain.NewValidationError("name", "drug name must not be empty", name)
	}
	drug, ok := o.index.ByName(name)
	if !ok {
		return domain.DrugDetails{}, &domain.NotFoundError{Kind: "drug", ID: name}
	}

	details := domain.DrugDetails{Drug: drug}
	for _, h := range o.index.HeroCases() {
		if h.DrugID == drug.DrugID {
			details.HeroCases = append(details.HeroCases, h)
		}
	}
	return details, nil
}

// BuildMarketReport re-uses the Scorer over drugID's curated fields,
// tagged to cancerType, and caches/persists the result as a
// market_report AnalysisArtifact.
func (o *Orchestrator) BuildMarketReport(ctx context.Context, drugID, cancerType string) (domain.AnalysisArtifact, error) {
	drug, ok := findDrugByID(o.index.All(), drugID)
	if !ok {
		return domain.AnalysisArtifact{}, &domain.NotFoundError{Kind: "drug", ID: drugID}
	}

	key := cache.MarketAnalysisKey(drugID, cancerType)
	if raw, hit, err := o.cacheLayer.Get(ctx, key); err == nil && hit {
		var cached domain.AnalysisArtifact
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
	}

	bundle := domain.EvidenceBundle{
		Phase:         string(drug.ClinicalPhase),
		TrialCount:    0,
		CitationCount: 0,
		Sources:       []string{string(drug.Source)},
		Pathways:      nil,
	}
	confidence, tier, explanation := o.scorer.Score(bundle)

	artifact := domain.AnalysisArtifact{
		Kind: domain.ArtifactMarketReport,
		Inputs: map[string]interface{}{
			"drug_id":     drugID,
			"cancer_type": cancerType,
		},
		Outputs: map[string]interface{}{
			"drug_name":   drug.Name,
			"tier":        string(tier),
			"explanation": explanation,
		},
		Confidence: &confidence,
		CreatedAt:  time.Now().UTC(),
	}

	id, err := o.store.Insert(ctx, artifact)
	if err != nil {
		o.log.WithError(err).Warn("orchestrator: failed to persist market report, returning ephemeral artifact")
	} else {
		artifact.ArtifactID = id
	}

	if payload, marshalErr := json.Marshal(artifact); marshalErr == nil {
		if setErr := o.cacheLayer.Set(ctx, key, payload, o.marketAnalysisTTL); setErr != nil {
			o.log.WithError(setErr).Warn("orchestrator: failed to cache market report")
		}
	}

	return artifact, nil
}

func findDrugByID(drugs []domain.Drug, drugID string) (domain.Drug, bool) {
	for _, d := range drugs {
		if d.DrugID == drugID {
			return d, true
		}
	}
	return domain.Drug{}, false
}

// Fingerprint computes a stable hash of normalized query parameters
// (lowercased terms, sorted filters, pagination window) used as the
// cache layer's search:{fingerprint} key.
func Fingerprint(req domain.SearchRequest) domain.QueryFingerprint {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(req.QueryTerms)))
	b.WriteString("|oncology=")
	fmt.Fprintf(&b, "%v", req.Filters.OncologyOnly)
	b.WriteString("|min_conf=")
	if req.Filters.MinConfidence != nil {
		fmt.Fprintf(&b, "%.4f", *req.Filters.MinConfidence)
	}
	phases := make([]string, 0, len(req.Filters.PhaseIn))
	for _, p := range req.Filters.PhaseIn {
		phases = append(phases, string(p))
	}
	sort.Strings(phases)
	b.WriteString("|phases=")
	b.WriteString(strings.Join(phases, ","))
	fmt.Fprintf(&b, "|offset=%d|limit=%d", req.Page.Offset, req.Page.Limit)

	sum := sha1.Sum([]byte(b.String()))
	return domain.QueryFingerprint(hex.EncodeToString(sum[:]))
}

var _ domain.QueryOrchestrator = (*Orchestrator)(nil)
