package domain

import "context"

// CorpusLoader reads curated datasets from a configured directory at
// process start and produces immutable Drug and HeroCase collections.
type CorpusLoader interface {
	Load(ctx context.Context, dir string) (*Corpus, error)
}

// Corpus is the immutable result of a successful corpus load.
type Corpus struct {
	Drugs     []Drug
	HeroCases []HeroCase
}

// IndexBuilder constructs the by_name/by_mechanism/by_target/by_phase
// indexes plus the tokenized inverted index from an immutable Corpus.
type IndexBuilder interface {
	Build(corpus *Corpus) (Index, error)
}

// Index is the read-only, post-publication view over an indexed corpus.
type Index interface {
	ByName(name string) (Drug, bool)
	ByMechanism(mechanism string) []Drug
	ByTarget(target string) []Drug
	ByPhase(phase ClinicalPhase) []Drug
	SubstringName(term string) []Drug
	SubstringMechanism(term string) []Drug
	SubstringTarget(term string) []Drug
	SubstringDiseaseOrIndication(term string) []Drug
	All() []Drug
	HeroCases() []HeroCase
}

// Scorer computes a confidence and tier from an EvidenceBundle. It is a
// pure, total function: the same input always yields the same output.
type Scorer interface {
	Score(bundle EvidenceBundle) (confidence float64, tier Tier, explanation []FactorContribution)
}

// SearchFilters narrows a search request.
type SearchFilters struct {
	OncologyOnly   bool
	MinConfidence  *float64
	PhaseIn        []ClinicalPhase
}

// Pagination bounds a search request's result window.
type Pagination struct {
	Offset int
	Limit  int
}

// SearchRequest is the input to the Search Engine's public contract.
type SearchRequest struct {
	QueryTerms string
	Filters    SearchFilters
	Page       Pagination
}

// SearchEngine runs multi-field fuzzy search over the indexed corpus and
// hero cases, ranks, dedups, and paginates the result.
type SearchEngine interface {
	Search(ctx context.Context, req SearchRequest) ([]ScoredMatch, error)
	LookupMechanism(ctx context.Context, substring string) ([]Drug, error)
}

// ExternalEvidence is the aggregate of live-fetched records relevant to
// a query, contributed by the External Fetchers.
type ExternalEvidence struct {
	Papers  []Paper
	Trials  []Trial
	Drugs   []DrugRecord
	Degraded []string // providers that returned a degraded/empty result
}

// ExternalFetcher is the shared contract for a bounded-concurrency
// external biomedical API client.
type ExternalFetcher interface {
	Name() string
	Fetch(ctx context.Context, query string) (ExternalEvidence, error)
}

// CacheLayer exposes a fingerprinted, TTL'd key-value store plus
// auxiliary operations (existence, pattern scan, increment). The search
// cache and the refresh-token manager build on it; the rate limiter
// talks to Redis through its own client.
type CacheLayer interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl int) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Clear(ctx context.Context, pattern string) error
	Ping(ctx context.Context) error
	Incr(ctx context.Context, key string, amount int64) (int64, error)
	IsConnected() bool
}

// RateLimitDecision is the outcome of a single admission check.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	ResetAt    int64
	RetryAfter int64
}

// RateLimiter admits or rejects requests under a sliding-window,
// tier-aware throttle with atomic increment.
type RateLimiter interface {
	Admit(ctx context.Context, identity string, tier RateTier) (RateLimitDecision, error)
}

// AnalysisStore persists AnalysisArtifact records, durably when a
// backing database is configured, ephemerally otherwise.
type AnalysisStore interface {
	Insert(ctx context.Context, artifact AnalysisArtifact) (string, error)
	List(ctx context.Context, filter ArtifactFilter, limit int) ([]AnalysisArtifact, error)
	Get(ctx context.Context, artifactID string) (AnalysisArtifact, error)
	Close() error
}

// QueryOrchestrator composes the Index, Scorer, Search Engine, External
// Fetchers, and Cache Layer for a single user query.
type QueryOrchestrator interface {
	Query(ctx context.Context, req SearchRequest, wantLiveEvidence bool, persist bool, sessionID, subject string) (OrchestratorResult, error)
	Stats(ctx context.Context) (Stats, error)
	LookupMechanism(ctx context.Context, substring string) ([]Drug, error)
	DrugDetails(ctx context.Context, name string) (DrugDetails, error)
	BuildMarketReport(ctx context.Context, drugID, cancerType string) (AnalysisArtifact, error)
}

// DrugDetails joins a drug's corpus record with any curated hero cases
// for it, for the by-name details operation.
type DrugDetails struct {
	Drug      Drug       `json:"drug"`
	HeroCases []HeroCase `json:"hero_cases"`
}

// OrchestratorResult is the envelope returned from a single query,
// carrying the ranked matches plus observability signals.
type OrchestratorResult struct {
	Matches       []ScoredMatch
	CacheHit      bool
	DataSources   []string
	Degraded      []string
	ElapsedMillis int64
}

// Stats is the aggregate corpus/hero-case/source summary exposed by the
// statistics operation.
type Stats struct {
	DrugCount        int
	HeroCaseCount    int
	CountsByPhase    map[ClinicalPhase]int
	CountsByEvidence map[EvidenceLevel]int
	CountsBySource   map[DrugSource]int
}

// ConfigManager exposes the loaded, validated application configuration.
type ConfigManager interface {
	GetConfig() *Config
	Validate() error
	GetCacheConnectionString() string
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
