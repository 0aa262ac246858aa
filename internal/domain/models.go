package domain

import "time"

// Drug is a curated drug record assembled by the Corpus Loader. It is
// immutable for the lifetime of a process generation.
type Drug struct {
	DrugID             string        `json:"drug_id"`
	Name               string        `json:"name"`
	ClinicalPhase      ClinicalPhase `json:"clinical_phase"`
	MechanismOfAction  string        `json:"mechanism_of_action"`
	Targets            []string      `json:"targets"`
	DiseaseArea        string        `json:"disease_area"`
	Indication         string        `json:"indication"`
	Source             DrugSource    `json:"source"`
}

// HeroCase is a curated, high-confidence repurposing example used as
// ground truth and demo anchor. Immutable per process generation.
type HeroCase struct {
	DrugID             string        `json:"drug_id"`
	DrugName           string        `json:"drug_name"`
	OriginalIndication string        `json:"original_indication"`
	RepurposedCancers  []string      `json:"repurposed_cancers"`
	ConfidenceScore    float64       `json:"confidence_score"`
	TrialCount         int           `json:"trial_count"`
	CitationCount      int           `json:"citation_count"`
	Mechanism          string        `json:"mechanism"`
	Pathways           []string      `json:"pathways"`
	EvidenceLevel      EvidenceLevel `json:"evidence_level"`
	DemoPriority       int           `json:"demo_priority"`
}

// EvidenceBundle is the transient input to the Scorer, synthesized from
// curated corpus fields and, optionally, live external-fetcher results.
type EvidenceBundle struct {
	Phase         string   `json:"phase"`
	TrialCount    int      `json:"trial_count"`
	CitationCount int      `json:"citation_count"`
	Sources       []string `json:"sources"`
	Pathways      []string `json:"pathways"`
}

// FactorContribution is a single weighted sub-score line item in a
// ScoredMatch's explanation.
type FactorContribution struct {
	Factor       string  `json:"factor"`
	SubScore     float64 `json:"sub_score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// ScoredMatch is a ranked drug/cancer candidate returned by the Search
// Engine, carrying its confidence, tier, and per-factor explanation.
type ScoredMatch struct {
	DrugID           string               `json:"drug_id"`
	DrugName         string               `json:"drug_name"`
	CancerType       string               `json:"cancer_type"`
	Confidence       float64              `json:"confidence"`
	Tier             Tier                 `json:"tier"`
	Explanation      []FactorContribution `json:"explanation"`
	EvidenceSnapshot EvidenceBundle       `json:"evidence_snapshot"`
	SourceOrigin     SourceOrigin         `json:"source_origin"`
	IsHero           bool                 `json:"-"`
	Primary          bool                 `json:"-"`
	DemoPriority     int                  `json:"-"`
}

// QueryFingerprint is a stable hash of normalized query parameters, used
// as the cache key for a search result.
type QueryFingerprint string

// CacheEntry is a single value stored in the Cache Layer.
type CacheEntry struct {
	Key         string    `json:"key"`
	Value       []byte    `json:"value"`
	ContentType string    `json:"content_type"`
	TTLDeadline time.Time `json:"ttl_deadline"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the entry is no longer observable via reads.
func (c CacheEntry) Expired(now time.Time) bool {
	return now.After(c.TTLDeadline)
}

// RefreshTokenRecord tracks one refresh token's lifecycle state.
type RefreshTokenRecord struct {
	JTI       string            `json:"jti"`
	Subject   string            `json:"subject"`
	State     RefreshTokenState `json:"state"`
	ExpiresAt time.Time         `json:"expires_at"`
	IssuedAt  time.Time         `json:"issued_at"`
}

// Active reports whether the record currently authenticates its subject.
func (r RefreshTokenRecord) Active(now time.Time) bool {
	return r.State == TokenActive && now.Before(r.ExpiresAt)
}

// RateWindow is the sliding-window admission state for one
// (identity, tier) pair.
type RateWindow struct {
	Identity   string    `json:"identity"`
	Tier       RateTier  `json:"tier"`
	Timestamps []int64   `json:"timestamps"`
}

// AnalysisArtifact is an append-only record of a generated analysis or
// user-visible artifact.
type AnalysisArtifact struct {
	ArtifactID string                 `json:"artifact_id"`
	Kind       ArtifactKind           `json:"kind"`
	Inputs     map[string]interface{} `json:"inputs"`
	Outputs    map[string]interface{} `json:"outputs"`
	Confidence *float64               `json:"confidence,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	SessionID  string                 `json:"session_id,omitempty"`
	Subject    string                 `json:"subject,omitempty"`
}

// ArtifactFilter narrows an Analysis Store list() call.
type ArtifactFilter struct {
	Kind      ArtifactKind
	Subject   string
	SessionID string
}

// Paper is the provider-neutral shape for a PubMed article.
type Paper struct {
	PMID            string    `json:"pmid"`
	Title           string    `json:"title"`
	Authors         []string  `json:"authors"`
	Journal         string    `json:"journal"`
	PublicationDate time.Time `json:"publication_date"`
	DOI             string    `json:"doi"`
	Abstract        string    `json:"abstract"`
	CitationCount   int       `json:"citation_count"`
}

// Trial is the provider-neutral shape for a ClinicalTrials.gov study.
type Trial struct {
	NCTID            string     `json:"nct_id"`
	Title            string     `json:"title"`
	Status           string     `json:"status"`
	Phase            string     `json:"phase"`
	Sponsor          string     `json:"sponsor"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	CompletionDate   *time.Time `json:"completion_date,omitempty"`
	EnrollmentCount  *int       `json:"enrollment_count,omitempty"`
	PrimaryOutcome   *string    `json:"primary_outcome,omitempty"`
	URL              string     `json:"url"`
}

// DrugRecord is the provider-neutral shape for a DrugBank entry.
type DrugRecord struct {
	Name             string   `json:"name"`
	DrugBankID       string   `json:"drugbank_id"`
	MolecularWeight  *float64 `json:"molecular_weight,omitempty"`
	Structure        *string  `json:"structure,omitempty"`
	ApprovalStatus   string   `json:"approval_status"`
	Manufacturer     *string  `json:"manufacturer,omitempty"`
	Mechanism        *string  `json:"mechanism,omitempty"`
	DrugClass        *string  `json:"drug_class,omitempty"`
	AdverseEvents    []string `json:"adverse_events"`
	Contraindications []string `json:"contraindications"`
	Interactions     []string `json:"interactions"`
}
