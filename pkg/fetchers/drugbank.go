package fetchers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
)

// DrugBankFetcher queries the DrugBank API for drug metadata. An API
// key is required: without one, Fetch short-circuits with a
// ConfigurationError before any network call and the provider reports
// as unavailable rather than the whole query failing.
type DrugBankFetcher struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sem        chan struct{}
}

// DrugBankConfig configures a DrugBankFetcher.
type DrugBankConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Concurrency int
}

// NewDrugBankFetcher creates a client bounded to config.Concurrency
// simultaneous in-flight requests.
func NewDrugBankFetcher(config DrugBankConfig) *DrugBankFetcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.drugbank.com/v1"
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	return &DrugBankFetcher{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		sem:        make(chan struct{}, config.Concurrency),
	}
}

// Name identifies this fetcher for degraded-provider reporting.
func (d *DrugBankFetcher) Name() string { return "drugbank" }

type drugbankSearchResponse struct {
	Drugs []drugbankDrug `json:"drugs"`
}

type drugbankDrug struct {
	Name            string   `json:"name"`
	DrugBankID      string   `json:"drugbank_id"`
	MolecularWeight *float64 `json:"molecular_weight,omitempty"`
	Structure       *string  `json:"structure,omitempty"`
	GroupsList      []string `json:"groups"`
	Manufacturer    *string  `json:"manufacturer,omitempty"`
	Mechanism       *string  `json:"mechanism_of_action,omitempty"`
	DrugClass       *string  `json:"drug_class,omitempty"`
	AdverseEvents   []string `json:"adverse_reactions"`
	Interactions    []string `json:"drug_interactions"`
}

// Fetch queries DrugBank for entries matching query (typically a drug
// name) and returns normalized DrugRecord results.
func (d *DrugBankFetcher) Fetch(ctx context.Context, query string) (domain.ExternalEvidence, error) {
	if d.apiKey == "" {
		return domain.ExternalEvidence{}, &domain.ConfigurationError{
			Provider: d.Name(),
			Message:  "missing DrugBank API key",
		}
	}

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return domain.ExternalEvidence{}, ctx.Err()
	}

	params := url.Values{"name": {query}}
	fullURL := fmt.Sprintf("%s/drugs?%s", d.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.ExternalEvidence{}, err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("drugbank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ExternalEvidence{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ExternalEvidence{}, fmt.Errorf("drugbank returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("read drugbank response: %w", err)
	}

	var parsed drugbankSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("parse drugbank response: %w", err)
	}

	records := make([]domain.DrugRecord, 0, len(parsed.Drugs))
	for _, dr := range parsed.Drugs {
		records = append(records, d.toRecord(dr))
	}
	return domain.ExternalEvidence{Drugs: records}, nil
}

func (d *DrugBankFetcher) toRecord(dr drugbankDrug) domain.DrugRecord {
	status := "unknown"
	if len(dr.GroupsList) > 0 {
		status = dr.GroupsList[0]
	}
	return domain.DrugRecord{
		Name:              dr.Name,
		DrugBankID:        dr.DrugBankID,
		MolecularWeight:   dr.MolecularWeight,
		Structure:         dr.Structure,
		ApprovalStatus:    status,
		Manufacturer:      dr.Manufacturer,
		Mechanism:         dr.Mechanism,
		DrugClass:         dr.DrugClass,
		AdverseEvents:     dr.AdverseEvents,
		Interactions:      dr.Interactions,
		Contraindications: nil,
	}
}
