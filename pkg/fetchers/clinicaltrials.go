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

// ClinicalTrialsFetcher queries the ClinicalTrials.gov v2 API for studies
// matching a drug or mechanism term.
type ClinicalTrialsFetcher struct {
	baseURL    string
	httpClient *http.Client
	sem        chan struct{}
}

// ClinicalTrialsConfig configures a ClinicalTrialsFetcher.
type ClinicalTrialsConfig struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
}

// NewClinicalTrialsFetcher creates a client bounded to config.Concurrency
// simultaneous in-flight requests.
func NewClinicalTrialsFetcher(config ClinicalTrialsConfig) *ClinicalTrialsFetcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://clinicaltrials.gov/api/v2/studies"
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	return &ClinicalTrialsFetcher{
		baseURL:    config.BaseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		sem:        make(chan struct{}, config.Concurrency),
	}
}

// Name identifies this fetcher for degraded-provider reporting.
func (c *ClinicalTrialsFetcher) Name() string { return "clinicaltrials" }

type ctgovResponse struct {
	Studies []ctgovStudy `json:"studies"`
}

type ctgovStudy struct {
	ProtocolSection struct {
		IdentificationModule struct {
			NCTID      string `json:"nctId"`
			BriefTitle string `json:"briefTitle"`
		} `json:"identificationModule"`
		StatusModule struct {
			OverallStatus   string `json:"overallStatus"`
			StartDateStruct struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			CompletionDateStruct struct {
				Date string `json:"date"`
			} `json:"completionDateStruct"`
		} `json:"statusModule"`
		DesignModule struct {
			PhaseList []string `json:"phases"`
		} `json:"designModule"`
		SponsorCollaboratorsModule struct {
			LeadSponsor struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
		} `json:"sponsorCollaboratorsModule"`
		OutcomesModule struct {
			PrimaryOutcomes []struct {
				Measure string `json:"measure"`
			} `json:"primaryOutcomes"`
		} `json:"outcomesModule"`
		EnrollmentModule struct {
			Count int `json:"count"`
		} `json:"enrollmentInfo"`
	} `json:"protocolSection"`
}

// Fetch searches ClinicalTrials.gov for studies mentioning query and
// returns up to 20 normalized Trial records.
func (c *ClinicalTrialsFetcher) Fetch(ctx context.Context, query string) (domain.ExternalEvidence, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return domain.ExternalEvidence{}, ctx.Err()
	}

	params := url.Values{
		"query.term":  {query},
		"pageSize":    {"20"},
		"format":      {"json"},
	}
	fullURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.ExternalEvidence{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("clinicaltrials request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ExternalEvidence{}, fmt.Errorf("clinicaltrials returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("read clinicaltrials response: %w", err)
	}

	var parsed ctgovResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("parse clinicaltrials response: %w", err)
	}

	trials := make([]domain.Trial, 0, len(parsed.Studies))
	for _, s := range parsed.Studies {
		trial := c.toTrial(s)
		if trial.NCTID == "" || trial.Title == "" {
			continue
		}
		trials = append(trials, trial)
	}
	return domain.ExternalEvidence{Trials: trials}, nil
}

func (c *ClinicalTrialsFetcher) toTrial(s ctgovStudy) domain.Trial {
	id := s.ProtocolSection.IdentificationModule
	status := s.ProtocolSection.StatusModule
	design := s.ProtocolSection.DesignModule
	sponsor := s.ProtocolSection.SponsorCollaboratorsModule.LeadSponsor.Name
	enrollment := s.ProtocolSection.EnrollmentModule.Count

	trial := domain.Trial{
		NCTID:   id.NCTID,
		Title:   id.BriefTitle,
		Status:  status.OverallStatus,
		Sponsor: sponsor,
		URL:     fmt.Sprintf("https://clinicaltrials.gov/study/%s", id.NCTID),
	}
	if len(design.PhaseList) > 0 {
		trial.Phase = design.PhaseList[0]
	}
	if start := parseCTDate(status.StartDateStruct.Date); start != nil {
		trial.StartDate = start
	}
	if completion := parseCTDate(status.CompletionDateStruct.Date); completion != nil {
		trial.CompletionDate = completion
	}
	if enrollment > 0 {
		trial.EnrollmentCount = &enrollment
	}
	if len(s.ProtocolSection.OutcomesModule.PrimaryOutcomes) > 0 {
		measure := s.ProtocolSection.OutcomesModule.PrimaryOutcomes[0].Measure
		trial.PrimaryOutcome = &measure
	}
	return trial
}

func parseCTDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	layouts := []string{"2006-01-02", "2006-01"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
