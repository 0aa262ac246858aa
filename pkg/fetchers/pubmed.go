// Package fetchers implements the External Fetchers: bounded-concurrency,
// circuit-breaker-wrapped clients for the live biomedical APIs (PubMed,
// ClinicalTrials.gov, DrugBank) consulted when a query requests live
// evidence.
package fetchers

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"golang.org/x/time/rate"
)

// NCBI E-utilities' published rate ceilings: 3 req/s unauthenticated,
// 10 req/s with an api_key.
const (
	pubmedRequestsPerSecond        = 3
	pubmedRequestsPerSecondWithKey = 10
)

// PubMedFetcher queries NCBI PubMed via E-utilities for literature
// mentioning a drug or mechanism term.
type PubMedFetcher struct {
	baseURL    string
	apiKey     string
	email      string
	httpClient *http.Client
	sem        chan struct{}
	limiter    *rate.Limiter
}

// PubMedConfig configures a PubMedFetcher.
type PubMedConfig struct {
	BaseURL     string
	APIKey      string
	Email       string
	Timeout     time.Duration
	Concurrency int
}

// NewPubMedFetcher creates a PubMed client bounded to config.Concurrency
// simultaneous in-flight requests.
func NewPubMedFetcher(config PubMedConfig) *PubMedFetcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	requestsPerSecond := rate.Limit(pubmedRequestsPerSecond)
	if config.APIKey != "" {
		requestsPerSecond = rate.Limit(pubmedRequestsPerSecondWithKey)
	}
	return &PubMedFetcher{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		email:   config.Email,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		sem:     make(chan struct{}, config.Concurrency),
		limiter: rate.NewLimiter(requestsPerSecond, 1),
	}
}

// Name identifies this fetcher for degraded-provider reporting.
func (p *PubMedFetcher) Name() string { return "pubmed" }

type pubmedSearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

type pubmedSummaryResult struct {
	XMLName xml.Name          `xml:"eSummaryResult"`
	DocSum  []pubmedDocSummary `xml:"DocSum"`
}

type pubmedDocSummary struct {
	UID   string      `xml:"Id"`
	Items []pubmedItem `xml:"Item"`
}

type pubmedItem struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",innerxml"`
}

// Fetch searches PubMed for articles mentioning query and returns up to
// 20 normalized Paper records.
func (p *PubMedFetcher) Fetch(ctx context.Context, query string) (domain.ExternalEvidence, error) {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return domain.ExternalEvidence{}, ctx.Err()
	}

	pmids, err := p.search(ctx, query)
	if err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("pubmed search: %w", err)
	}
	if len(pmids) == 0 {
		return domain.ExternalEvidence{}, nil
	}
	if len(pmids) > 20 {
		pmids = pmids[:20]
	}

	summaries, err := p.summaries(ctx, pmids)
	if err != nil {
		return domain.ExternalEvidence{}, fmt.Errorf("pubmed summary: %w", err)
	}

	papers := make([]domain.Paper, 0, len(summaries))
	for _, s := range summaries {
		papers = append(papers, p.toPaper(s))
	}
	return domain.ExternalEvidence{Papers: papers}, nil
}

func (p *PubMedFetcher) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmode": {"xml"},
		"retmax":  {"100"},
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}

	body, err := p.get(ctx, fmt.Sprintf("%sesearch.fcgi?%s", p.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var result pubmedSearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return result.IDList.IDs, nil
}

func (p *PubMedFetcher) summaries(ctx context.Context, pmids []string) ([]pubmedDocSummary, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	body, err := p.get(ctx, fmt.Sprintf("%sesummary.fcgi?%s", p.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var result pubmedSummaryResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse summary response: %w", err)
	}
	return result.DocSum, nil
}

func (p *PubMedFetcher) get(ctx context.Context, fullURL string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pubmed rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pubmed returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *PubMedFetcher) toPaper(s pubmedDocSummary) domain.Paper {
	paper := domain.Paper{PMID: s.UID}
	for _, item := range s.Items {
		switch item.Name {
		case "Title":
			paper.Title = cleanXML(item.Value)
		case "AuthorList":
			paper.Authors = splitAuthors(item.Value)
		case "Source":
			paper.Journal = cleanXML(item.Value)
		case "PubDate":
			if year, err := extractYear(item.Value); err == nil {
				paper.PublicationDate = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			}
		}
	}
	return paper
}

func cleanXML(value string) string {
	r := strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "")
	return strings.TrimSpace(r.Replace(value))
}

func splitAuthors(raw string) []string {
	var authors []string
	for _, a := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			authors = append(authors, trimmed)
		}
	}
	return authors
}

func extractYear(raw string) (int, error) {
	clean := cleanXML(raw)
	for _, part := range strings.Fields(clean) {
		if len(part) == 4 {
			if year, err := strconv.Atoi(part); err == nil && year > 1900 && year <= time.Now().Year()+1 {
				return year, nil
			}
		}
	}
	return 0, fmt.Errorf("no year found in %q", raw)
}
