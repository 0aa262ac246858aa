// Package corpus implements the Corpus Loader (C1): reads the curated
// broad-hub drug dataset, the hero-cases dataset, and an optional
// oncology-subset overlay from a configured directory at process start.
package corpus

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
)

// Loader implements domain.CorpusLoader over the on-disk JSON layout
// this system's data pipeline produces: broad/broad_complete.json,
// broad/broad_oncology_compounds.json, and
// hero_cases/hero_repurposing_cases.json.
type Loader struct {
	log *logrus.Logger
}

// New constructs a Loader.
func New(log *logrus.Logger) *Loader {
	return &Loader{log: log}
}

type broadRecord struct {
	PertIName     string `json:"pert_iname"`
	ClinicalPhase string `json:"clinical_phase"`
	MOA           string `json:"moa"`
	Target        string `json:"target"`
	DiseaseArea   string `json:"disease_area"`
	Indication    string `json:"indication"`
}

type broadFile struct {
	AllDrugs []broadRecord `json:"all_drugs"`
}

type oncologyFile struct {
	OncologyDrugs []broadRecord `json:"oncology_drugs"`
}

type heroCaseRecord struct {
	DrugName           string   `json:"drug_name"`
	OriginalIndication string   `json:"original_indication"`
	RepurposedCancers  []string `json:"repurposed_cancers"`
	ConfidenceScore    float64  `json:"confidence_score"`
	TrialCount         int      `json:"trial_count"`
	CitationCount      int      `json:"citation_count"`
	Mechanism          string   `json:"mechanism"`
	Pathways           []string `json:"pathways"`
	EvidenceLevel      string   `json:"evidence_level"`
	DemoPriority       int      `json:"demo_priority"`
}

// Load reads every dataset file under dir. A missing file logs a
// warning and contributes nothing; a present-but-malformed file fails
// the whole load with a CorpusParseError.
func (l *Loader) Load(ctx context.Context, dir string) (*domain.Corpus, error) {
	drugs, err := l.loadBroadDrugs(dir)
	if err != nil {
		return nil, err
	}

	oncologyDrugs, err := l.loadOncologySubset(dir)
	if err != nil {
		return nil, err
	}
	drugs = mergeDrugs(drugs, oncologyDrugs)

	heroCases, err := l.loadHeroCases(dir)
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"drugs":      len(drugs),
		"hero_cases": len(heroCases),
	}).Info("corpus loader: load complete")

	return &domain.Corpus{Drugs: drugs, HeroCases: heroCases}, nil
}

func (l *Loader) loadBroadDrugs(dir string) ([]domain.Drug, error) {
	path := filepath.Join(dir, "broad", "broad_complete.json")
	body, ok, err := readIfExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.log.WithField("path", path).Warn("corpus loader: broad-hub dataset not found")
		return nil, nil
	}

	var parsed broadFile
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.CorpusParseError{Path: path, Message: err.Error()}
	}

	drugs := make([]domain.Drug, 0, len(parsed.AllDrugs))
	for _, rec := range parsed.AllDrugs {
		drugs = append(drugs, normalizeDrug(rec, domain.SourceBroadHub))
	}
	return drugs, nil
}

func (l *Loader) loadOncologySubset(dir string) ([]domain.Drug, error) {
	path := filepath.Join(dir, "broad", "broad_oncology_compounds.json")
	body, ok, err := readIfExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var parsed oncologyFile
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.CorpusParseError{Path: path, Message: err.Error()}
	}

	drugs := make([]domain.Drug, 0, len(parsed.OncologyDrugs))
	for _, rec := range parsed.OncologyDrugs {
		drugs = append(drugs, normalizeDrug(rec, domain.SourceCurated))
	}
	return drugs, nil
}

func (l *Loader) loadHeroCases(dir string) ([]domain.HeroCase, error) {
	path := filepath.Join(dir, "hero_cases", "hero_repurposing_cases.json")
	body, ok, err := readIfExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.log.WithField("path", path).Warn("corpus loader: hero cases not found")
		return nil, nil
	}

	var records []heroCaseRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, &domain.CorpusParseError{Path: path, Message: err.Error()}
	}

	cases := make([]domain.HeroCase, 0, len(records))
	for _, rec := range records {
		drugID := drugIDFromName(rec.DrugName)
		cases = append(cases, domain.HeroCase{
			DrugID:             drugID,
			DrugName:           rec.DrugName,
			OriginalIndication: strings.TrimSpace(rec.OriginalIndication),
			RepurposedCancers:  rec.RepurposedCancers,
			ConfidenceScore:    domain.Clamp01(rec.ConfidenceScore),
			TrialCount:         rec.TrialCount,
			CitationCount:      rec.CitationCount,
			Mechanism:          strings.TrimSpace(rec.Mechanism),
			Pathways:           rec.Pathways,
			EvidenceLevel:      normalizeEvidenceLevel(rec.EvidenceLevel),
			DemoPriority:       rec.DemoPriority,
		})
	}
	return cases, nil
}

func normalizeEvidenceLevel(raw string) domain.EvidenceLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "very_high", "very high":
		return domain.EvidenceVeryHigh
	case "high":
		return domain.EvidenceHigh
	case "moderate":
		return domain.EvidenceModerate
	default:
		return domain.EvidenceLow
	}
}

// normalizeDrug trims whitespace, uppercases target symbols, pipe-splits
// the target string, and preserves original case for display fields.
func normalizeDrug(rec broadRecord, source domain.DrugSource) domain.Drug {
	name := strings.TrimSpace(rec.PertIName)
	var targets []string
	for _, t := range strings.Split(rec.Target, "|") {
		if trimmed := strings.ToUpper(strings.TrimSpace(t)); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}

	return domain.Drug{
		DrugID:            drugIDFromName(name),
		Name:              name,
		ClinicalPhase:     domain.NormalizeClinicalPhase(rec.ClinicalPhase),
		MechanismOfAction: strings.TrimSpace(rec.MOA),
		Targets:           targets,
		DiseaseArea:       strings.TrimSpace(rec.DiseaseArea),
		Indication:        strings.TrimSpace(rec.Indication),
		Source:            source,
	}
}

// drugIDFromName derives a stable identifier from a display name so the
// same drug always resolves to the same ID across dataset reloads.
func drugIDFromName(name string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(name))))
	return hex.EncodeToString(sum[:8])
}

// mergeDrugs appends overlay drugs not already present (by normalized
// name) in base, so the oncology subset enriches rather than duplicates
// the broad-hub dataset.
func mergeDrugs(base, overlay []domain.Drug) []domain.Drug {
	seen := make(map[string]bool, len(base))
	for _, d := range base {
		seen[strings.ToLower(d.Name)] = true
	}
	for _, d := range overlay {
		key := strings.ToLower(d.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		base = append(base, d)
	}
	return base
}

func readIfExists(path string) ([]byte, bool, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	return body, true, nil
}

var _ domain.CorpusLoader = (*Loader)(nil)
