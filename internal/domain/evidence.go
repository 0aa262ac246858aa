package domain

import "strings"

// MatchesDrugTitle reports whether a fetched paper/trial/drug title is a
// case-insensitive substring match (or superstring match) of drugName,
// used by the Orchestrator to attribute live evidence to a ScoredMatch.
func MatchesDrugTitle(drugName, title string) bool {
	if drugName == "" || title == "" {
		return false
	}
	lowerName := strings.ToLower(drugName)
	lowerTitle := strings.ToLower(title)
	return strings.Contains(lowerTitle, lowerName) || strings.Contains(lowerName, lowerTitle)
}

// MergeExternalEvidence folds ExternalEvidence relevant to drugName into
// an existing EvidenceBundle, adding to trial/citation counts and source
// credits without double counting curated defaults. Missing fetcher
// contributions leave the bundle unchanged (never penalize further).
func MergeExternalEvidence(bundle EvidenceBundle, drugName string, ev ExternalEvidence) EvidenceBundle {
	merged := bundle
	seenSources := make(map[string]bool, len(merged.Sources))
	for _, s := range merged.Sources {
		seenSources[s] = true
	}
	addSource := func(s string) {
		if !seenSources[s] {
			merged.Sources = append(merged.Sources, s)
			seenSources[s] = true
		}
	}

	for _, p := range ev.Papers {
		if MatchesDrugTitle(drugName, p.Title) {
			merged.CitationCount += p.CitationCount
			addSource("PubMed")
		}
	}
	for _, t := range ev.Trials {
		if MatchesDrugTitle(drugName, t.Title) {
			merged.TrialCount++
			addSource("ClinicalTrials.gov")
		}
	}
	for _, d := range ev.Drugs {
		if MatchesDrugTitle(drugName, d.Name) {
			addSource("DrugBank")
		}
	}
	return merged
}
