// Package index builds the by_name, by_mechanism, by_target, by_phase
// exact-key maps plus a tokenized inverted index, once at startup from
// the immutable Corpus, never mutated afterward.
package index

import (
	"sort"
	"strings"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
)

// Builder implements domain.IndexBuilder.
type Builder struct{}

// New constructs a Builder.
func New() *Builder {
	return &Builder{}
}

// corpusIndex is the published, read-only view over an indexed Corpus.
// Every map is populated once in Build and never written to again, so
// concurrent readers need no synchronization.
type corpusIndex struct {
	byName      map[string]domain.Drug
	byMechanism map[string][]domain.Drug
	byTarget    map[string][]domain.Drug
	byPhase     map[domain.ClinicalPhase][]domain.Drug
	all         []domain.Drug
	heroCases   []domain.HeroCase

	// tokens maps a normalized name-or-mechanism token to the set of
	// drug indexes (into all) that contain it, for substring/token
	// queries that don't hit an exact key.
	tokens map[string][]int
}

// Build constructs the four exact-key indexes and the tokenized
// inverted index from corpus. Normalization matches the query
// normalization in internal/search: lowercase, trim.
func (b *Builder) Build(corpus *domain.Corpus) (domain.Index, error) {
	idx := &corpusIndex{
		byName:      make(map[string]domain.Drug, len(corpus.Drugs)),
		byMechanism: make(map[string][]domain.Drug),
		byTarget:    make(map[string][]domain.Drug),
		byPhase:     make(map[domain.ClinicalPhase][]domain.Drug),
		all:         append([]domain.Drug(nil), corpus.Drugs...),
		heroCases:   append([]domain.HeroCase(nil), corpus.HeroCases...),
		tokens:      make(map[string][]int),
	}

	for i, d := range idx.all {
		nameKey := normalize(d.Name)
		if _, exists := idx.byName[nameKey]; !exists {
			idx.byName[nameKey] = d
		}

		if d.MechanismOfAction != "" {
			mechKey := normalize(d.MechanismOfAction)
			idx.byMechanism[mechKey] = appendUnique(idx.byMechanism[mechKey], d)
		}

		for _, t := range d.Targets {
			targetKey := strings.ToUpper(t)
			idx.byTarget[targetKey] = appendUnique(idx.byTarget[targetKey], d)
		}

		idx.byPhase[d.ClinicalPhase] = appendUnique(idx.byPhase[d.ClinicalPhase], d)

		for tok := range tokenize(d.Name + " " + d.MechanismOfAction) {
			idx.tokens[tok] = append(idx.tokens[tok], i)
		}
	}

	return idx, nil
}

func appendUnique(list []domain.Drug, d domain.Drug) []domain.Drug {
	for _, existing := range list {
		if existing.DrugID == d.DrugID {
			return list
		}
	}
	return append(list, d)
}

// normalize lowercases and collapses whitespace, matching the query
// normalization used by the Search Engine's cascade.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenize splits s into a set of lowercased word tokens.
func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func (idx *corpusIndex) ByName(name string) (domain.Drug, bool) {
	d, ok := idx.byName[normalize(name)]
	return d, ok
}

func (idx *corpusIndex) ByMechanism(mechanism string) []domain.Drug {
	return idx.byMechanism[normalize(mechanism)]
}

func (idx *corpusIndex) ByTarget(target string) []domain.Drug {
	return idx.byTarget[strings.ToUpper(strings.TrimSpace(target))]
}

func (idx *corpusIndex) ByPhase(phase domain.ClinicalPhase) []domain.Drug {
	return idx.byPhase[phase]
}

// SubstringName returns all Drugs whose normalized name contains term.
// A single-word term that matches a whole token takes the O(1) inverted
// index path, keeping only the drugs whose name contains it (the token
// index also holds mechanism words); a partial-word or multi-word term
// falls back to the O(N) scan, since the token index only holds whole
// tokens.
func (idx *corpusIndex) SubstringName(term string) []domain.Drug {
	term = normalize(term)
	if term == "" {
		return nil
	}
	if !strings.Contains(term, " ") {
		if positions, ok := idx.tokens[term]; ok {
			out := make([]domain.Drug, 0, len(positions))
			for _, pos := range positions {
				if strings.Contains(normalize(idx.all[pos].Name), term) {
					out = append(out, idx.all[pos])
				}
			}
			return out
		}
	}

	var out []domain.Drug
	for _, d := range idx.all {
		if strings.Contains(normalize(d.Name), term) {
			out = append(out, d)
		}
	}
	return out
}

// SubstringMechanism returns all Drugs whose mechanism-of-action
// contains term, scanning the by_mechanism keys.
func (idx *corpusIndex) SubstringMechanism(term string) []domain.Drug {
	term = normalize(term)
	if term == "" {
		return nil
	}
	keys := make([]string, 0, len(idx.byMechanism))
	for k := range idx.byMechanism {
		if strings.Contains(k, term) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []domain.Drug
	for _, k := range keys {
		out = append(out, idx.byMechanism[k]...)
	}
	return out
}

// SubstringTarget returns all Drugs with a target symbol containing
// term, after uppercasing the query.
func (idx *corpusIndex) SubstringTarget(term string) []domain.Drug {
	term = strings.ToUpper(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	keys := make([]string, 0, len(idx.byTarget))
	for k := range idx.byTarget {
		if strings.Contains(k, term) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []domain.Drug
	for _, k := range keys {
		out = append(out, idx.byTarget[k]...)
	}
	return out
}

// SubstringDiseaseOrIndication scans disease_area and indication across
// all Drugs, O(N) bounded by corpus size.
func (idx *corpusIndex) SubstringDiseaseOrIndication(term string) []domain.Drug {
	term = normalize(term)
	if term == "" {
		return nil
	}
	var out []domain.Drug
	for _, d := range idx.all {
		if strings.Contains(normalize(d.DiseaseArea), term) || strings.Contains(normalize(d.Indication), term) {
			out = append(out, d)
		}
	}
	return out
}

func (idx *corpusIndex) All() []domain.Drug {
	return idx.all
}

func (idx *corpusIndex) HeroCases() []domain.HeroCase {
	return idx.heroCases
}

var _ domain.IndexBuilder = (*Builder)(nil)
