package corpus

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/oncopurpose/repurposing-engine/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(discardWriter{})
	return log
}

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	body, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))
}

func TestLoader_LoadsBroadHubAndHeroCases(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "broad", "broad_complete.json"), broadFile{
		AllDrugs: []broadRecord{
			{PertIName: "Metformin", ClinicalPhase: "Approved", MOA: "AMPK activation", Target: "AMPK", DiseaseArea: "Ovarian Cancer", Indication: "Type 2 Diabetes"},
		},
	})
	writeJSON(t, filepath.Join(dir, "hero_cases", "hero_repurposing_cases.json"), []heroCaseRecord{
		{DrugName: "Metformin", OriginalIndication: "Type 2 Diabetes", RepurposedCancers: []string{"Ovarian Cancer"}, ConfidenceScore: 0.7, TrialCount: 12, CitationCount: 80, Mechanism: "AMPK activation", EvidenceLevel: "high", DemoPriority: 3},
	})

	c, err := New(discardLogger()).Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, c.Drugs, 1)
	assert.Equal(t, "Metformin", c.Drugs[0].Name)
	assert.Equal(t, domain.PhaseApproved, c.Drugs[0].ClinicalPhase)
	assert.Equal(t, []string{"AMPK"}, c.Drugs[0].Targets)
	assert.Equal(t, domain.SourceBroadHub, c.Drugs[0].Source)

	require.Len(t, c.HeroCases, 1)
	assert.Equal(t, c.Drugs[0].DrugID, c.HeroCases[0].DrugID)
	assert.Equal(t, domain.EvidenceHigh, c.HeroCases[0].EvidenceLevel)
	assert.Equal(t, 3, c.HeroCases[0].DemoPriority)
}

func TestLoader_OncologySubsetAppendsUnseenDrugsByName(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "broad", "broad_complete.json"), broadFile{
		AllDrugs: []broadRecord{
			{PertIName: "Metformin", ClinicalPhase: "Approved"},
		},
	})
	writeJSON(t, filepath.Join(dir, "broad", "broad_oncology_compounds.json"), oncologyFile{
		OncologyDrugs: []broadRecord{
			{PertIName: "Metformin", ClinicalPhase: "Approved"},    // already present by name, not duplicated
			{PertIName: "Itraconazole", ClinicalPhase: "Phase 2"}, // new, appended
		},
	})

	c, err := New(discardLogger()).Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, c.Drugs, 2)
	names := []string{c.Drugs[0].Name, c.Drugs[1].Name}
	assert.Contains(t, names, "Metformin")
	assert.Contains(t, names, "Itraconazole")

	for _, d := range c.Drugs {
		if d.Name == "Itraconazole" {
			assert.Equal(t, domain.SourceCurated, d.Source)
		}
		if d.Name == "Metformin" {
			assert.Equal(t, domain.SourceBroadHub, d.Source, "a name already present in the broad hub is not overwritten by the overlay")
		}
	}
}

func TestLoader_MissingFilesProduceEmptyCorpusNotError(t *testing.T) {
	dir := t.TempDir()

	c, err := New(discardLogger()).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, c.Drugs)
	assert.Empty(t, c.HeroCases)
}

func TestLoader_MalformedBroadFileFailsWithCorpusParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broad", "broad_complete.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	_, err := New(discardLogger()).Load(context.Background(), dir)
	require.Error(t, err)
	var parseErr *domain.CorpusParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, path, parseErr.Path)
}

func TestLoader_MalformedHeroCasesFileFailsWithCorpusParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hero_cases", "hero_repurposing_cases.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	_, err := New(discardLogger()).Load(context.Background(), dir)
	require.Error(t, err)
	var parseErr *domain.CorpusParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDrugIDFromName_IsStableAndCaseInsensitive(t *testing.T) {
	assert.Equal(t, drugIDFromName("Metformin"), drugIDFromName("  metformin  "))
	assert.NotEqual(t, drugIDFromName("Metformin"), drugIDFromName("Itraconazole"))
}
