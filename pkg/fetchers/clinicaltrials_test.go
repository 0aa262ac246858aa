package fetchers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClinicalTrialsFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies": [
			{"protocolSection": {
				"identificationModule": {"nctId": "NCT01101438", "briefTitle": "Metformin in Ovarian Cancer"},
				"statusModule": {"overallStatus": "COMPLETED", "startDateStruct": {"date": "2010-04"}},
				"designModule": {"phases": ["PHASE2"]},
				"sponsorCollaboratorsModule": {"leadSponsor": {"name": "Mayo Clinic"}},
				"outcomesModule": {"primaryOutcomes": [{"measure": "Progression-free survival"}]},
				"enrollmentInfo": {"count": 120}
			}}
		]}`))
	}))
	defer server.Close()

	fetcher := NewClinicalTrialsFetcher(ClinicalTrialsConfig{BaseURL: server.URL, Timeout: 5 * time.Second})

	evidence, err := fetcher.Fetch(context.Background(), "metformin")
	require.NoError(t, err)
	require.Len(t, evidence.Trials, 1)

	trial := evidence.Trials[0]
	assert.Equal(t, "NCT01101438", trial.NCTID)
	assert.Equal(t, "Metformin in Ovarian Cancer", trial.Title)
	assert.Equal(t, "PHASE2", trial.Phase)
	assert.Equal(t, "Mayo Clinic", trial.Sponsor)
	require.NotNil(t, trial.EnrollmentCount)
	assert.Equal(t, 120, *trial.EnrollmentCount)
	require.NotNil(t, trial.StartDate)
	assert.Equal(t, 2010, trial.StartDate.Year())
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT01101438", trial.URL)
}

func TestClinicalTrialsFetcher_DropsRecordsMissingIDOrTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies": [
			{"protocolSection": {"identificationModule": {"nctId": "NCT00000001", "briefTitle": "Kept"}}},
			{"protocolSection": {"identificationModule": {"briefTitle": "No ID"}}},
			{"protocolSection": {"identificationModule": {"nctId": "NCT00000002"}}}
		]}`))
	}))
	defer server.Close()

	fetcher := NewClinicalTrialsFetcher(ClinicalTrialsConfig{BaseURL: server.URL, Timeout: 5 * time.Second})

	evidence, err := fetcher.Fetch(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, evidence.Trials, 1)
	assert.Equal(t, "NCT00000001", evidence.Trials[0].NCTID)
}

func TestClinicalTrialsFetcher_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	fetcher := NewClinicalTrialsFetcher(ClinicalTrialsConfig{BaseURL: server.URL, Timeout: 5 * time.Second})

	_, err := fetcher.Fetch(context.Background(), "anything")
	require.Error(t, err)
}
