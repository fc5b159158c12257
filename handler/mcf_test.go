package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	C "mcf/config"
	IntHubspot "mcf/integration/hubspot"
	"mcf/model"
	"mcf/task/mcf"
)

// stubAPI answers with fixed data; enough for handler-level tests.
type stubAPI struct {
	conversions []IntHubspot.ContactConversion
}

func (s *stubAPI) GetContactSourceHistory(string) ([]model.RawHistoryEntry, error) {
	return []model.RawHistoryEntry{{Timestamp: 100, Value: "ORGANIC_SEARCH"}}, nil
}
func (s *stubAPI) ListAllContactIDs() ([]string, error) { return nil, nil }
func (s *stubAPI) ListContactsConvertedInRange(start, end int64) ([]IntHubspot.ContactConversion, error) {
	return s.conversions, nil
}
func (s *stubAPI) ListMeetingsCreatedInRange(int64, int64) ([]IntHubspot.Meeting, error) {
	return nil, nil
}
func (s *stubAPI) GetContactMeetings(string) ([]IntHubspot.Meeting, error) { return nil, nil }
func (s *stubAPI) ListDealsCreatedInRange(int64, int64) ([]IntHubspot.DealFacts, error) {
	return nil, nil
}
func (s *stubAPI) ListDealsClosedInRange(int64, int64) ([]IntHubspot.DealFacts, error) {
	return nil, nil
}
func (s *stubAPI) GetContactDeals(string) ([]IntHubspot.DealFacts, error) { return nil, nil }
func (s *stubAPI) GetPipelines() ([]IntHubspot.Pipeline, error)           { return nil, nil }
func (s *stubAPI) UpdateContactProperties(string, map[string]string) error {
	return nil
}

func newTestRouter(t *testing.T, api IntHubspot.API) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	_, err := C.Init()
	assert.NoError(t, err)

	runner := mcf.NewRunner(api, nil, mcf.RunnerConfig{})
	r := gin.New()
	InitRoutes(r, runner)
	return r
}

func TestMCFAnalyzeHandlerValidation(t *testing.T) {
	r := newTestRouter(t, &stubAPI{})

	// missing tenant.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcf/analyze", strings.NewReader(`{}`))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// invalid conversion type.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/mcf/analyze",
		strings.NewReader(`{"conversion_type":"page_view","start_date":"2023-01-01","end_date":"2023-01-31"}`))
	req.Header.Set("X-Tenant-Id", "tenant-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// malformed dates.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/mcf/analyze",
		strings.NewReader(`{"conversion_type":"form_submission","start_date":"first of june","end_date":"2023-01-31"}`))
	req.Header.Set("X-Tenant-Id", "tenant-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMCFAnalyzeAndReportFlow(t *testing.T) {
	api := &stubAPI{conversions: []IntHubspot.ContactConversion{
		{ContactID: "1", FirstConversionDate: time.Date(2023, 1, 10, 12, 0, 0, 0, time.UTC).UnixNano() / int64(time.Millisecond)},
	}}
	r := newTestRouter(t, api)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mcf/analyze",
		strings.NewReader(`{"conversion_type":"form_submission","start_date":"2023-01-01","end_date":"2023-01-31","threshold_pct":10}`))
	req.Header.Set("X-Tenant-Id", "tenant-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)

	// poll until the run completes.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet,
			"/status?kind=mcf_analysis&conversion_type=form_submission", nil)
		req.Header.Set("X-Tenant-Id", "tenant-1")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		var snapshot mcf.RunSnapshot
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
		if snapshot.Status == mcf.JobStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet,
		"/mcf/report?conversion_type=form_submission", nil)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var report model.MCFReport
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.TotalConversions)
	assert.Len(t, report.Paths, 1)
	assert.Equal(t, []string{"ORGANIC_SEARCH"}, report.Paths[0].Path)
}

func TestMCFReportHandlerNotFound(t *testing.T) {
	r := newTestRouter(t, &stubAPI{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/mcf/report?conversion_type=form_submission", nil)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobStatusHandlerValidation(t *testing.T) {
	r := newTestRouter(t, &stubAPI{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status?kind=bogus", nil)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
