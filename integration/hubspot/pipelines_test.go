package hubspot

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"mcf/model"
)

type stubPipelineAPI struct {
	pipelines []Pipeline
	err       error
	calls     int
}

func (s *stubPipelineAPI) GetPipelines() ([]Pipeline, error) {
	s.calls++
	return s.pipelines, s.err
}

func (s *stubPipelineAPI) GetContactSourceHistory(string) ([]model.RawHistoryEntry, error) {
	return nil, nil
}
func (s *stubPipelineAPI) ListAllContactIDs() ([]string, error) { return nil, nil }
func (s *stubPipelineAPI) ListContactsConvertedInRange(int64, int64) ([]ContactConversion, error) {
	return nil, nil
}
func (s *stubPipelineAPI) ListMeetingsCreatedInRange(int64, int64) ([]Meeting, error) {
	return nil, nil
}
func (s *stubPipelineAPI) GetContactMeetings(string) ([]Meeting, error) { return nil, nil }
func (s *stubPipelineAPI) ListDealsCreatedInRange(int64, int64) ([]DealFacts, error) {
	return nil, nil
}
func (s *stubPipelineAPI) ListDealsClosedInRange(int64, int64) ([]DealFacts, error) {
	return nil, nil
}
func (s *stubPipelineAPI) GetContactDeals(string) ([]DealFacts, error) { return nil, nil }
func (s *stubPipelineAPI) UpdateContactProperties(string, map[string]string) error {
	return nil
}

func samplePipelines() []Pipeline {
	return []Pipeline{
		{
			PipelineId: "default",
			Stages: []Stage{
				{StageId: "appointment", Closed: false, Probability: 0.2},
				{StageId: "closedwon", Closed: true, Probability: 1.0},
				{StageId: "closedlost", Closed: true, Probability: 0},
			},
		},
		{
			PipelineId: "enterprise",
			Stages: []Stage{
				{StageId: "won_big", Closed: true, Probability: 1.0},
				// open stage with full probability is not closed won.
				{StageId: "verbal_yes", Closed: false, Probability: 1.0},
			},
		},
	}
}

func TestResolveClosedWonStages(t *testing.T) {
	stageIDs := ResolveClosedWonStages(samplePipelines())
	assert.Equal(t, map[string]bool{"closedwon": true, "won_big": true}, stageIDs)
}

func TestPipelineCacheReadThroughAndTTL(t *testing.T) {
	api := &stubPipelineAPI{pipelines: samplePipelines()}
	cache := NewPipelineCache(time.Hour)

	current := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return current }

	stageIDs, err := cache.ClosedWonStages(api)
	assert.NoError(t, err)
	assert.True(t, stageIDs["closedwon"])
	assert.Equal(t, 1, api.calls)

	// fresh entry is served from cache.
	_, err = cache.ClosedWonStages(api)
	assert.NoError(t, err)
	assert.Equal(t, 1, api.calls)

	// stale entry is fetched through again.
	current = current.Add(2 * time.Hour)
	_, err = cache.ClosedWonStages(api)
	assert.NoError(t, err)
	assert.Equal(t, 2, api.calls)
}

func TestPipelineCacheServesStaleOnRefreshFailure(t *testing.T) {
	api := &stubPipelineAPI{pipelines: samplePipelines()}
	cache := NewPipelineCache(time.Hour)

	current := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return current }

	_, err := cache.ClosedWonStages(api)
	assert.NoError(t, err)

	current = current.Add(2 * time.Hour)
	api.err = errors.New("rate limited")
	stageIDs, err := cache.ClosedWonStages(api)
	assert.NoError(t, err)
	assert.True(t, stageIDs["closedwon"])
}

func TestPipelineCacheErrors(t *testing.T) {
	// fetch failure with an empty cache is fatal for the run.
	api := &stubPipelineAPI{err: errors.New("unreachable")}
	cache := NewPipelineCache(time.Hour)
	_, err := cache.ClosedWonStages(api)
	assert.Error(t, err)

	// pipelines without any closed won stage are a run-level error.
	api = &stubPipelineAPI{pipelines: []Pipeline{{
		PipelineId: "default",
		Stages:     []Stage{{StageId: "open", Closed: false, Probability: 0.5}},
	}}}
	cache = NewPipelineCache(time.Hour)
	_, err = cache.ClosedWonStages(api)
	assert.Error(t, err)
}
