package hubspot

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultPipelineCacheTTL bounds how long pipeline metadata is served
// from cache. Pipelines change rarely; an hour is plenty.
const DefaultPipelineCacheTTL = time.Hour

// IsClosedWonStage - A stage is closed won when its metadata marks it
// closed and the win probability is exactly 1.0.
func IsClosedWonStage(stage *Stage) bool {
	return stage.Closed && stage.Probability == 1.0
}

// ResolveClosedWonStages returns the set of stage IDs that are
// semantically closed won across all deal pipelines.
func ResolveClosedWonStages(pipelines []Pipeline) map[string]bool {
	stageIDs := make(map[string]bool)
	for pi := range pipelines {
		for si := range pipelines[pi].Stages {
			if IsClosedWonStage(&pipelines[pi].Stages[si]) {
				stageIDs[pipelines[pi].Stages[si].StageId] = true
			}
		}
	}

	return stageIDs
}

// PipelineCache is a read-through TTL cache over pipeline metadata.
// The cached value and its fetch timestamp are explicit so staleness
// is observable; a stale entry is refreshed on the next read.
type PipelineCache struct {
	TTL time.Duration

	mutex           sync.Mutex
	closedWonStages map[string]bool
	fetchedAt       time.Time

	// now is swappable for tests.
	now func() time.Time
}

func NewPipelineCache(ttl time.Duration) *PipelineCache {
	if ttl <= 0 {
		ttl = DefaultPipelineCacheTTL
	}

	return &PipelineCache{TTL: ttl, now: time.Now}
}

// ClosedWonStages returns the cached closed-won stage set, fetching
// through api on a miss or a stale entry. Failing to resolve any
// closed-won stage at all is an error; deal-won analysis cannot run
// without it.
func (cache *PipelineCache) ClosedWonStages(api API) (map[string]bool, error) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if cache.closedWonStages != nil && cache.now().Sub(cache.fetchedAt) < cache.TTL {
		return cache.closedWonStages, nil
	}

	pipelines, err := api.GetPipelines()
	if err != nil {
		// keep serving a stale entry over failing the run.
		if cache.closedWonStages != nil {
			log.WithError(err).Warn("Failed to refresh pipeline metadata. Serving stale cache entry.")
			return cache.closedWonStages, nil
		}
		return nil, errors.Wrap(err, "failed to fetch pipeline metadata")
	}

	stageIDs := ResolveClosedWonStages(pipelines)
	if len(stageIDs) == 0 {
		return nil, errors.New("no closed won stage found in pipeline metadata")
	}

	cache.closedWonStages = stageIDs
	cache.fetchedAt = cache.now()
	return cache.closedWonStages, nil
}
