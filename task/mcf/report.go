package mcf

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	IntHubspot "mcf/integration/hubspot"
	"mcf/model"
	U "mcf/util"
)

// buildMCFReport drives one full analysis: locate first-ever
// conversions, build the pre-conversion path per contact, aggregate
// and rank. Contacts inside a batch are processed concurrently; the
// batch boundary throttles pressure on the CRM API.
func buildMCFReport(api IntHubspot.API, pipelineCache *IntHubspot.PipelineCache,
	query MCFQuery, batchSize int, state *runState) (*model.MCFReport, error) {

	if !model.IsValidConversionType(query.ConversionType) {
		return nil, errors.Errorf("invalid conversion type %s", query.ConversionType)
	}
	if query.StartDate <= 0 || query.EndDate < query.StartDate {
		return nil, errors.New("invalid report date window")
	}

	locator, err := NewConversionLocator(query.ConversionType, api, pipelineCache)
	if err != nil {
		return nil, err
	}

	events, err := locator.Locate(query.StartDate, query.EndDate)
	if err != nil {
		return nil, err
	}

	eventByEntity := make(map[string]model.ConversionEvent, len(events))
	entityIDs := make([]string, 0, len(events))
	for i := range events {
		eventByEntity[events[i].EntityID] = events[i]
		entityIDs = append(entityIDs, events[i].EntityID)
	}

	bucket := make(model.PathBucket)
	var bucketLock sync.Mutex

	batches := U.GetStringListAsBatch(entityIDs, batchSize)
	for bi := range batches {
		var wg sync.WaitGroup
		for _, entityID := range batches[bi] {
			wg.Add(1)
			go func(entityID string) {
				defer wg.Done()
				defer state.incrProcessed()

				event := eventByEntity[entityID]
				raw, err := api.GetContactSourceHistory(entityID)
				if err != nil {
					// failures are isolated per entity, the run goes on.
					log.WithField("contact_id", entityID).WithError(err).Error(
						"Failed to get source history for contact. Skipping contact.")
					state.incrFailed()
					return
				}

				sequence := model.NormalizeHistory(raw, model.NormalizeForPath)
				path := model.BuildPath(sequence, event.Timestamp, query.LookbackDays)

				bucketLock.Lock()
				bucket.Add(path, event)
				bucketLock.Unlock()
				state.incrConverting()
			}(entityID)
		}
		wg.Wait()
	}

	summaries := bucket.Finalize()

	totalConversions := 0
	currencySet := make(map[string]bool)
	for i := range summaries {
		totalConversions += summaries[i].Conversions
		for _, currency := range summaries[i].Currencies {
			currencySet[currency] = true
		}
	}

	thresholdCount := model.ComputeThresholdCount(totalConversions, query.ThresholdPct)
	ranked := model.RankPaths(summaries, thresholdCount)

	currencies := make([]string, 0, len(currencySet))
	for currency := range currencySet {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	return &model.MCFReport{
		Paths:            ranked,
		TotalConversions: totalConversions,
		TotalContacts:    len(entityIDs),
		ThresholdPct:     query.ThresholdPct,
		ThresholdCount:   thresholdCount,
		ConversionType:   query.ConversionType,
		StartDate:        query.StartDate,
		EndDate:          query.EndDate,
		RefreshedAt:      U.TimeNowUnixMilli(),
		Currencies:       currencies,
		MixedCurrencies:  len(currencies) > 1,
	}, nil
}
