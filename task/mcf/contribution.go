package mcf

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	IntHubspot "mcf/integration/hubspot"
	"mcf/model"
	U "mcf/util"
)

// runContributionBatch scores every contact's attribute history
// against the marketing source set and writes the percent back to the
// CRM. Absence of history is a valid business state, counted as
// skipped, not failed.
func runContributionBatch(api IntHubspot.API, marketingSources []string, policy string,
	contributionProperty string, batchSize int, state *runState) error {

	marketingSet := model.BuildMarketingSet(marketingSources)
	if len(marketingSet) == 0 {
		return errors.New("empty marketing source set")
	}

	contactIDs, err := api.ListAllContactIDs()
	if err != nil {
		return errors.Wrap(err, "failed to list contacts")
	}

	batches := U.GetStringListAsBatch(contactIDs, batchSize)
	for bi := range batches {
		var wg sync.WaitGroup
		for _, contactID := range batches[bi] {
			wg.Add(1)
			go func(contactID string) {
				defer wg.Done()
				defer state.incrProcessed()

				logCtx := log.WithField("contact_id", contactID)

				raw, err := api.GetContactSourceHistory(contactID)
				if err != nil {
					logCtx.WithError(err).Error(
						"Failed to get source history for contact. Skipping contact.")
					state.incrFailed()
					return
				}

				sequence := model.NormalizeHistory(raw, model.NormalizeForContribution)
				score := model.ScoreContribution(sequence, marketingSet, policy)
				if score.TotalCount == 0 {
					state.incrSkippedNoHistory()
					return
				}

				err = api.UpdateContactProperties(contactID, map[string]string{
					contributionProperty: strconv.FormatFloat(score.Percent, 'f', -1, 64),
				})
				if err != nil {
					logCtx.WithError(err).Error(
						"Failed to update contribution percent on contact.")
					state.incrFailed()
					return
				}

				state.incrUpdated()
			}(contactID)
		}
		wg.Wait()
	}

	return nil
}
