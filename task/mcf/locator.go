package mcf

import (
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	IntHubspot "mcf/integration/hubspot"
	"mcf/model"
)

// ConversionLocator finds first-ever conversions of one kind inside
// [start, end] (epoch ms). Per-entity lookup failures are logged and
// that entity is skipped; only run-level failures (e.g. unresolvable
// pipeline metadata) are returned as errors.
type ConversionLocator interface {
	Locate(start, end int64) ([]model.ConversionEvent, error)
}

// NewConversionLocator dispatches on the conversion type enum.
func NewConversionLocator(conversionType string, api IntHubspot.API,
	pipelineCache *IntHubspot.PipelineCache) (ConversionLocator, error) {

	switch conversionType {
	case model.ConversionTypeFormSubmission:
		return &formSubmissionLocator{api: api}, nil
	case model.ConversionTypeMeetingBooked:
		return &meetingLocator{api: api}, nil
	case model.ConversionTypeDealCreated:
		return &dealCreatedLocator{api: api}, nil
	case model.ConversionTypeDealWon:
		return &dealWonLocator{api: api, pipelineCache: pipelineCache}, nil
	}

	return nil, errors.Errorf("invalid conversion type %s", conversionType)
}

// formSubmissionLocator trusts the CRM's first_conversion_date field,
// which is first-ever by construction.
type formSubmissionLocator struct {
	api IntHubspot.API
}

func (l *formSubmissionLocator) Locate(start, end int64) ([]model.ConversionEvent, error) {
	conversions, err := l.api.ListContactsConvertedInRange(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list converted contacts")
	}

	events := make([]model.ConversionEvent, 0, len(conversions))
	for i := range conversions {
		events = append(events, model.ConversionEvent{
			EntityID:  conversions[i].ContactID,
			Timestamp: conversions[i].FirstConversionDate,
		})
	}

	return model.DedupeEarliestPerEntity(events), nil
}

// meetingLocator finds contacts whose first-ever meeting was booked
// inside the window. Phase one collects in-window meetings; phase two
// re-fetches each candidate contact's full meeting list to rule out
// an earlier meeting before the window start.
type meetingLocator struct {
	api IntHubspot.API
}

func (l *meetingLocator) Locate(start, end int64) ([]model.ConversionEvent, error) {
	meetings, err := l.api.ListMeetingsCreatedInRange(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list meetings in range")
	}

	candidates := make([]model.ConversionEvent, 0, len(meetings))
	for i := range meetings {
		for _, contactID := range formatContactIds(meetings[i].ContactIds) {
			candidates = append(candidates, model.ConversionEvent{
				EntityID:  contactID,
				Timestamp: meetings[i].CreatedAt,
			})
		}
	}
	candidates = model.DedupeEarliestPerEntity(candidates)

	events := make([]model.ConversionEvent, 0, len(candidates))
	for i := range candidates {
		logCtx := log.WithField("contact_id", candidates[i].EntityID)

		allMeetings, err := l.api.GetContactMeetings(candidates[i].EntityID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to verify first meeting for contact. Skipping contact.")
			continue
		}

		if hasMeetingBefore(allMeetings, start) {
			continue
		}
		events = append(events, candidates[i])
	}

	return events, nil
}

func hasMeetingBefore(meetings []IntHubspot.Meeting, start int64) bool {
	for i := range meetings {
		if meetings[i].CreatedAt > 0 && meetings[i].CreatedAt < start {
			return true
		}
	}
	return false
}

// dealCreatedLocator finds contacts whose first-ever deal was created
// inside the window, verified against the contact's full deal list.
type dealCreatedLocator struct {
	api IntHubspot.API
}

func (l *dealCreatedLocator) Locate(start, end int64) ([]model.ConversionEvent, error) {
	deals, err := l.api.ListDealsCreatedInRange(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list deals in range")
	}

	candidates := make([]model.ConversionEvent, 0, len(deals))
	for i := range deals {
		for _, contactID := range deals[i].ContactIDs {
			candidates = append(candidates, model.ConversionEvent{
				EntityID:  contactID,
				Timestamp: deals[i].CreatedAt,
				Value:     deals[i].Amount,
				Currency:  deals[i].Currency,
			})
		}
	}
	candidates = model.DedupeEarliestPerEntity(candidates)

	events := make([]model.ConversionEvent, 0, len(candidates))
	for i := range candidates {
		logCtx := log.WithField("contact_id", candidates[i].EntityID)

		allDeals, err := l.api.GetContactDeals(candidates[i].EntityID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to verify first deal for contact. Skipping contact.")
			continue
		}

		earlier := false
		for di := range allDeals {
			if allDeals[di].CreatedAt > 0 && allDeals[di].CreatedAt < start {
				earlier = true
				break
			}
		}
		if earlier {
			continue
		}

		events = append(events, candidates[i])
	}

	return events, nil
}

// dealWonLocator finds contacts whose first-ever closed-won deal
// happened inside the window. The won instant is the earliest stage
// history entry into a closed-won stage; deals without stage history
// fall back to closedate and are flagged approximate.
type dealWonLocator struct {
	api           IntHubspot.API
	pipelineCache *IntHubspot.PipelineCache
}

// wonTimestamp returns when the deal first entered a closed-won
// stage, 0 if it never did.
func wonTimestamp(deal *IntHubspot.DealFacts, closedWonStages map[string]bool) (int64, bool) {
	earliest := int64(0)
	for i := range deal.StageHistory {
		if !closedWonStages[deal.StageHistory[i].Value] {
			continue
		}
		if earliest == 0 || deal.StageHistory[i].Timestamp < earliest {
			earliest = deal.StageHistory[i].Timestamp
		}
	}
	if earliest > 0 {
		return earliest, false
	}

	// stage history unavailable. closedate is less precise, flag it.
	if len(deal.StageHistory) == 0 && deal.CloseDate > 0 {
		return deal.CloseDate, true
	}

	return 0, false
}

func (l *dealWonLocator) Locate(start, end int64) ([]model.ConversionEvent, error) {
	closedWonStages, err := l.pipelineCache.ClosedWonStages(l.api)
	if err != nil {
		// run-level fatal: without stage resolution the conversion
		// kind cannot be computed at all.
		return nil, errors.Wrap(err, "failed to resolve closed won stages")
	}

	deals, err := l.api.ListDealsClosedInRange(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list closed deals in range")
	}

	candidates := make([]model.ConversionEvent, 0, len(deals))
	for i := range deals {
		timestamp, approximate := wonTimestamp(&deals[i], closedWonStages)
		if timestamp < start || timestamp > end {
			continue
		}

		for _, contactID := range deals[i].ContactIDs {
			candidates = append(candidates, model.ConversionEvent{
				EntityID:    contactID,
				Timestamp:   timestamp,
				Value:       deals[i].Amount,
				Currency:    deals[i].Currency,
				Approximate: approximate,
			})
		}
	}
	candidates = model.DedupeEarliestPerEntity(candidates)

	events := make([]model.ConversionEvent, 0, len(candidates))
	for i := range candidates {
		logCtx := log.WithField("contact_id", candidates[i].EntityID)

		allDeals, err := l.api.GetContactDeals(candidates[i].EntityID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to verify first won deal for contact. Skipping contact.")
			continue
		}

		earlier := false
		for di := range allDeals {
			timestamp, _ := wonTimestamp(&allDeals[di], closedWonStages)
			if timestamp > 0 && timestamp < start {
				earlier = true
				break
			}
		}
		if earlier {
			continue
		}

		events = append(events, candidates[i])
	}

	return events, nil
}

func formatContactIds(ids []int64) []string {
	formatted := make([]string, 0, len(ids))
	for i := range ids {
		if ids[i] > 0 {
			formatted = append(formatted, strconv.FormatInt(ids[i], 10))
		}
	}
	return formatted
}
