package model

const (
	ConversionTypeFormSubmission = "form_submission"
	ConversionTypeMeetingBooked  = "meeting_booked"
	ConversionTypeDealCreated    = "deal_created"
	ConversionTypeDealWon        = "deal_won"
)

func IsValidConversionType(conversionType string) bool {
	switch conversionType {
	case ConversionTypeFormSubmission, ConversionTypeMeetingBooked,
		ConversionTypeDealCreated, ConversionTypeDealWon:
		return true
	}
	return false
}

// ConversionEvent is the first qualifying conversion of one entity
// within a report window. At most one event per entity survives to
// aggregation; the earliest wins.
type ConversionEvent struct {
	EntityID  string  `json:"entity_id"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
	Currency  string  `json:"currency"`
	// Approximate marks an event timed by the deal closedate fallback
	// instead of stage history.
	Approximate bool `json:"approximate,omitempty"`
}

// DedupeEarliestPerEntity keeps only the earliest event per entity.
// Input order does not matter and is not preserved for duplicates.
func DedupeEarliestPerEntity(events []ConversionEvent) []ConversionEvent {
	earliest := make(map[string]ConversionEvent, len(events))
	order := make([]string, 0, len(events))
	for i := range events {
		existing, exists := earliest[events[i].EntityID]
		if !exists {
			earliest[events[i].EntityID] = events[i]
			order = append(order, events[i].EntityID)
			continue
		}
		if events[i].Timestamp < existing.Timestamp {
			earliest[events[i].EntityID] = events[i]
		}
	}

	deduped := make([]ConversionEvent, 0, len(earliest))
	for _, entityID := range order {
		deduped = append(deduped, earliest[entityID])
	}

	return deduped
}
