package hubspot

import (
	"strconv"

	"mcf/model"
)

// Wire types mirror the shapes the HubSpot API returns. Only the
// fields this system reads are declared.

type Version struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

type Property struct {
	Value     string    `json:"value"`
	Timestamp int64     `json:"timestamp"`
	Versions  []Version `json:"versions"`
}

type Associations struct {
	AssociatedContactIds []int64 `json:"associatedVids"`
	AssociatedCompanyIds []int64 `json:"associatedCompanyIds"`
	AssociatedDealIds    []int64 `json:"associatedDealIds"`
}

type Contact struct {
	Vid        int64               `json:"vid"`
	Properties map[string]Property `json:"properties"`
}

type Deal struct {
	DealId       int64               `json:"dealId"`
	Properties   map[string]Property `json:"properties"`
	Associations Associations        `json:"associations"`
}

// Meeting is a meeting engagement with its associated contacts.
type Meeting struct {
	ID         int64   `json:"id"`
	CreatedAt  int64   `json:"createdAt"`
	ContactIds []int64 `json:"contactIds"`
}

type Stage struct {
	StageId     string  `json:"stageId"`
	Label       string  `json:"label"`
	Closed      bool    `json:"closed"`
	Probability float64 `json:"probability"`
}

type Pipeline struct {
	PipelineId string  `json:"pipelineId"`
	Label      string  `json:"label"`
	Stages     []Stage `json:"stages"`
}

// DealFacts is the digest of one deal the conversion locators work
// with: creation and close timing, amount and the dealstage history.
type DealFacts struct {
	DealID       string
	CreatedAt    int64
	CloseDate    int64
	Amount       float64
	Currency     string
	ContactIDs   []string
	StageHistory []Version
}

// ContactConversion is a contact with its first form-submission
// timestamp. The CRM maintains the field as first-ever by
// construction, so no secondary verification is needed.
type ContactConversion struct {
	ContactID           string
	FirstConversionDate int64
}

func formatId(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatIds(ids []int64) []string {
	formatted := make([]string, 0, len(ids))
	for i := range ids {
		if ids[i] > 0 {
			formatted = append(formatted, formatId(ids[i]))
		}
	}
	return formatted
}

// API is the surface of the CRM the analysis jobs consume. The
// production implementation is Client; tests substitute fakes.
type API interface {
	// GetContactSourceHistory returns the raw version history of the
	// tracked source attribute for one contact.
	GetContactSourceHistory(contactID string) ([]model.RawHistoryEntry, error)
	// ListAllContactIDs pages through every contact in the portal.
	ListAllContactIDs() ([]string, error)
	// ListContactsConvertedInRange returns contacts whose first form
	// submission falls inside [start, end] (epoch ms).
	ListContactsConvertedInRange(start, end int64) ([]ContactConversion, error)
	// ListMeetingsCreatedInRange returns meeting engagements created
	// inside [start, end].
	ListMeetingsCreatedInRange(start, end int64) ([]Meeting, error)
	// GetContactMeetings returns every meeting associated with the
	// contact, regardless of time.
	GetContactMeetings(contactID string) ([]Meeting, error)
	// ListDealsCreatedInRange returns deal digests for deals created
	// inside [start, end].
	ListDealsCreatedInRange(start, end int64) ([]DealFacts, error)
	// ListDealsClosedInRange returns deal digests for deals whose
	// closedate falls inside [start, end].
	ListDealsClosedInRange(start, end int64) ([]DealFacts, error)
	// GetContactDeals returns every deal associated with the contact.
	GetContactDeals(contactID string) ([]DealFacts, error)
	// GetPipelines returns the portal's deal pipelines with stage
	// metadata.
	GetPipelines() ([]Pipeline, error)
	// UpdateContactProperties writes properties back to a contact.
	UpdateContactProperties(contactID string, properties map[string]string) error
}
