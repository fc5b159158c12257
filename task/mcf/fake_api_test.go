package mcf

import (
	"sync"

	"github.com/pkg/errors"

	IntHubspot "mcf/integration/hubspot"
	"mcf/model"
)

// fakeAPI is an in-memory CRM double. Per-contact errors simulate
// transient lookup failures; gate, when set, blocks history fetches
// until released so tests can observe an in-flight run.
type fakeAPI struct {
	mutex sync.Mutex

	historyByContact     map[string][]model.RawHistoryEntry
	historyErrByContact  map[string]error
	contactIDs           []string
	conversions          []IntHubspot.ContactConversion
	meetingsInRange      []IntHubspot.Meeting
	meetingsByContact    map[string][]IntHubspot.Meeting
	meetingsErrByContact map[string]error
	dealsCreatedInRange  []IntHubspot.DealFacts
	dealsClosedInRange   []IntHubspot.DealFacts
	dealsByContact       map[string][]IntHubspot.DealFacts
	dealsErrByContact    map[string]error
	pipelines            []IntHubspot.Pipeline
	pipelinesErr         error

	updatedProperties  map[string]map[string]string
	updateErrByContact map[string]error

	gate chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		historyByContact:     make(map[string][]model.RawHistoryEntry),
		historyErrByContact:  make(map[string]error),
		meetingsByContact:    make(map[string][]IntHubspot.Meeting),
		meetingsErrByContact: make(map[string]error),
		dealsByContact:       make(map[string][]IntHubspot.DealFacts),
		dealsErrByContact:    make(map[string]error),
		updatedProperties:    make(map[string]map[string]string),
		updateErrByContact:   make(map[string]error),
	}
}

func (f *fakeAPI) GetContactSourceHistory(contactID string) ([]model.RawHistoryEntry, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err, exists := f.historyErrByContact[contactID]; exists {
		return nil, err
	}
	return f.historyByContact[contactID], nil
}

func (f *fakeAPI) ListAllContactIDs() ([]string, error) {
	return f.contactIDs, nil
}

func (f *fakeAPI) ListContactsConvertedInRange(start, end int64) ([]IntHubspot.ContactConversion, error) {
	inRange := make([]IntHubspot.ContactConversion, 0, len(f.conversions))
	for i := range f.conversions {
		if f.conversions[i].FirstConversionDate >= start && f.conversions[i].FirstConversionDate <= end {
			inRange = append(inRange, f.conversions[i])
		}
	}
	return inRange, nil
}

func (f *fakeAPI) ListMeetingsCreatedInRange(start, end int64) ([]IntHubspot.Meeting, error) {
	return f.meetingsInRange, nil
}

func (f *fakeAPI) GetContactMeetings(contactID string) ([]IntHubspot.Meeting, error) {
	if err, exists := f.meetingsErrByContact[contactID]; exists {
		return nil, err
	}
	return f.meetingsByContact[contactID], nil
}

func (f *fakeAPI) ListDealsCreatedInRange(start, end int64) ([]IntHubspot.DealFacts, error) {
	return f.dealsCreatedInRange, nil
}

func (f *fakeAPI) ListDealsClosedInRange(start, end int64) ([]IntHubspot.DealFacts, error) {
	return f.dealsClosedInRange, nil
}

func (f *fakeAPI) GetContactDeals(contactID string) ([]IntHubspot.DealFacts, error) {
	if err, exists := f.dealsErrByContact[contactID]; exists {
		return nil, err
	}
	return f.dealsByContact[contactID], nil
}

func (f *fakeAPI) GetPipelines() ([]IntHubspot.Pipeline, error) {
	if f.pipelinesErr != nil {
		return nil, f.pipelinesErr
	}
	return f.pipelines, nil
}

func (f *fakeAPI) UpdateContactProperties(contactID string, properties map[string]string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if err, exists := f.updateErrByContact[contactID]; exists {
		return err
	}
	f.updatedProperties[contactID] = properties
	return nil
}

func (f *fakeAPI) updatedProperty(contactID, property string) (string, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	properties, exists := f.updatedProperties[contactID]
	if !exists {
		return "", false
	}
	value, exists := properties[property]
	return value, exists
}

var errTransient = errors.New("simulated transient failure")
