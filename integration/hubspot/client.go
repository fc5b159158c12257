package hubspot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mcf/model"
	U "mcf/util"
)

const (
	defaultBaseURL   = "https://api.hubapi.com"
	defaultPageSize  = 100
	engagementsLimit = 250

	// source attribute whose version history drives paths and scores.
	propertySource              = "hs_analytics_source"
	propertyFirstConversionDate = "first_conversion_date"
	propertyCreateDate          = "createdate"
	propertyCloseDate           = "closedate"
	propertyAmount              = "amount"
	propertyDealCurrency        = "deal_currency_code"
	propertyDealStage           = "dealstage"

	engagementTypeMeeting = "MEETING"
)

// Client is the HTTP implementation of API. Transient failures
// (rate limits, server errors) are retried with exponential backoff
// up to MaxRetries; other failures propagate for the one entity the
// call was serving.
type Client struct {
	BaseURL    string
	Token      string
	MaxRetries int
	HTTPClient *http.Client

	// base delay of the exponential backoff, shortened in tests.
	retryBackoff time.Duration
}

func NewClient(baseURL, token string, maxRetries int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		BaseURL:      baseURL,
		Token:        token,
		MaxRetries:   maxRetries,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		retryBackoff: time.Second,
	}
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func (c *Client) do(method, path string, params url.Values, body []byte, out interface{}) error {
	requestURL := c.BaseURL + path
	if params != nil {
		requestURL = requestURL + "?" + params.Encode()
	}

	var lastErr error
	backoff := c.retryBackoff
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff = backoff * 2
		}

		var requestBody io.Reader
		if body != nil {
			requestBody = bytes.NewReader(body)
		}

		req, err := http.NewRequest(method, requestURL, requestBody)
		if err != nil {
			return errors.Wrap(err, "failed to build hubspot request")
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = errors.Wrap(err, "hubspot request failed")
			continue
		}

		if isRetryableStatus(resp.StatusCode) {
			resp.Body.Close()
			lastErr = errors.Errorf("hubspot responded with status %d", resp.StatusCode)
			log.WithFields(log.Fields{"path": path, "status": resp.StatusCode,
				"attempt": attempt}).Warn("Retrying hubspot request after transient status.")
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return errors.Errorf("hubspot responded with status %d for %s", resp.StatusCode, path)
		}

		if out != nil {
			err = json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return errors.Wrap(err, "failed to decode hubspot response")
			}
		} else {
			resp.Body.Close()
		}

		return nil
	}

	return errors.Wrapf(lastErr, "hubspot request exhausted %d retries", c.MaxRetries)
}

type contactsPage struct {
	Contacts  []Contact `json:"contacts"`
	HasMore   bool      `json:"has-more"`
	VidOffset int64     `json:"vid-offset"`
}

func (c *Client) listContacts(properties []string, withHistory bool) ([]Contact, error) {
	contacts := make([]Contact, 0, 0)
	vidOffset := int64(0)
	for {
		params := url.Values{}
		params.Set("count", strconv.Itoa(defaultPageSize))
		if vidOffset > 0 {
			params.Set("vidOffset", strconv.FormatInt(vidOffset, 10))
		}
		for i := range properties {
			params.Add("property", properties[i])
		}
		if withHistory {
			params.Set("propertyMode", "value_and_history")
		}

		var page contactsPage
		if err := c.do(http.MethodGet, "/contacts/v1/lists/all/contacts/all", params, nil, &page); err != nil {
			return nil, err
		}

		contacts = append(contacts, page.Contacts...)
		if !page.HasMore {
			break
		}
		vidOffset = page.VidOffset
	}

	return contacts, nil
}

func (c *Client) ListAllContactIDs() ([]string, error) {
	contacts, err := c.listContacts(nil, false)
	if err != nil {
		return nil, err
	}

	contactIDs := make([]string, 0, len(contacts))
	for i := range contacts {
		contactIDs = append(contactIDs, formatId(contacts[i].Vid))
	}

	return contactIDs, nil
}

func (c *Client) GetContactSourceHistory(contactID string) ([]model.RawHistoryEntry, error) {
	params := url.Values{}
	params.Set("propertyMode", "value_and_history")
	params.Set("property", propertySource)

	var contact Contact
	path := fmt.Sprintf("/contacts/v1/contact/vid/%s/profile", contactID)
	if err := c.do(http.MethodGet, path, params, nil, &contact); err != nil {
		return nil, err
	}

	property, exists := contact.Properties[propertySource]
	if !exists {
		return nil, nil
	}

	entries := make([]model.RawHistoryEntry, 0, len(property.Versions))
	for i := range property.Versions {
		entries = append(entries, model.RawHistoryEntry{
			Timestamp: property.Versions[i].Timestamp,
			Value:     property.Versions[i].Value,
		})
	}

	return entries, nil
}

func (c *Client) ListContactsConvertedInRange(start, end int64) ([]ContactConversion, error) {
	contacts, err := c.listContacts([]string{propertyFirstConversionDate}, false)
	if err != nil {
		return nil, err
	}

	conversions := make([]ContactConversion, 0, 0)
	for i := range contacts {
		property, exists := contacts[i].Properties[propertyFirstConversionDate]
		if !exists || property.Value == "" {
			continue
		}

		timestamp := U.GetPropertyValueAsInt64(property.Value)
		if timestamp < start || timestamp > end {
			continue
		}

		conversions = append(conversions, ContactConversion{
			ContactID:           formatId(contacts[i].Vid),
			FirstConversionDate: timestamp,
		})
	}

	return conversions, nil
}

type engagementRecord struct {
	Engagement struct {
		ID        int64  `json:"id"`
		Type      string `json:"type"`
		CreatedAt int64  `json:"createdAt"`
	} `json:"engagement"`
	Associations struct {
		ContactIds []int64 `json:"contactIds"`
	} `json:"associations"`
}

type engagementsPage struct {
	Results []engagementRecord `json:"results"`
	HasMore bool               `json:"hasMore"`
	Offset  int64              `json:"offset"`
}

func (c *Client) listEngagements(path string) ([]Meeting, error) {
	meetings := make([]Meeting, 0, 0)
	offset := int64(0)
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(engagementsLimit))
		if offset > 0 {
			params.Set("offset", strconv.FormatInt(offset, 10))
		}

		var page engagementsPage
		if err := c.do(http.MethodGet, path, params, nil, &page); err != nil {
			return nil, err
		}

		for i := range page.Results {
			if page.Results[i].Engagement.Type != engagementTypeMeeting {
				continue
			}
			meetings = append(meetings, Meeting{
				ID:         page.Results[i].Engagement.ID,
				CreatedAt:  page.Results[i].Engagement.CreatedAt,
				ContactIds: page.Results[i].Associations.ContactIds,
			})
		}

		if !page.HasMore {
			break
		}
		offset = page.Offset
	}

	return meetings, nil
}

func (c *Client) ListMeetingsCreatedInRange(start, end int64) ([]Meeting, error) {
	meetings, err := c.listEngagements("/engagements/v1/engagements/paged")
	if err != nil {
		return nil, err
	}

	inRange := make([]Meeting, 0, len(meetings))
	for i := range meetings {
		if meetings[i].CreatedAt >= start && meetings[i].CreatedAt <= end {
			inRange = append(inRange, meetings[i])
		}
	}

	return inRange, nil
}

func (c *Client) GetContactMeetings(contactID string) ([]Meeting, error) {
	path := fmt.Sprintf("/engagements/v1/engagements/associated/contact/%s/paged", contactID)
	return c.listEngagements(path)
}

type dealsPage struct {
	Deals   []Deal `json:"deals"`
	HasMore bool   `json:"hasMore"`
	Offset  int64  `json:"offset"`
}

func dealToFacts(deal *Deal) DealFacts {
	facts := DealFacts{
		DealID:     formatId(deal.DealId),
		ContactIDs: formatIds(deal.Associations.AssociatedContactIds),
	}

	if property, exists := deal.Properties[propertyCreateDate]; exists {
		facts.CreatedAt = U.GetPropertyValueAsInt64(property.Value)
	}
	if property, exists := deal.Properties[propertyCloseDate]; exists {
		facts.CloseDate = U.GetPropertyValueAsInt64(property.Value)
	}
	if property, exists := deal.Properties[propertyAmount]; exists {
		amount, err := strconv.ParseFloat(property.Value, 64)
		if err == nil {
			facts.Amount = amount
		}
	}
	if property, exists := deal.Properties[propertyDealCurrency]; exists {
		facts.Currency = property.Value
	}
	if property, exists := deal.Properties[propertyDealStage]; exists {
		facts.StageHistory = property.Versions
	}

	return facts
}

func (c *Client) listDeals() ([]DealFacts, error) {
	deals := make([]DealFacts, 0, 0)
	offset := int64(0)
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(defaultPageSize))
		if offset > 0 {
			params.Set("offset", strconv.FormatInt(offset, 10))
		}
		for _, property := range []string{propertyCreateDate, propertyCloseDate,
			propertyAmount, propertyDealCurrency} {
			params.Add("properties", property)
		}
		params.Add("propertiesWithHistory", propertyDealStage)
		params.Set("includeAssociations", "true")

		var page dealsPage
		if err := c.do(http.MethodGet, "/deals/v1/deal/paged", params, nil, &page); err != nil {
			return nil, err
		}

		for i := range page.Deals {
			deals = append(deals, dealToFacts(&page.Deals[i]))
		}

		if !page.HasMore {
			break
		}
		offset = page.Offset
	}

	return deals, nil
}

func (c *Client) ListDealsCreatedInRange(start, end int64) ([]DealFacts, error) {
	deals, err := c.listDeals()
	if err != nil {
		return nil, err
	}

	inRange := make([]DealFacts, 0, len(deals))
	for i := range deals {
		if deals[i].CreatedAt >= start && deals[i].CreatedAt <= end {
			inRange = append(inRange, deals[i])
		}
	}

	return inRange, nil
}

func (c *Client) ListDealsClosedInRange(start, end int64) ([]DealFacts, error) {
	deals, err := c.listDeals()
	if err != nil {
		return nil, err
	}

	inRange := make([]DealFacts, 0, len(deals))
	for i := range deals {
		if deals[i].CloseDate >= start && deals[i].CloseDate <= end {
			inRange = append(inRange, deals[i])
		}
	}

	return inRange, nil
}

type associationsPage struct {
	Results []int64 `json:"results"`
	HasMore bool    `json:"hasMore"`
	Offset  int64   `json:"offset"`
}

func (c *Client) GetContactDeals(contactID string) ([]DealFacts, error) {
	// association definition 4 is contact to deal.
	path := fmt.Sprintf("/crm-associations/v1/associations/%s/HUBSPOT_DEFINED/4", contactID)

	dealIDs := make([]int64, 0, 0)
	offset := int64(0)
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(defaultPageSize))
		if offset > 0 {
			params.Set("offset", strconv.FormatInt(offset, 10))
		}

		var page associationsPage
		if err := c.do(http.MethodGet, path, params, nil, &page); err != nil {
			return nil, err
		}

		dealIDs = append(dealIDs, page.Results...)
		if !page.HasMore {
			break
		}
		offset = page.Offset
	}

	deals := make([]DealFacts, 0, len(dealIDs))
	for i := range dealIDs {
		params := url.Values{}
		params.Add("propertiesWithHistory", propertyDealStage)
		for _, property := range []string{propertyCreateDate, propertyCloseDate,
			propertyAmount, propertyDealCurrency} {
			params.Add("properties", property)
		}

		var deal Deal
		dealPath := fmt.Sprintf("/deals/v1/deal/%d", dealIDs[i])
		if err := c.do(http.MethodGet, dealPath, params, nil, &deal); err != nil {
			return nil, err
		}
		deals = append(deals, dealToFacts(&deal))
	}

	return deals, nil
}

type pipelinesResponse struct {
	Results []Pipeline `json:"results"`
}

func (c *Client) GetPipelines() ([]Pipeline, error) {
	var response pipelinesResponse
	if err := c.do(http.MethodGet, "/crm-pipelines/v1/pipelines/deals", nil, nil, &response); err != nil {
		return nil, err
	}

	return response.Results, nil
}

type propertyUpdate struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

type propertyUpdatePayload struct {
	Properties []propertyUpdate `json:"properties"`
}

func (c *Client) UpdateContactProperties(contactID string, properties map[string]string) error {
	payload := propertyUpdatePayload{}
	for property, value := range properties {
		payload.Properties = append(payload.Properties,
			propertyUpdate{Property: property, Value: value})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal contact property update")
	}

	path := fmt.Sprintf("/contacts/v1/contact/vid/%s/profile", contactID)
	return c.do(http.MethodPost, path, nil, body, nil)
}
