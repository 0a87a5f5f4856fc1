package crm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Salesforce timestamps look like 2024-01-15T10:30:00.000+0000
var timestampLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
}

type rawContact struct {
	ID        string `json:"Id"`
	Name      string `json:"Name"`
	Email     string `json:"Email"`
	AccountID string `json:"AccountId"`
	Account   *struct {
		Name    string `json:"Name"`
		Website string `json:"Website"`
	} `json:"Account"`
	CreatedDate string `json:"CreatedDate"`
	LeadSource  string `json:"LeadSource"`
	Title       string `json:"Title"`
}

type rawOpportunity struct {
	ID        string   `json:"Id"`
	Name      string   `json:"Name"`
	StageName string   `json:"StageName"`
	Amount    *float64 `json:"Amount"`
	CloseDate string   `json:"CloseDate"`
	Owner     *struct {
		Name string `json:"Name"`
	} `json:"Owner"`
	CreatedDate string `json:"CreatedDate"`
	Description string `json:"Description"`
	NextStep    string `json:"NextStep"`
	LossReason  string `json:"Loss_Reason__c"`
	WinReason   string `json:"Win_Reason__c"`
	Type        string `json:"Type"`
	AccountID   string `json:"AccountId"`
}

// parseTimestamp returns the zero time for empty or unparseable values.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func decodeContacts(records []json.RawMessage) ([]Contact, error) {
	contacts := make([]Contact, 0, len(records))
	for i, rec := range records {
		var raw rawContact
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, fmt.Errorf("decode contact %d: %w", i, err)
		}
		c := Contact{
			ID:         raw.ID,
			Name:       strings.TrimSpace(raw.Name),
			Email:      strings.TrimSpace(raw.Email),
			AccountID:  raw.AccountID,
			CreatedAt:  parseTimestamp(raw.CreatedDate),
			LeadSource: raw.LeadSource,
			Title:      raw.Title,
		}
		if raw.Account != nil {
			c.AccountName = strings.TrimSpace(raw.Account.Name)
			c.Website = strings.TrimSpace(raw.Account.Website)
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func decodeOpportunities(records []json.RawMessage) ([]Opportunity, error) {
	opps := make([]Opportunity, 0, len(records))
	for i, rec := range records {
		var raw rawOpportunity
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, fmt.Errorf("decode opportunity %d: %w", i, err)
		}
		o := Opportunity{
			ID:          raw.ID,
			Name:        raw.Name,
			StageName:   strings.TrimSpace(raw.StageName),
			Amount:      raw.Amount,
			CloseDate:   raw.CloseDate,
			CreatedAt:   parseTimestamp(raw.CreatedDate),
			Description: raw.Description,
			NextStep:    raw.NextStep,
			WinReason:   raw.WinReason,
			LossReason:  raw.LossReason,
			Type:        raw.Type,
			AccountID:   raw.AccountID,
		}
		if raw.Owner != nil {
			o.OwnerName = raw.Owner.Name
		}
		opps = append(opps, o)
	}
	return opps, nil
}
