// Package crm reads contacts and opportunities from Salesforce.
//
// Two transports are available: the sf CLI (sf data query --json) and the
// REST query API. Both are wrapped by Client, which owns retries so callers
// never loop on transient failures themselves.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"leadscore-backtest/config"
	"leadscore-backtest/logger"
)

var (
	// ErrUnauthenticated means the CRM session is missing or expired
	ErrUnauthenticated = errors.New("crm: not authenticated")
	// ErrInvalidID means an id could not be used safely in a query
	ErrInvalidID = errors.New("crm: invalid record id")
)

// Contact is a CRM person record
type Contact struct {
	ID          string
	Name        string
	Email       string
	AccountID   string
	AccountName string
	Website     string
	CreatedAt   time.Time
	LeadSource  string
	Title       string
}

// Opportunity is a CRM deal record
type Opportunity struct {
	ID          string
	Name        string
	StageName   string
	Amount      *float64
	CloseDate   string
	OwnerName   string
	CreatedAt   time.Time
	Description string
	NextStep    string
	WinReason   string
	LossReason  string
	Type        string
	AccountID   string
}

// Transport runs a SOQL query and returns the raw records.
type Transport interface {
	Query(ctx context.Context, soql string) ([]json.RawMessage, error)
	Ping(ctx context.Context) error
	Name() string
}

// Client reads contacts and opportunities through a Transport with retries.
type Client struct {
	transport Transport
	retry     retryPolicy
	log       *zap.Logger
}

// NewClient wraps a transport with the configured retry policy.
func NewClient(transport Transport, maxRetries int, backoff time.Duration, log *zap.Logger) *Client {
	log = logger.OrNop(log).Named("crm")
	return &Client{
		transport: transport,
		retry:     retryPolicy{retries: maxRetries, backoff: backoff, log: log},
		log:       log,
	}
}

// New builds a Client for the configured mode ("cli" or "rest").
func New(cfg config.CRMConfig, log *zap.Logger) (*Client, error) {
	var transport Transport
	switch cfg.Mode {
	case "cli", "":
		transport = NewCLITransport(cfg.SFBinary, cfg.TargetOrg, cfg.Timeout, ExecRunner{})
	case "rest":
		transport = NewRESTTransport(cfg.InstanceURL, cfg.AccessToken, cfg.APIVersion, cfg.Timeout)
	default:
		return nil, fmt.Errorf("crm: unsupported mode %q", cfg.Mode)
	}
	return NewClient(transport, cfg.MaxRetries, cfg.RetryBackoff, log), nil
}

// ContactsSince returns contacts with an email created in [since, until],
// newest first, at most limit (0 means no limit).
func (c *Client) ContactsSince(ctx context.Context, since, until time.Time, limit int) ([]Contact, error) {
	soql := ContactsQuery(since, until, limit)

	var records []json.RawMessage
	err := c.retry.do(ctx, "ContactsSince", func(ctx context.Context) error {
		var err error
		records, err = c.transport.Query(ctx, soql)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ContactsSince: %w", err)
	}

	contacts, err := decodeContacts(records)
	if err != nil {
		return nil, fmt.Errorf("ContactsSince: %w", err)
	}
	c.log.Debug("contacts fetched", zap.Int("count", len(contacts)), zap.String("transport", c.transport.Name()))
	return contacts, nil
}

// Opportunities returns the opportunities of an account created since the
// given time, newest first.
func (c *Client) Opportunities(ctx context.Context, accountID string, since time.Time) ([]Opportunity, error) {
	soql, err := OpportunitiesQuery(accountID, since)
	if err != nil {
		return nil, fmt.Errorf("Opportunities: %w", err)
	}

	var records []json.RawMessage
	err = c.retry.do(ctx, "Opportunities", func(ctx context.Context) error {
		var err error
		records, err = c.transport.Query(ctx, soql)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("Opportunities: %w", err)
	}

	opps, err := decodeOpportunities(records)
	if err != nil {
		return nil, fmt.Errorf("Opportunities: %w", err)
	}
	return opps, nil
}

// Ping verifies the CRM is reachable and the session is valid.
func (c *Client) Ping(ctx context.Context) error {
	err := c.retry.do(ctx, "Ping", c.transport.Ping)
	if err != nil {
		return fmt.Errorf("crm %s: %w", c.transport.Name(), err)
	}
	return nil
}
