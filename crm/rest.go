package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RESTTransport queries the Salesforce REST API with a bearer token and
// follows nextRecordsUrl until the result is complete.
type RESTTransport struct {
	instanceURL string
	token       string
	version     string
	client      *http.Client
}

// NewRESTTransport creates a REST transport.
func NewRESTTransport(instanceURL, token, version string, timeout time.Duration) *RESTTransport {
	if version == "" {
		version = "v59.0"
	}
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	return &RESTTransport{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		token:       token,
		version:     version,
		client:      &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Name implements Transport.
func (t *RESTTransport) Name() string {
	return "rest"
}

// Query implements Transport.
func (t *RESTTransport) Query(ctx context.Context, soql string) ([]json.RawMessage, error) {
	next := fmt.Sprintf("/services/data/%s/query?q=%s", t.version, url.QueryEscape(soql))

	var records []json.RawMessage
	for next != "" {
		var page queryResult
		if err := t.get(ctx, next, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Done {
			break
		}
		next = page.NextRecordsURL
	}
	return records, nil
}

// Ping implements Transport.
func (t *RESTTransport) Ping(ctx context.Context) error {
	return t.get(ctx, fmt.Sprintf("/services/data/%s/limits", t.version), nil)
}

func (t *RESTTransport) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.instanceURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
			return err
		}
		return transient(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrUnauthenticated, apiErr)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return transient(apiErr)
		default:
			return apiErr
		}
	}

	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
