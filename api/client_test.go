package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscore-backtest/config"
)

func testClient(url string, retries int) *Client {
	return NewClient(config.ScorerConfig{
		APIURL:       url + "/",
		Timeout:      time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	}, nil)
}

func TestClientQualifyRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qualify", r.URL.Path)
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var req QualifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(QualifyResponse{Domain: req.Domain, Score: 0.72, Qualified: true, Confidence: "CONFIDENT"})
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL, 3).QualifyDomain(context.Background(), QualifyRequest{Domain: "acme.io"})
	require.NoError(t, err)
	assert.Equal(t, "acme.io", resp.Domain)
	assert.InDelta(t, 0.72, resp.Score, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"domain field required"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 3).QualifyDomain(context.Background(), QualifyRequest{})
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 2).QualifyText(context.Background(), TextRequest{Text: "x"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientPerAttemptTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		json.NewEncoder(w).Encode(QualifyResponse{Domain: "slow.io", Score: 0.4, Confidence: "LOW"})
	}))
	defer srv.Close()

	c := NewClient(config.ScorerConfig{APIURL: srv.URL, Timeout: 100 * time.Millisecond, MaxRetries: 1}, nil)
	resp, err := c.QualifyDomain(context.Background(), QualifyRequest{Domain: "slow.io"})
	require.NoError(t, err)
	assert.Equal(t, "slow.io", resp.Domain)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeFetcher{}, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	health, err := testClient(srv.URL, 0).Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.ModelLoaded)

	srv.Close()
	_, err = testClient(srv.URL, 0).Health(context.Background())
	assert.Error(t, err)
}

func TestClientAgainstServer(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{"acme.io": strongText}}
	s, _ := newTestServer(t, fetcher, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := testClient(srv.URL, 0).QualifyDomain(context.Background(), QualifyRequest{Domain: "acme.io"})
	require.NoError(t, err)
	assert.InDelta(t, 0.81, resp.Score, 1e-9)
	assert.True(t, resp.Qualified)
}
