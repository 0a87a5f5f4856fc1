package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html><head><title>Acme Voice</title>
<style>body { color: red }</style>
<script>var tracking = "enterprise";</script>
</head>
<body>
  <nav>Home   |  Pricing</nav>
  <h1>Voice   AI for
      contact centers</h1>
  <noscript>Please enable JavaScript</noscript>
  <p>Trusted by Fortune 500 teams &amp; startups.</p>
</body></html>`

func TestExtractText(t *testing.T) {
	text, err := ExtractText(strings.NewReader(samplePage), 0)
	require.NoError(t, err)
	assert.Equal(t, "Acme Voice Home | Pricing Voice AI for contact centers Trusted by Fortune 500 teams & startups.", text)
	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color")
	assert.NotContains(t, text, "JavaScript")
}

func TestExtractTextTruncates(t *testing.T) {
	text, err := ExtractText(strings.NewReader("<p>"+strings.Repeat("héllo ", 1000)+"</p>"), 3000)
	require.NoError(t, err)
	assert.Equal(t, 3000, len([]rune(text)))

	text, err = ExtractText(strings.NewReader("<p>short</p>"), 3000)
	require.NoError(t, err)
	assert.Equal(t, "short", text)
}

func TestHTTPFetcher(t *testing.T) {
	var gotUA string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		fmt.Fprint(w, samplePage)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><script>x()</script></html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, "TestBot/1.0", 20)

	text, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Voice Home | Pr", text)
	assert.Equal(t, "TestBot/1.0", gotUA)

	_, err = f.FetchText(context.Background(), srv.URL+"/empty")
	assert.True(t, errors.Is(err, ErrNoContent))

	_, err = f.FetchText(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
