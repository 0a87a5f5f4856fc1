package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxBodyBytes bounds how much of a homepage is read.
const maxBodyBytes = 2 << 20

// ErrNoContent means the page was fetched but held no visible text.
var ErrNoContent = errors.New("website has no text content")

// WebsiteFetcher returns the visible text of a domain's homepage.
type WebsiteFetcher interface {
	FetchText(ctx context.Context, domain string) (string, error)
}

// HTTPFetcher fetches homepages over HTTPS.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxChars  int
}

// NewHTTPFetcher creates a fetcher that keeps the first maxChars characters.
func NewHTTPFetcher(timeout time.Duration, userAgent string, maxChars int) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	return &HTTPFetcher{
		client:    &http.Client{Transport: transport, Timeout: timeout},
		userAgent: userAgent,
		maxChars:  maxChars,
	}
}

// FetchText implements WebsiteFetcher.
func (f *HTTPFetcher) FetchText(ctx context.Context, domain string) (string, error) {
	url := domain
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + domain
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid domain %q: %w", domain, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	text, err := ExtractText(io.LimitReader(resp.Body, maxBodyBytes), f.maxChars)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// skipped elements never contribute visible text
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
}

// ExtractText returns the whitespace-collapsed visible text of an HTML
// document, truncated to maxChars characters (0 means no limit).
func ExtractText(r io.Reader, maxChars int) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	depth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return truncateRunes(b.String(), maxChars), nil
			}
			return "", fmt.Errorf("parse html: %w", z.Err())

		case html.StartTagToken:
			name, _ := z.TagName()
			if skipped[atom.Lookup(name)] {
				depth++
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if skipped[atom.Lookup(name)] && depth > 0 {
				depth--
			}

		case html.TextToken:
			if depth > 0 {
				continue
			}
			for _, word := range strings.Fields(string(z.Text())) {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(word)
			}
			if maxChars > 0 && utf8.RuneCountInString(b.String()) >= maxChars {
				return truncateRunes(b.String(), maxChars), nil
			}
		}
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
