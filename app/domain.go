package app

import (
	"strings"

	"leadscore-backtest/crm"
)

// consumerMailDomains are never scored; they say nothing about the company.
var consumerMailDomains = map[string]bool{
	"gmail.com":   true,
	"outlook.com": true,
	"hotmail.com": true,
	"yahoo.com":   true,
}

// ResolveDomain picks the domain to score for a contact: the account website
// unless it is a bare www address, else the email domain unless it belongs to
// a consumer mail provider. ok is false when neither is usable.
func ResolveDomain(c crm.Contact) (domain string, ok bool) {
	if d := websiteDomain(c.Website); d != "" && !strings.HasPrefix(d, "www.") {
		return d, true
	}
	if d := emailDomain(c.Email); d != "" && !consumerMailDomains[d] {
		return d, true
	}
	return "", false
}

func websiteDomain(website string) string {
	d := strings.TrimSpace(strings.ToLower(website))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(strings.TrimSpace(d), ".")
}

func emailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(strings.ToLower(email[i+1:]))
}
