package crm

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// soqlDateTime is the SOQL datetime literal layout (UTC)
const soqlDateTime = "2006-01-02T15:04:05Z"

var recordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{15}(?:[a-zA-Z0-9]{3})?$`)

// ValidID reports whether id looks like a 15 or 18 character record id.
func ValidID(id string) bool {
	return recordIDPattern.MatchString(id)
}

// ContactsQuery selects contacts with an email created within [since, until].
func ContactsQuery(since, until time.Time, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT Id, Name, Email, AccountId, Account.Name, Account.Website, CreatedDate, LeadSource, Title ")
	b.WriteString("FROM Contact ")
	fmt.Fprintf(&b, "WHERE CreatedDate >= %s AND CreatedDate <= %s AND Email != null ",
		since.UTC().Format(soqlDateTime), until.UTC().Format(soqlDateTime))
	b.WriteString("ORDER BY CreatedDate DESC")
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

// OpportunitiesQuery selects the opportunities of one account created since
// the given time. The account id is validated rather than escaped.
func OpportunitiesQuery(accountID string, since time.Time) (string, error) {
	if !ValidID(accountID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, accountID)
	}
	return fmt.Sprintf(
		"SELECT Id, Name, StageName, Amount, CloseDate, Owner.Name, CreatedDate, Description, NextStep, "+
			"Loss_Reason__c, Win_Reason__c, Type, AccountId "+
			"FROM Opportunity WHERE AccountId = '%s' AND CreatedDate >= %s ORDER BY CreatedDate DESC",
		accountID, since.UTC().Format(soqlDateTime),
	), nil
}
