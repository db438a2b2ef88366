package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
)

// Filter is a parsed mailbox filter expression.
type Filter struct {
	Seen          *bool
	From          string
	Subject       string
	Since         time.Time
	Before        time.Time
	HasAttachment bool
}

const filterDate = "2006-01-02"

// ParseFilter parses a space-separated list of terms:
//
//	unseen | seen | from:<addr> | subject:<text> | since:<YYYY-MM-DD> |
//	before:<YYYY-MM-DD> | has:attachment
//
// subject values may be double-quoted to include spaces.
func ParseFilter(expr string) (Filter, error) {
	var f Filter
	for _, term := range splitTerms(expr) {
		key, value, hasValue := strings.Cut(term, ":")
		key = strings.ToLower(key)
		switch {
		case !hasValue && key == "unseen":
			v := false
			f.Seen = &v
		case !hasValue && key == "seen":
			v := true
			f.Seen = &v
		case key == "from" && value != "":
			f.From = value
		case key == "subject" && value != "":
			f.Subject = strings.Trim(value, `"`)
		case key == "since" || key == "before":
			t, err := time.Parse(filterDate, value)
			if err != nil {
				return Filter{}, fmt.Errorf("filter %s: %w", key, err)
			}
			if key == "since" {
				f.Since = t
			} else {
				f.Before = t
			}
		case key == "has" && strings.EqualFold(value, "attachment"):
			f.HasAttachment = true
		default:
			return Filter{}, fmt.Errorf("filter: unknown term %q", term)
		}
	}
	return f, nil
}

// Criteria maps the filter onto IMAP SEARCH criteria. The attachment term
// has no IMAP equivalent and is applied by Match.
func (f Filter) Criteria() *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	if f.Seen != nil {
		if *f.Seen {
			c.WithFlags = append(c.WithFlags, imap.SeenFlag)
		} else {
			c.WithoutFlags = append(c.WithoutFlags, imap.SeenFlag)
		}
	}
	if f.From != "" {
		c.Header.Add("From", f.From)
	}
	if f.Subject != "" {
		c.Header.Add("Subject", f.Subject)
	}
	c.Since = f.Since
	c.Before = f.Before
	return c
}

// Match applies the client-side terms.
func (f Filter) Match(e Envelope) bool {
	if f.HasAttachment && !e.HasAttachments() {
		return false
	}
	return true
}

func splitTerms(expr string) []string {
	var terms []string
	var cur strings.Builder
	quoted := false
	for _, r := range expr {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && !quoted:
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms
}
