// Package filter evaluates postings against ordered block rules.
//
// A Chain is a plain ordered list of rules, evaluated first-match-wins:
// the first rule whose term appears in the posting's matched field rejects
// the posting. No rule matching admits it. Evaluation is a pure function
// of the posting and the configured rule set.
package filter

import (
	"strings"

	"github.com/talentpilot/talentpilot/model"
)

// Field selects which posting attribute a rule matches against.
type Field string

const (
	FieldCompany Field = "company"
	FieldTitle   Field = "title"
)

// Rule is a single blocking predicate: case-insensitive substring match
// of Term against the selected Field.
type Rule struct {
	Field Field
	Term  string
}

// Verdict is the result of evaluating one posting.
type Verdict struct {
	Admitted bool
	Rule     Rule   // zero value when admitted
	Reason   string // e.g. "blocked-company:spyware"; empty when admitted
}

// Chain is an ordered set of block rules.
type Chain struct {
	rules []Rule
}

// NewChain builds a chain from blocked company terms and blocked title
// terms, in that order. Blank terms are dropped; terms are normalized to
// lower case once at construction.
func NewChain(blockedCompanies, blockedTitles []string) *Chain {
	var rules []Rule
	for _, term := range blockedCompanies {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" {
			rules = append(rules, Rule{Field: FieldCompany, Term: t})
		}
	}
	for _, term := range blockedTitles {
		if t := strings.ToLower(strings.TrimSpace(term)); t != "" {
			rules = append(rules, Rule{Field: FieldTitle, Term: t})
		}
	}
	return &Chain{rules: rules}
}

// Len returns the number of configured rules.
func (c *Chain) Len() int { return len(c.rules) }

// Evaluate checks posting against the rules in configured order and
// short-circuits on the first match.
func (c *Chain) Evaluate(posting model.JobPosting) Verdict {
	company := strings.ToLower(posting.Company)
	title := strings.ToLower(posting.Title)

	for _, r := range c.rules {
		var haystack, kind string
		switch r.Field {
		case FieldCompany:
			haystack, kind = company, "blocked-company"
		case FieldTitle:
			haystack, kind = title, "blocked-title"
		default:
			continue
		}
		if strings.Contains(haystack, r.Term) {
			return Verdict{Admitted: false, Rule: r, Reason: kind + ":" + r.Term}
		}
	}
	return Verdict{Admitted: true}
}
