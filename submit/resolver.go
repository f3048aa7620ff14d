package submit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/talentpilot/talentpilot/config"
)

// Resolver maps a scanned form field to an answer value. Strategies run
// in a fixed order: exact label match against the configured answer set,
// then normalized (lowercased, punctuation-stripped) substring match,
// then kind-specific heuristics (phone number, experience questions,
// country dropdowns).
type Resolver struct {
	answers         config.Answers
	phone           string
	country         string
	experienceYears int
}

// NewResolver builds a Resolver from the configured answer set and
// profile values.
func NewResolver(answers config.Answers, cfg *config.Config) *Resolver {
	return &Resolver{
		answers:         answers,
		phone:           cfg.PhoneNumber,
		country:         cfg.Country,
		experienceYears: cfg.ExperienceYears,
	}
}

// experienceRe matches "Do you have 5+ years of relevant work experience"
// style questions; the captured number is compared against the applicant's
// configured experience.
var experienceRe = regexp.MustCompile(`(\d+)\s*\+?\s*years?\s*(?:of\s*)?(?:relevant\s*)?(?:work\s*)?experience`)

// Resolve returns the answer for a field, or ok=false when no strategy
// produced one. File fields are not resolved here; they belong to the
// resume picker.
func (r *Resolver) Resolve(f FormField) (string, bool) {
	table := r.tableFor(f.Kind)

	key := strings.ToLower(strings.TrimSpace(f.Label))
	if v, ok := table[key]; ok {
		return v, true
	}

	norm := normalizeLabel(f.Label)
	for k, v := range table {
		if strings.Contains(norm, normalizeLabel(k)) {
			return v, true
		}
	}

	return r.heuristic(f)
}

func (r *Resolver) tableFor(kind Kind) map[string]string {
	switch kind {
	case KindRadio:
		return r.answers.Radio
	case KindDropdown:
		return r.answers.Dropdown
	default:
		return r.answers.Text
	}
}

func (r *Resolver) heuristic(f FormField) (string, bool) {
	label := strings.ToLower(f.Label)

	if f.Kind == KindPhone && r.phone != "" {
		return r.phone, true
	}

	// "N years of experience" questions answered against the applicant's
	// configured experience.
	if f.Kind == KindRadio || f.Kind == KindDropdown {
		if m := experienceRe.FindStringSubmatch(label); m != nil {
			required, err := strconv.Atoi(m[1])
			if err == nil {
				if required <= r.experienceYears {
					return "Yes", true
				}
				return "No", true
			}
		}
	}

	if f.Kind == KindDropdown && r.country != "" {
		if strings.Contains(label, "country") || strings.Contains(label, "nation") {
			return r.country, true
		}
	}

	// Plain numeric "how many years" prompts.
	if (f.Kind == KindText || f.Kind == KindTextarea) && strings.Contains(label, "experience") &&
		strings.Contains(label, "year") {
		return fmt.Sprintf("%d", r.experienceYears), true
	}

	return "", false
}

var labelScrub = regexp.MustCompile(`[^a-z0-9 ]+`)

func normalizeLabel(s string) string {
	s = labelScrub.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(s), " ")
}
