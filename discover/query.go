// Package discover produces candidate postings: it builds search URLs
// from the configured criteria and lazily scrapes job identifiers from
// the paginated result pages.
package discover

import (
	"net/url"
	"strings"

	"github.com/talentpilot/talentpilot/config"
)

const (
	searchBase = "https://www.linkedin.com/jobs/search/"
	jobViewBase = "https://www.linkedin.com/jobs/view/"
)

// JobViewURL returns the detail-page URL for a job identifier.
func JobViewURL(id string) string { return jobViewBase + id }

// Criteria describes one search URL worth of parameters.
type Criteria struct {
	Keywords         string
	Location         string
	ExperienceLevels []string
	DatePosted       string
	JobTypes         []string
	RemoteOptions    []string
	SalaryBracket    string
	SortOrder        string
}

// Site filter-code tables. The site encodes facets as short codes in
// query parameters; these mirror its current URL scheme.
var (
	geoIDs = map[string]string{
		"asia":         "102393603",
		"europe":       "100506914",
		"northamerica": "102221843",
		"southamerica": "104514572",
		"australia":    "101452733",
		"africa":       "103537801",
	}

	experienceCodes = map[string]string{
		"internship":       "1",
		"entry level":      "2",
		"associate":        "3",
		"mid-senior level": "4",
		"director":         "5",
		"executive":        "6",
	}

	jobTypeCodes = map[string]string{
		"full-time":  "F",
		"part-time":  "P",
		"contract":   "C",
		"temporary":  "T",
		"volunteer":  "V",
		"internship": "I",
		"other":      "O",
	}

	remoteCodes = map[string]string{
		"on-site": "1",
		"remote":  "2",
		"hybrid":  "3",
	}

	salaryCodes = map[string]string{
		"$40,000+":  "1",
		"$60,000+":  "2",
		"$80,000+":  "3",
		"$100,000+": "4",
		"$120,000+": "5",
		"$140,000+": "6",
		"$160,000+": "7",
		"$180,000+": "8",
		"$200,000+": "9",
	}

	datePostedCodes = map[string]string{
		"past month":    "r2592000",
		"past week":     "r604800",
		"past 24 hours": "r86400",
	}
)

// BuildCriteria expands every keyword x location combination from the
// configuration into Criteria values, in configured order.
func BuildCriteria(cfg *config.Config) []Criteria {
	var out []Criteria
	for _, kw := range cfg.Keywords {
		for _, loc := range cfg.Locations {
			out = append(out, Criteria{
				Keywords:         kw,
				Location:         loc,
				ExperienceLevels: cfg.ExperienceLevels,
				DatePosted:       cfg.DatePosted,
				JobTypes:         cfg.JobTypes,
				RemoteOptions:    cfg.RemoteOptions,
				SalaryBracket:    cfg.SalaryBracket,
				SortOrder:        cfg.SortOrder,
			})
		}
	}
	return out
}

// BuildURL converts one Criteria into a fully-formed search URL.
// f_AL=true restricts results to in-site (Easy Apply) applications.
func BuildURL(c Criteria) string {
	params := url.Values{}
	params.Set("f_AL", "true")
	params.Set("keywords", c.Keywords)
	params.Set("location", c.Location)

	if geo, ok := geoIDs[normalizeKey(c.Location)]; ok {
		params.Set("geoId", geo)
	}
	if codes := lookupCodes(c.ExperienceLevels, experienceCodes); codes != "" {
		params.Set("f_E", codes)
	}
	if code, ok := datePostedCodes[strings.ToLower(strings.TrimSpace(c.DatePosted))]; ok {
		params.Set("f_TPR", code)
	}
	if codes := lookupCodes(c.JobTypes, jobTypeCodes); codes != "" {
		params.Set("f_JT", codes)
	}
	if codes := lookupCodes(c.RemoteOptions, remoteCodes); codes != "" {
		params.Set("f_WT", codes)
	}
	if code, ok := salaryCodes[strings.TrimSpace(c.SalaryBracket)]; ok {
		params.Set("f_SB2", code)
	}
	switch strings.ToLower(strings.TrimSpace(c.SortOrder)) {
	case "recent":
		params.Set("sortBy", "DD")
	case "relevant":
		params.Set("sortBy", "R")
	}

	return searchBase + "?" + params.Encode()
}

// BuildURLs builds every search URL for the configuration.
func BuildURLs(cfg *config.Config) []string {
	criteria := BuildCriteria(cfg)
	urls := make([]string, 0, len(criteria))
	for _, c := range criteria {
		urls = append(urls, BuildURL(c))
	}
	return urls
}

func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

func lookupCodes(values []string, table map[string]string) string {
	var codes []string
	for _, v := range values {
		if code, ok := table[strings.ToLower(strings.TrimSpace(v))]; ok {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, ",")
}
