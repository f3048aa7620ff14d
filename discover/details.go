package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/talentpilot/talentpilot/browser"
	"github.com/talentpilot/talentpilot/model"
)

// detailsJS reads title, company, and location from a job detail page.
// The site's class names are build-hashed, so this leans on stable
// signals: the document title, company-profile links, and span geometry.
const detailsJS = `
() => {
	let title = '';
	let company = '';
	let location = '';

	const docTitle = document.title || '';
	if (docTitle.includes(' | LinkedIn')) {
		const parts = docTitle.replace(' | LinkedIn', '').split(' - ');
		if (parts.length >= 1) title = parts[0].trim();
	}

	const companyLinks = document.querySelectorAll('a[href*="/company/"]');
	for (const a of companyLinks) {
		const text = a.innerText.trim().split('\n')[0].trim();
		if (text && text.length < 60) {
			company = text;
			break;
		}
	}

	const spans = document.querySelectorAll('span');
	for (const s of spans) {
		const rect = s.getBoundingClientRect();
		const text = s.innerText.trim();
		if (rect.top > 150 && rect.top < 250 && text.length > 3 && text.length < 50) {
			if (text.includes(',') || /^[A-Z]/.test(text)) {
				if (!text.includes('ago') && !text.includes('applicant') &&
					!text.includes('Promoted') && !text.includes('review')) {
					location = text;
					break;
				}
			}
		}
	}

	return { title, company, location };
}`

// FetchDetails navigates to the candidate's detail page and scrapes the
// posting metadata. The page is left on the detail view so the submission
// engine can start from it.
func FetchDetails(ctx context.Context, page browser.Adapter, c Candidate) (model.JobPosting, error) {
	if err := page.Navigate(ctx, c.URL); err != nil {
		return model.JobPosting{}, err
	}

	raw, err := page.Eval(ctx, detailsJS)
	if err != nil {
		return model.JobPosting{}, err
	}

	var details struct {
		Title    string `json:"title"`
		Company  string `json:"company"`
		Location string `json:"location"`
	}
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return model.JobPosting{}, fmt.Errorf("discover: parse details: %w", err)
	}

	now := time.Now().UTC()
	return model.JobPosting{
		ID:        c.ID,
		Title:     details.Title,
		Company:   details.Company,
		URL:       c.URL,
		Location:  details.Location,
		FirstSeen: now,
		LastSeen:  now,
	}, nil
}
