package discover

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/talentpilot/talentpilot/browser"
	"github.com/talentpilot/talentpilot/session"
)

const (
	resultsPerPage = 25
	maxPages       = 40

	// Result pages render asynchronously; give the card list a moment
	// after navigation before reading the DOM.
	renderDelay = 3 * time.Second
)

// Candidate is one job identifier pulled from a search results page.
type Candidate struct {
	ID  string
	URL string
}

// Listing walks the paginated results of the configured search URLs and
// yields candidates lazily, one page fetch at a time.
type Listing struct {
	page       browser.Adapter
	session    *session.Manager
	limiter    *rate.Limiter
	settle     time.Duration
	navTimeout time.Duration
	log        *slog.Logger
}

// ListingConfig tunes a Listing source.
type ListingConfig struct {
	// PagesPerMinute bounds how fast result pages are fetched. Default: 12.
	PagesPerMinute float64

	// NavTimeout bounds each result-page navigation. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

// NewListing creates a listing source over page.
func NewListing(page browser.Adapter, sess *session.Manager, cfg ListingConfig) *Listing {
	if cfg.PagesPerMinute <= 0 {
		cfg.PagesPerMinute = 12
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Listing{
		page:       page,
		session:    sess,
		limiter:    rate.NewLimiter(rate.Limit(cfg.PagesPerMinute/60), 1),
		settle:     renderDelay,
		navTimeout: cfg.NavTimeout,
		log:        cfg.Logger,
	}
}

// Candidates yields the job identifiers found across all search URLs, in
// listing order, deduplicated. Iteration stops on the first session-level
// error; scrape failures on one search URL skip to the next URL.
func (l *Listing) Candidates(ctx context.Context, searchURLs []string) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		seen := make(map[string]bool)
		for _, searchURL := range searchURLs {
			ids, err := l.scrapeSearch(ctx, searchURL)
			if err != nil {
				if session.IsFatal(err) || ctx.Err() != nil {
					yield(Candidate{}, err)
					return
				}
				l.log.Warn("discover: search scrape failed, moving to next", "url", searchURL, "error", err)
				continue
			}
			for _, id := range ids {
				if seen[id] {
					continue
				}
				seen[id] = true
				if !yield(Candidate{ID: id, URL: JobViewURL(id)}, nil) {
					return
				}
			}
		}
	}
}

// scrapeSearch collects the job IDs of every result page for one search URL.
func (l *Listing) scrapeSearch(ctx context.Context, searchURL string) ([]string, error) {
	if err := l.gotoPage(ctx, searchURL); err != nil {
		return nil, err
	}

	html, err := l.page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("discover: parse results: %w", err)
	}

	if noResults(doc) {
		l.log.Info("discover: no matching jobs for search", "url", searchURL)
		return nil, nil
	}

	pages := PageCount(doc.Find("small").First().Text())
	l.log.Info("discover: scanning result pages", "url", searchURL, "pages", pages)

	ids := ExtractJobIDs(doc)
	for pageIdx := 1; pageIdx < pages; pageIdx++ {
		pageURL := fmt.Sprintf("%s&start=%d", searchURL, pageIdx*resultsPerPage)
		if err := l.gotoPage(ctx, pageURL); err != nil {
			return nil, err
		}
		html, err := l.page.HTML(ctx)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("discover: parse results page %d: %w", pageIdx, err)
		}
		ids = append(ids, ExtractJobIDs(doc)...)
	}
	return ids, nil
}

// gotoPage rate-limits, navigates under the navigation deadline, waits
// for render, and checks the session state on the landed URL.
func (l *Listing) gotoPage(ctx context.Context, url string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, l.navTimeout)
	err := l.page.Navigate(navCtx, url)
	cancel()
	if err != nil {
		return err
	}
	sleep(ctx, l.settle)
	return l.session.CheckPage(ctx, l.page)
}

// PageCount derives the number of result pages from the total-results
// text, e.g. "1,234 results" or just "25". Capped at maxPages.
func PageCount(totalText string) int {
	stripped := strings.ReplaceAll(strings.TrimSpace(totalText), ",", "")
	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return 1
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 1
	}
	pages := int(math.Ceil(float64(n) / resultsPerPage))
	return min(pages, maxPages)
}

// ExtractJobIDs returns the job IDs of the result cards in doc, skipping
// cards already marked as applied.
func ExtractJobIDs(doc *goquery.Document) []string {
	var ids []string
	doc.Find("li[data-occludable-job-id]").Each(func(_ int, card *goquery.Selection) {
		id, ok := card.Attr("data-occludable-job-id")
		if !ok || strings.TrimSpace(id) == "" {
			return
		}
		if card.Find("li-icon[type='success-pebble-icon']").Length() > 0 {
			return // applied marker
		}
		ids = append(ids, strings.TrimSpace(id))
	})
	return ids
}

func noResults(doc *goquery.Document) bool {
	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range []string{
		"no matching jobs",
		"no results found",
		"no jobs found",
	} {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
