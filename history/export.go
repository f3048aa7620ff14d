package history

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// csvHeader is the column order of CSV exports.
var csvHeader = []string{
	"submission_id", "posting_id", "run_id", "title", "company", "url",
	"location", "outcome", "failure_reason", "duration_ms", "created_at",
}

// ExportJSON writes every submission record as a JSON array. The export
// is a pure read-only projection of the submissions/postings join; row
// count and field values mirror the tables at the time of the call.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	records, err := s.RecentSubmissions(ctx, 0)
	if err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("history: export json: %w", err)
	}
	return nil
}

// ExportCSV writes every submission record as CSV with a header row.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.RecentSubmissions(ctx, 0)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("history: export csv: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID, r.PostingID, r.RunID, r.Title, r.Company, r.URL,
			r.Location, string(r.Outcome), r.FailureReason,
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
			r.CreatedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("history: export csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
