package history

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/talentpilot/talentpilot/model"
)

func seedSubmissions(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := context.Background()
	outcomes := []model.Outcome{
		model.OutcomeSubmitted, model.OutcomeFiltered, model.OutcomeFailed,
		model.OutcomeSkipped, model.OutcomeSimulated,
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("J%d", i)
		if err := s.UpsertPosting(ctx, posting(id)); err != nil {
			t.Fatal(err)
		}
		if _, err := s.RecordAttempt(ctx, model.SubmissionAttempt{
			PostingID: id,
			Outcome:   outcomes[i%len(outcomes)],
			Duration:  time.Duration(i) * time.Second,
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExportJSONRowFidelity(t *testing.T) {
	s := testStore(t, Config{})
	seedSubmissions(t, s, 7)

	var buf bytes.Buffer
	if err := s.ExportJSON(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}

	var out []Record
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(out) != 7 {
		t.Fatalf("exported %d records, want 7", len(out))
	}

	want, err := s.RecentSubmissions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if out[i].ID != want[i].ID || out[i].Outcome != want[i].Outcome {
			t.Fatalf("row %d diverges from the store: %+v vs %+v", i, out[i], want[i])
		}
	}
}

func TestExportCSVRowFidelity(t *testing.T) {
	s := testStore(t, Config{})
	seedSubmissions(t, s, 5)

	var buf bytes.Buffer
	if err := s.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 6 { // header + 5
		t.Fatalf("got %d rows, want header plus 5", len(rows))
	}
	if rows[0][0] != "submission_id" {
		t.Fatalf("header = %v", rows[0])
	}

	want, err := s.RecentSubmissions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, rec := range want {
		row := rows[i+1]
		if row[0] != rec.ID {
			t.Fatalf("row %d id = %q, want %q", i, row[0], rec.ID)
		}
		if row[7] != string(rec.Outcome) {
			t.Fatalf("row %d outcome = %q, want %q", i, row[7], rec.Outcome)
		}
		if row[9] != fmt.Sprint(rec.Duration.Milliseconds()) {
			t.Fatalf("row %d duration = %q", i, row[9])
		}
	}
}

func TestExportJSONEmptyStoreIsEmptyArray(t *testing.T) {
	s := testStore(t, Config{})
	var buf bytes.Buffer
	if err := s.ExportJSON(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	var out []Record
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d records from empty store", len(out))
	}
}
