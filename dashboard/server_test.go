package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/talentpilot/talentpilot/dbopen"
	"github.com/talentpilot/talentpilot/history"
	"github.com/talentpilot/talentpilot/model"
)

func testServer(t *testing.T) (*httptest.Server, *history.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(history.Schema))
	store := history.New(db, history.Config{})
	ts := httptest.NewServer(NewServer(store, nil).Routes())
	t.Cleanup(ts.Close)
	return ts, store
}

func seed(t *testing.T, store *history.Store) {
	t.Helper()
	ctx := context.Background()
	if err := store.UpsertPosting(ctx, model.JobPosting{ID: "J1", Title: "Go Dev", Company: "Acme"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordAttempt(ctx, model.SubmissionAttempt{
		PostingID: "J1", RunID: "run_x", Outcome: model.OutcomeSubmitted, Duration: time.Second,
	}); err != nil {
		t.Fatal(err)
	}
	stats, err := store.StartRun(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	stats.Submitted = 1
	if err := store.FinalizeRun(ctx, stats); err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, store := testServer(t)
	seed(t, store)

	var totals history.Totals
	getJSON(t, ts.URL+"/api/stats", &totals)
	if totals.Total != 1 || totals.Submitted != 1 {
		t.Fatalf("totals = %+v", totals)
	}
	if totals.TopCompany != "Acme" {
		t.Fatalf("top company = %q", totals.TopCompany)
	}
	if totals.Runs != 1 {
		t.Fatalf("runs = %d", totals.Runs)
	}
}

func TestSubmissionsEndpoint(t *testing.T) {
	ts, store := testServer(t)
	seed(t, store)

	var records []history.Record
	getJSON(t, ts.URL+"/api/submissions?limit=10", &records)
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].Company != "Acme" || records[0].Outcome != model.OutcomeSubmitted {
		t.Fatalf("record = %+v", records[0])
	}
}

func TestSubmissionsEmptyIsArray(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/api/submissions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out []history.Record
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("empty store must still return a JSON array: %v", err)
	}
}

func TestStatusHistoryEndpoint(t *testing.T) {
	ts, store := testServer(t)
	seed(t, store) // submitted attempt auto-appends an "applied" entry

	var trail []model.StatusEntry
	getJSON(t, ts.URL+"/api/status/J1", &trail)
	if len(trail) != 1 || trail[0].Status != "applied" {
		t.Fatalf("trail = %+v", trail)
	}
}

func TestRunsEndpoint(t *testing.T) {
	ts, store := testServer(t)
	seed(t, store)

	var runs []model.RunStats
	getJSON(t, ts.URL+"/api/runs", &runs)
	if len(runs) != 1 || runs[0].Submitted != 1 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestViewerServed(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("viewer = %d", resp.StatusCode)
	}
}

func TestExportCSVEndpoint(t *testing.T) {
	ts, store := testServer(t)
	seed(t, store)

	resp, err := http.Get(ts.URL + "/api/export/csv")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
}
