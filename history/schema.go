package history

// Schema is the complete DDL for the history store. Open applies it; the
// constant is exported so callers with their own schema management can
// embed it.
const Schema = `
CREATE TABLE IF NOT EXISTS postings (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    posting_id TEXT NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    failure_reason TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (posting_id) REFERENCES postings(id)
);
CREATE INDEX IF NOT EXISTS idx_submissions_posting ON submissions(posting_id);
CREATE INDEX IF NOT EXISTS idx_submissions_run ON submissions(run_id);
CREATE INDEX IF NOT EXISTS idx_submissions_outcome ON submissions(posting_id, outcome);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    inspected INTEGER NOT NULL DEFAULT 0,
    submitted INTEGER NOT NULL DEFAULT 0,
    filtered INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    simulation INTEGER NOT NULL DEFAULT 0,
    started_at INTEGER NOT NULL,
    ended_at INTEGER
);

CREATE TABLE IF NOT EXISTS status_history (
    id TEXT PRIMARY KEY,
    posting_id TEXT NOT NULL,
    status TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (posting_id) REFERENCES postings(id)
);
CREATE INDEX IF NOT EXISTS idx_status_history_posting ON status_history(posting_id, created_at);
`
