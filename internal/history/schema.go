package history

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;

-- One row per merge run
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    output_path TEXT,
    status TEXT NOT NULL,          -- COMPLETE, INCOMPLETE, FAILED
    error_details TEXT,
    total_documents INTEGER DEFAULT 0,
    processed_documents INTEGER DEFAULT 0,
    failed_documents INTEGER DEFAULT 0,
    skipped_documents INTEGER DEFAULT 0,
    page_count INTEGER DEFAULT 0,
    recognized_documents INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    created_at TEXT NOT NULL       -- UTC, fixed width
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

-- Documents of a run in catalog order
CREATE TABLE IF NOT EXISTS run_documents (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    format TEXT NOT NULL,
    status TEXT NOT NULL,
    page_count INTEGER,
    ocr_status TEXT,
    error TEXT,
    PRIMARY KEY (run_id, position)
);
`
