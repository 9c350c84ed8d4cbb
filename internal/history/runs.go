package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/docmerge/internal/models"
)

// Run is one row of the ledger.
type Run struct {
	RunID               string
	Source              string
	OutputPath          string
	Status              string
	ErrorDetails        string
	TotalDocuments      int
	ProcessedDocuments  int
	FailedDocuments     int
	SkippedDocuments    int
	PageCount           int
	RecognizedDocuments int
	Duration            time.Duration
	CreatedAt           time.Time
}

// RunDocument is a document of a recorded run.
type RunDocument struct {
	Position  int
	Name      string
	Format    string
	Status    string
	PageCount sql.NullInt64
	OCRStatus string
	Error     string
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// RecordResult stores a finished run and its documents in one transaction.
func (db *DB) RecordResult(source string, result *models.MergeResult) error {
	rec := models.NewMergeRecord(source, result)
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, source, output_path, status, total_documents, processed_documents,
			failed_documents, skipped_documents, page_count, recognized_documents, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Source, rec.OutputPath, rec.Status, rec.TotalDocuments, rec.ProcessedDocuments,
		rec.FailedDocuments, rec.SkippedDocuments, rec.PageCount, result.RecognizedDocuments,
		rec.DurationMillis, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_documents (run_id, position, name, format, status, page_count, ocr_status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer stmt.Close()
	for i, d := range result.Documents {
		var pages sql.NullInt64
		if d.PageCount != nil {
			pages = sql.NullInt64{Int64: int64(*d.PageCount), Valid: true}
		}
		if _, err := stmt.Exec(rec.RunID, i, d.Name, string(d.Format()), string(d.Status()), pages, string(d.OCRStatus), d.Error); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RecordFailure stores a run that aborted before producing output.
func (db *DB) RecordFailure(runID, source, output string, runErr error) error {
	_, err := db.Exec(`
		INSERT INTO runs (run_id, source, output_path, status, error_details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, source, output, models.RecordFailed, runErr.Error(), time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert failed run: %w", err)
	}
	return nil
}

const runColumns = `run_id, source, COALESCE(output_path, ''), status, COALESCE(error_details, ''),
	total_documents, processed_documents, failed_documents, skipped_documents, page_count,
	recognized_documents, duration_ms, created_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var durationMS int64
	var created string
	err := row.Scan(&r.RunID, &r.Source, &r.OutputPath, &r.Status, &r.ErrorDetails,
		&r.TotalDocuments, &r.ProcessedDocuments, &r.FailedDocuments, &r.SkippedDocuments, &r.PageCount,
		&r.RecognizedDocuments, &durationMS, &created)
	if err != nil {
		return Run{}, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.CreatedAt, err = time.Parse(timeLayout, created)
	if err != nil {
		return Run{}, fmt.Errorf("failed to parse created_at %q: %w", created, err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &r, nil
}

// GetRunDocuments returns the documents of a run in catalog order.
func (db *DB) GetRunDocuments(runID string) ([]RunDocument, error) {
	rows, err := db.Query(`
		SELECT position, name, format, status, page_count, COALESCE(ocr_status, ''), COALESCE(error, '')
		FROM run_documents WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run documents: %w", err)
	}
	defer rows.Close()

	var docs []RunDocument
	for rows.Next() {
		var d RunDocument
		if err := rows.Scan(&d.Position, &d.Name, &d.Format, &d.Status, &d.PageCount, &d.OCRStatus, &d.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Prune deletes runs older than cutoff and returns how many were removed.
func (db *DB) Prune(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM runs WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}
