// Package export writes filing sets into an SQLite database with one table
// per resource type (Filing, Entity, ValidationMessage) keyed by api_id,
// plus a few read-only views for browsing the data.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/derickschaefer/filings/internal/filingset"
	"github.com/derickschaefer/filings/internal/model"
)

var (
	// ErrFileExists is returned when the target file exists and Update
	// was not requested.
	ErrFileExists = errors.New("database file already exists")

	// ErrPathReserved is returned when the target path exists but is not
	// a regular file.
	ErrPathReserved = errors.New("database path is reserved by a non-file")

	// ErrSchemaMismatch is returned when an existing database has no
	// Filing table with an api_id column.
	ErrSchemaMismatch = errors.New("existing database is not a filings database")
)

// Options control an export.
type Options struct {
	// Update adds to an existing database. Rows with the same api_id
	// are replaced.
	Update bool
}

// Summary reports how many rows were written per table.
type Summary struct {
	Path               string `json:"path"`
	Filings            int    `json:"filings"`
	Entities           int    `json:"entities"`
	ValidationMessages int    `json:"validation_messages"`
}

// ToSQLite writes set into the database at path.
func ToSQLite(ctx context.Context, path string, set *filingset.Set, opts Options) (Summary, error) {
	sum := Summary{Path: path}
	exists, err := checkPath(path, opts.Update)
	if err != nil {
		return sum, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sum, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return sum, fmt.Errorf("opening %s: %w", path, err)
	}
	defer db.Close()

	if exists {
		if err := checkSchema(ctx, db); err != nil {
			return sum, fmt.Errorf("%s: %w", path, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return sum, fmt.Errorf("creating schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sum, err
	}
	defer tx.Rollback()

	filings := set.Filings()
	entities := set.Entities()
	messages := set.ValidationMessages()
	if err := insertRows(ctx, tx, filingInsert, len(filings), func(i int) []any { return filingRow(filings[i]) }); err != nil {
		return sum, fmt.Errorf("writing filings: %w", err)
	}
	if err := insertRows(ctx, tx, entityInsert, len(entities), func(i int) []any { return entityRow(entities[i]) }); err != nil {
		return sum, fmt.Errorf("writing entities: %w", err)
	}
	if err := insertRows(ctx, tx, messageInsert, len(messages), func(i int) []any { return messageRow(messages[i]) }); err != nil {
		return sum, fmt.Errorf("writing validation messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return sum, fmt.Errorf("committing: %w", err)
	}

	sum.Filings, sum.Entities, sum.ValidationMessages = len(filings), len(entities), len(messages)
	return sum, nil
}

// checkPath reports whether path holds an existing database file that may
// be updated.
func checkPath(path string, update bool) (bool, error) {
	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking %s: %w", path, err)
	case !fi.Mode().IsRegular():
		return false, fmt.Errorf("%s: %w", path, ErrPathReserved)
	case !update:
		return false, fmt.Errorf("%s: %w", path, ErrFileExists)
	}
	return true, nil
}

func checkSchema(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM pragma_table_info('Filing') WHERE name = 'api_id'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	if n == 0 {
		return ErrSchemaMismatch
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}
	return nil
}

// ─── Rows ─────────────────────────────────────────────────────────────────────

const filingInsert = `REPLACE INTO Filing (
  api_id, country, filing_index, language, last_end_date, reporting_date,
  error_count, inconsistency_count, warning_count, added_time, processed_time,
  entity_api_id, json_url, package_url, viewer_url, xhtml_url, package_sha256,
  json_download_path, package_download_path, xhtml_download_path,
  query_time, request_url
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func filingRow(f *model.Filing) []any {
	return []any{
		f.APIID, text(f.Country), text(f.FilingIndex), text(f.Language),
		date(f.LastEndDate), date(f.ReportingDate),
		f.ErrorCount, f.InconsistencyCount, f.WarningCount,
		timestamp(f.AddedTime), timestamp(f.ProcessedTime),
		text(f.EntityAPIID), text(f.JSONURL), text(f.PackageURL), text(f.ViewerURL),
		text(f.XHTMLURL), text(f.PackageSHA256),
		text(f.JSONDownloadPath), text(f.PackageDownloadPath), text(f.XHTMLDownloadPath),
		timestamp(f.QueryTime), text(f.RequestURL),
	}
}

const entityInsert = `REPLACE INTO Entity (
  api_id, identifier, name, api_entity_filings_url, query_time, request_url
) VALUES (?, ?, ?, ?, ?, ?)`

func entityRow(e *model.Entity) []any {
	return []any{
		e.APIID, text(e.Identifier), text(e.Name), text(e.FilingsURL),
		timestamp(e.QueryTime), text(e.RequestURL),
	}
}

const messageInsert = `REPLACE INTO ValidationMessage (
  api_id, filing_api_id, severity, code, text,
  calc_computed_sum, calc_reported_sum, calc_context_id, calc_line_item,
  calc_short_role, calc_unreported_items, duplicate_greater, duplicate_lesser,
  query_time, request_url
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func messageRow(m *model.ValidationMessage) []any {
	return []any{
		m.APIID, text(m.FilingAPIID), text(m.Severity), text(m.Code), text(m.Text),
		number(m.CalcComputedSum), number(m.CalcReportedSum),
		text(m.CalcContextID), text(m.CalcLineItem), text(m.CalcShortRole),
		text(strings.Join(m.CalcUnreportedItems, ", ")),
		number(m.DuplicateGreater), number(m.DuplicateLesser),
		timestamp(m.QueryTime), text(m.RequestURL),
	}
}

// Empty values are stored as NULL.

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func date(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return text(t.Format("2006-01-02"))
}

func timestamp(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return text(t.UTC().Format("2006-01-02 15:04:05"))
}

func number(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
