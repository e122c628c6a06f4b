package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"xau-signal/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// TableConfig configures a SQLite-backed sheet.
type TableConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
	Sheet  string // sheet name, e.g. "history"
}

// Table stores one named sheet as ordered rows of JSON-encoded cells.
// Several processes may open the same file; WAL mode plus busy_timeout
// serialises their writes, but a read followed by an overwrite is not atomic.
type Table struct {
	db    *sql.DB
	sheet string
}

// DB returns the underlying sql.DB for health checks.
func (t *Table) DB() *sql.DB { return t.db }

// Open opens (or creates) the database and its schema.
func Open(cfg TableConfig) (*Table, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened sheet %q at %s", cfg.Sheet, cfg.DBPath)
	return &Table{db: db, sheet: cfg.Sheet}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sheets (
			name       TEXT    PRIMARY KEY,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sheet_rows (
			sheet TEXT    NOT NULL,
			pos   INTEGER NOT NULL,
			cells TEXT    NOT NULL,
			PRIMARY KEY (sheet, pos)
		);
	`)
	return err
}

// ReadAll returns the sheet rows ordered by position.
// Returns model.ErrSheetNotFound if the sheet was never written.
func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	var updated int64
	err := t.db.QueryRowContext(ctx, `SELECT updated_at FROM sheets WHERE name = ?`, t.sheet).Scan(&updated)
	if err == sql.ErrNoRows {
		return nil, model.ErrSheetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query sheets: %w", err)
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT cells FROM sheet_rows
		WHERE sheet = ?
		ORDER BY pos ASC
	`, t.sheet)
	if err != nil {
		return nil, fmt.Errorf("sqlite query sheet_rows: %w", err)
	}
	defer rows.Close()

	records := make([][]string, 0, 64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite scan sheet_rows: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("sqlite decode row: %w", err)
		}
		records = append(records, cells)
	}
	return records, rows.Err()
}

// Overwrite replaces the whole sheet in a single transaction.
func (t *Table) Overwrite(ctx context.Context, records [][]string) error {
	start := time.Now()
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sheets (name, updated_at) VALUES (?, ?)`,
		t.sheet, time.Now().Unix()); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = ?`, t.sheet); err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO sheet_rows (sheet, pos, cells) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		cells, err := json.Marshal(r)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, t.sheet, i, string(cells)); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Printf("[sqlite] overwrote sheet %q with %d rows in %v", t.sheet, len(records), time.Since(start))
	return nil
}

// Close closes the database.
func (t *Table) Close() error {
	return t.db.Close()
}
