// Package history implements the append-only signal ledger on top of a
// table that only supports full reads and full overwrites.
//
// Append gives a best-effort at-most-once guarantee per bar timestamp. The
// table has no conditional write, so two workers that both re-check before
// either writes can still race; the last overwrite wins. That window is
// detected after the write by reading the row back, logged and reported
// through OnRace, but not prevented.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"xau-signal/internal/model"
)

var (
	// ErrPersistence wraps any failure of the backing table.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotPersistable is returned for WAIT entries, which are never stored.
	ErrNotPersistable = errors.New("entry is not persistable")
)

// Store is the signal ledger. It keeps no cache: every call reads the table.
type Store struct {
	table  model.Table
	writer string
	log    *slog.Logger

	// Optional hooks (for metrics).
	OnDuplicate func(ts time.Time) // append skipped, timestamp already stored
	OnRace      func(ts time.Time) // concurrent writer detected after our write
}

// NewStore creates a ledger over table. writer identifies this worker
// instance in the rows it appends.
func NewStore(table model.Table, writer string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		table:  table,
		writer: writer,
		log:    logger.With(slog.String("component", "history"), slog.String("writer", writer)),
	}
}

// Writer returns the id stamped on appended rows.
func (s *Store) Writer() string { return s.writer }

// Append inserts e unless a row with the same timestamp exists.
// It reports whether this call's row is the one stored. A duplicate is
// (false, nil), never an error.
func (s *Store) Append(ctx context.Context, e model.HistoryEntry) (bool, error) {
	if !e.Kind.Directional() {
		return false, fmt.Errorf("%w: kind %s", ErrNotPersistable, e.Kind)
	}
	if e.Writer == "" {
		e.Writer = s.writer
	}
	id := uuid.NewString()
	rec := encode(e, id)
	key := rec[colTS]
	log := s.log.With(slog.String("ts", key), slog.String("kind", string(e.Kind)), slog.String("append_id", id))

	records, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	if _, n := find(records, key); n > 0 {
		log.Debug("signal already recorded, skipping")
		s.duplicate(e.TS)
		return false, nil
	}

	// Re-check immediately before writing and build on the fresh rows so
	// rows appended by other workers since the first read are kept.
	fresh, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	if _, n := find(fresh, key); n > 0 {
		log.Warn("concurrent append detected before write, skipping")
		s.duplicate(e.TS)
		return false, nil
	}

	out := make([][]string, 0, len(fresh)+2)
	if len(fresh) == 0 {
		out = append(out, Header)
	}
	out = append(out, fresh...)
	out = append(out, rec)

	if err := s.table.Overwrite(ctx, out); err != nil {
		return false, fmt.Errorf("%w: overwrite: %w", ErrPersistence, err)
	}

	return s.verify(ctx, log, e, key, id), nil
}

// verify reads the table back and checks that the row stored for key is the
// one written by this call.
func (s *Store) verify(ctx context.Context, log *slog.Logger, e model.HistoryEntry, key, id string) bool {
	after, err := s.read(ctx)
	if err != nil {
		log.Warn("appended signal but could not verify", slog.Any("error", err))
		return true
	}

	row, n := find(after, key)
	switch {
	case n == 0:
		log.Warn("race window: appended row lost to a concurrent overwrite")
		s.race(e.TS)
		return false
	case cell(row, colAppendID) != id:
		log.Warn("race window: concurrent overwrite replaced appended row",
			slog.String("stored_writer", cell(row, colWriter)),
			slog.String("stored_append_id", cell(row, colAppendID)))
		s.race(e.TS)
		return false
	case n > 1:
		log.Warn("race window: duplicate rows stored for timestamp", slog.Int("rows", n))
		s.race(e.TS)
	}

	log.Info("signal recorded", slog.Float64("price", e.Price))
	return true
}

// ReadAll returns every decodable entry in stored (oldest-first) order.
// A missing sheet is an empty ledger. Malformed rows are skipped with a warning.
func (s *Store) ReadAll(ctx context.Context) ([]model.HistoryEntry, error) {
	records, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]model.HistoryEntry, 0, len(records))
	for i, rec := range records {
		if isHeader(rec) {
			continue
		}
		e, err := decode(rec)
		if err != nil {
			s.log.Warn("skipping malformed history row", slog.Int("row", i), slog.Any("error", err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) read(ctx context.Context) ([][]string, error) {
	records, err := s.table.ReadAll(ctx)
	if errors.Is(err, model.ErrSheetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrPersistence, err)
	}
	return records, nil
}

func (s *Store) duplicate(ts time.Time) {
	if s.OnDuplicate != nil {
		s.OnDuplicate(ts)
	}
}

func (s *Store) race(ts time.Time) {
	if s.OnRace != nil {
		s.OnRace(ts)
	}
}

// find returns the first data row stored under key and the number of such rows.
func find(records [][]string, key string) ([]string, int) {
	var first []string
	n := 0
	for _, rec := range records {
		if isHeader(rec) || timestampKey(rec) != key {
			continue
		}
		if n == 0 {
			first = rec
		}
		n++
	}
	return first, n
}
