package model

import (
	"context"
	"errors"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the signal pipeline from concrete feeds
// (Yahoo, Binance) and table backends (SQLite, Redis, memory).

// ErrFetchFailure marks a feed that could not deliver data. The poll loop
// treats it as recoverable and retries on the next tick.
var ErrFetchFailure = errors.New("fetch failure")

// ErrSheetNotFound is returned by a Table whose backing sheet does not exist yet.
// Callers treat it as an empty table.
var ErrSheetNotFound = errors.New("sheet not found")

// BarQuery selects a bar window from a feed.
type BarQuery struct {
	Symbol   string
	Interval string // bar granularity, e.g. "15m"
	Lookback string // history window, e.g. "7d"
}

// BarFeed returns bars ordered oldest to newest.
type BarFeed interface {
	Bars(ctx context.Context, q BarQuery) ([]Bar, error)
}

// NewsFeed returns recent headlines. An empty result is valid.
type NewsFeed interface {
	News(ctx context.Context, symbol string, limit int) ([]NewsItem, error)
}

// Table is a spreadsheet-like store with no single-row append:
// the whole table is read and the whole table is overwritten.
type Table interface {
	// ReadAll returns every record in stored order.
	// Returns ErrSheetNotFound if the sheet has never been written.
	ReadAll(ctx context.Context) ([][]string, error)

	// Overwrite replaces the table contents with records.
	Overwrite(ctx context.Context, records [][]string) error
}
