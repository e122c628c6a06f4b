// Package memory provides an in-process Table, used for tests and for
// running without a configured backend.
package memory

import (
	"context"
	"sync"

	"xau-signal/internal/model"
)

// Table keeps records in memory. Safe for concurrent use; all reads and
// writes copy so callers never share slices with the table.
type Table struct {
	mu      sync.RWMutex
	records [][]string
	exists  bool
}

// NewTable returns an empty table whose sheet does not exist yet.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.exists {
		return nil, model.ErrSheetNotFound
	}
	return copyRecords(t.records), nil
}

func (t *Table) Overwrite(ctx context.Context, records [][]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = copyRecords(records)
	t.exists = true
	return nil
}

func copyRecords(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, r := range in {
		out[i] = append([]string(nil), r...)
	}
	return out
}
