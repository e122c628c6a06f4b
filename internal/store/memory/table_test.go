package memory

import (
	"context"
	"errors"
	"testing"

	"xau-signal/internal/model"
)

func TestTable_MissingSheet(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.ReadAll(context.Background())
	if !errors.Is(err, model.ErrSheetNotFound) {
		t.Fatalf("expected ErrSheetNotFound, got %v", err)
	}
}

func TestTable_OverwriteCopies(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable()

	in := [][]string{{"a", "b"}, {"c"}}
	if err := tbl.Overwrite(ctx, in); err != nil {
		t.Fatal(err)
	}
	in[0][0] = "mutated"

	got, err := tbl.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0][0] != "a" {
		t.Fatalf("table shares memory with caller: %v", got)
	}

	got[1][0] = "mutated"
	again, _ := tbl.ReadAll(ctx)
	if again[1][0] != "c" {
		t.Fatalf("ReadAll result shares memory with table: %v", again)
	}
}

func TestTable_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewTable().Overwrite(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
