package history

import (
	"fmt"
	"strconv"
	"time"

	"xau-signal/internal/model"
)

// Header is the first row of the sheet.
// append_id is unique per Append call and identifies the row's owner even
// when two appends share a writer id.
var Header = []string{"timestamp", "kind", "price", "take_profit", "stop_loss", "writer", "append_id"}

const (
	colTS = iota
	colKind
	colPrice
	colTP
	colSL
	colWriter
	colAppendID
)

func isHeader(rec []string) bool {
	return len(rec) > 0 && rec[0] == Header[0]
}

func encode(e model.HistoryEntry, appendID string) []string {
	rec := make([]string, len(Header))
	rec[colTS] = e.TS.UTC().Format(time.RFC3339Nano)
	rec[colKind] = string(e.Kind)
	rec[colPrice] = formatFloat(e.Price)
	if e.Targets != nil {
		rec[colTP] = formatFloat(e.Targets.TakeProfit)
		rec[colSL] = formatFloat(e.Targets.StopLoss)
	}
	rec[colWriter] = e.Writer
	rec[colAppendID] = appendID
	return rec
}

func decode(rec []string) (model.HistoryEntry, error) {
	if len(rec) < colPrice+1 {
		return model.HistoryEntry{}, fmt.Errorf("row has %d cells, need at least %d", len(rec), colPrice+1)
	}
	ts, err := time.Parse(time.RFC3339Nano, rec[colTS])
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("timestamp: %w", err)
	}
	kind, err := model.ParseKind(rec[colKind])
	if err != nil {
		return model.HistoryEntry{}, err
	}
	price, err := strconv.ParseFloat(rec[colPrice], 64)
	if err != nil {
		return model.HistoryEntry{}, fmt.Errorf("price: %w", err)
	}

	e := model.HistoryEntry{TS: ts, Kind: kind, Price: price}
	if cell(rec, colTP) != "" || cell(rec, colSL) != "" {
		tp, err := strconv.ParseFloat(cell(rec, colTP), 64)
		if err != nil {
			return model.HistoryEntry{}, fmt.Errorf("take_profit: %w", err)
		}
		sl, err := strconv.ParseFloat(cell(rec, colSL), 64)
		if err != nil {
			return model.HistoryEntry{}, fmt.Errorf("stop_loss: %w", err)
		}
		e.Targets = &model.Targets{TakeProfit: tp, StopLoss: sl}
	}
	e.Writer = cell(rec, colWriter)
	return e, nil
}

// timestampKey normalises the timestamp cell so rows written with a
// different offset or precision still collide.
func timestampKey(rec []string) string {
	raw := cell(rec, colTS)
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return raw
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// formatFloat uses the shortest representation that parses back to the same value.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
