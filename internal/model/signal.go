package model

import (
	"fmt"
	"time"
)

// Kind is the classification of the latest bar.
type Kind string

const (
	KindBuy  Kind = "BUY"
	KindSell Kind = "SELL"
	KindWait Kind = "WAIT"
)

// ParseKind converts a stored kind string back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBuy, KindSell, KindWait:
		return k, nil
	}
	return "", fmt.Errorf("unknown signal kind %q", s)
}

// Directional reports whether the kind implies a trade direction.
func (k Kind) Directional() bool { return k == KindBuy || k == KindSell }

// Targets are the take-profit and stop-loss prices attached to a signal.
type Targets struct {
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

// Signal is the classification produced for one evaluation cycle.
type Signal struct {
	TS      time.Time `json:"ts"`
	Kind    Kind      `json:"kind"`
	Price   float64   `json:"price"`
	Targets *Targets  `json:"targets,omitempty"`
}

// HistoryEntry is one row of the append-only signal ledger.
// Writer identifies the worker instance that inserted the row.
type HistoryEntry struct {
	TS      time.Time `json:"ts"`
	Kind    Kind      `json:"kind"`
	Price   float64   `json:"price"`
	Targets *Targets  `json:"targets,omitempty"`
	Writer  string    `json:"writer,omitempty"`
}

// Entry converts a signal into a ledger entry attributed to writer.
func (s Signal) Entry(writer string) HistoryEntry {
	return HistoryEntry{
		TS:      s.TS,
		Kind:    s.Kind,
		Price:   s.Price,
		Targets: s.Targets,
		Writer:  writer,
	}
}

// NewsItem is a headline shown next to the evaluation.
// Missing fields from the feed are left as empty strings.
type NewsItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Publisher string `json:"publisher"`
	Summary   string `json:"summary"`
}
