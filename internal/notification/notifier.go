// Package notification delivers alerts for newly recorded signals to
// external channels (Telegram, webhooks, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"xau-signal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel    `json:"level"`
	Title   string        `json:"title"`
	Message string        `json:"message"`
	Symbol  string        `json:"symbol,omitempty"`
	Signal  *model.Signal `json:"signal,omitempty"`
}

// Kind returns the signal kind carried by the alert, or the level for
// alerts without a signal.
func (a Alert) Kind() string {
	if a.Signal != nil {
		return string(a.Signal.Kind)
	}
	return string(a.Level)
}

// SignalAlert builds the alert for a newly persisted signal.
func SignalAlert(symbol string, sig model.Signal) Alert {
	msg := fmt.Sprintf("%s %s at %.2f (bar %s)", sig.Kind, symbol, sig.Price, sig.TS.UTC().Format("2006-01-02 15:04 MST"))
	if sig.Targets != nil {
		msg += fmt.Sprintf(" TP %.2f SL %.2f", sig.Targets.TakeProfit, sig.Targets.StopLoss)
	}
	s := sig
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s signal %s", symbol, sig.Kind),
		Message: msg,
		Symbol:  symbol,
		Signal:  &s,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the standard logger.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every notifier. All are attempted; the
// returned error joins the individual failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
