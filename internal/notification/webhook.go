package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"xau-signal/internal/model"
)

// webhookPayload is the JSON body posted for every alert. Signal fields are
// omitted for alerts that carry no signal.
type webhookPayload struct {
	Level      AlertLevel `json:"level"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	SentAt     time.Time  `json:"sent_at"`
	Symbol     string     `json:"symbol,omitempty"`
	Kind       model.Kind `json:"kind,omitempty"`
	BarTime    *time.Time `json:"bar_time,omitempty"`
	Price      *float64   `json:"price,omitempty"`
	TakeProfit *float64   `json:"take_profit,omitempty"`
	StopLoss   *float64   `json:"stop_loss,omitempty"`
}

func newWebhookPayload(alert Alert, now time.Time) webhookPayload {
	p := webhookPayload{
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		SentAt:  now.UTC(),
		Symbol:  alert.Symbol,
	}
	if s := alert.Signal; s != nil {
		ts, price := s.TS.UTC(), s.Price
		p.Kind, p.BarTime, p.Price = s.Kind, &ts, &price
		if t := s.Targets; t != nil {
			tp, sl := t.TakeProfit, t.StopLoss
			p.TakeProfit, p.StopLoss = &tp, &sl
		}
	}
	return p
}

// WebhookNotifier POSTs signal alerts as flat JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a notifier that POSTs JSON alerts to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(newWebhookPayload(alert, w.now()))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s returned status %d", alert.Kind(), resp.StatusCode)
	}

	log.Printf("[webhook] sent %s alert for %s", alert.Kind(), alert.Title)
	return nil
}
