package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xau-signal/internal/model"
)

func testSignal() model.Signal {
	return model.Signal{
		TS:      time.Date(2024, 3, 1, 14, 15, 0, 0, time.UTC),
		Kind:    model.KindBuy,
		Price:   2650,
		Targets: &model.Targets{TakeProfit: 2655, StopLoss: 2647},
	}
}

func TestSignalAlert(t *testing.T) {
	a := SignalAlert("GC=F", testSignal())
	if a.Title != "GC=F signal BUY" {
		t.Errorf("title = %q", a.Title)
	}
	for _, want := range []string{"2650.00", "TP 2655.00", "SL 2647.00", "2024-03-01 14:15 UTC"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("message %q missing %q", a.Message, want)
		}
	}
	if a.Signal == nil || a.Signal.Kind != model.KindBuy {
		t.Errorf("signal = %+v", a.Signal)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), SignalAlert("GC=F", testSignal())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := map[string]any{
		"symbol":      "GC=F",
		"kind":        "BUY",
		"price":       2650.0,
		"take_profit": 2655.0,
		"stop_loss":   2647.0,
		"bar_time":    "2024-03-01T14:15:00Z",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["sent_at"].(string); !ok {
		t.Errorf("payload missing sent_at: %v", got)
	}
}

func TestWebhookNotifier_PlainAlert(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 3, 1, 14, 16, 0, 0, time.UTC) }
	if err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "store degraded"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["level"] != "WARNING" || got["sent_at"] != "2024-03-01T14:16:00Z" {
		t.Errorf("payload = %v", got)
	}
	for _, k := range []string{"kind", "price", "take_profit", "stop_loss", "bar_time"} {
		if _, ok := got[k]; ok {
			t.Errorf("plain alert carries %q: %v", k, got)
		}
	}
}

func TestWebhookNotifier_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.apiURL = srv.URL
	if err := n.Send(context.Background(), SignalAlert("GC=F", testSignal())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if !strings.Contains(body, `"chat_id":"42"`) || !strings.Contains(body, `GC\\=F`) {
		t.Errorf("body = %s", body)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("2650.5 (TP)"); got != `2650\.5 \(TP\)` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Send(context.Context, Alert) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &stubNotifier{}, &stubNotifier{err: boom}, &stubNotifier{}

	err := Multi{a, b, c}.Send(context.Background(), Alert{Title: "t"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Errorf("calls = %d %d %d, want all attempted", a.calls, b.calls, c.calls)
	}
	if err := (Multi{a}).Send(context.Background(), Alert{}); err != nil {
		t.Errorf("err = %v", err)
	}
}
