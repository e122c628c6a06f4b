package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"xau-signal/internal/metrics"
	"xau-signal/internal/model"
	"xau-signal/internal/poller"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type fakeLoop struct {
	mu       sync.Mutex
	ev       *poller.Evaluation
	triggers int
}

func (f *fakeLoop) Latest() (poller.Evaluation, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ev == nil {
		return poller.Evaluation{}, false
	}
	return *f.ev, true
}

func (f *fakeLoop) set(ev poller.Evaluation) {
	f.mu.Lock()
	f.ev = &ev
	f.mu.Unlock()
}

func (f *fakeLoop) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

func (f *fakeLoop) State() poller.State { return poller.StateSleeping }

func (f *fakeLoop) Trigger() {
	f.mu.Lock()
	f.triggers++
	f.mu.Unlock()
}

type fakeHistory struct {
	entries []model.HistoryEntry
	err     error
}

func (f fakeHistory) ReadAll(context.Context) ([]model.HistoryEntry, error) {
	return f.entries, f.err
}

func sampleEval(kind model.Kind) poller.Evaluation {
	return poller.Evaluation{
		TraceID: "GC=F-1",
		Symbol:  "GC=F",
		Signal:  &model.Signal{TS: time.Date(2024, 3, 1, 14, 15, 0, 0, time.UTC), Kind: kind, Price: 2650},
		News:    []model.NewsItem{},
	}
}

type testEnv struct {
	srv     *httptest.Server
	loop    *fakeLoop
	hub     *Hub
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, hist HistoryReader, secret string) *testEnv {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	env := &testEnv{loop: &fakeLoop{}, hub: NewHub(8, m), metrics: m}

	mux := http.NewServeMux()
	RegisterRoutes(mux, Options{
		Loop:           env.loop,
		History:        hist,
		Hub:            env.hub,
		Health:         metrics.NewHealthStatus(),
		Metrics:        m,
		MetricsHandler: metrics.Handler(reg),
		TOTPSecret:     secret,
	})
	env.srv = httptest.NewServer(mux)
	t.Cleanup(env.srv.Close)
	return env
}

func TestEvaluationEndpoint(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, "")

	resp, err := http.Get(env.srv.URL + "/api/evaluation")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("before first cycle: status %d, want 503", resp.StatusCode)
	}

	env.loop.set(sampleEval(model.KindBuy))
	resp, err = http.Get(env.srv.URL + "/api/evaluation")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK || body["state"] != "SLEEPING" || body["trace_id"] != "GC=F-1" {
		t.Fatalf("status %d body %v", resp.StatusCode, body)
	}
	sig, _ := body["signal"].(map[string]any)
	if sig["kind"] != "BUY" {
		t.Errorf("signal = %v", sig)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var entries []model.HistoryEntry
	for i := 0; i < 5; i++ {
		entries = append(entries, model.HistoryEntry{TS: base.Add(time.Duration(i) * 15 * time.Minute), Kind: model.KindSell, Price: 2600 + float64(i)})
	}
	env := newTestEnv(t, fakeHistory{entries: entries}, "")

	resp, err := http.Get(env.srv.URL + "/api/history?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []model.HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Price != 2603 || got[1].Price != 2604 {
		t.Fatalf("got %+v, want the two newest oldest-first", got)
	}

	resp2, _ := http.Get(env.srv.URL + "/api/history?limit=x")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp2.StatusCode)
	}
}

func TestHistoryEndpoint_StoreError(t *testing.T) {
	env := newTestEnv(t, fakeHistory{err: errors.New("persistence failure: read: timeout")}, "")
	resp, err := http.Get(env.srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, "")

	resp, err := http.Get(env.srv.URL + "/api/refresh")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post(env.srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || env.loop.count() != 1 {
		t.Fatalf("status %d triggers %d", resp.StatusCode, env.loop.count())
	}
	if got := testutil.ToFloat64(env.metrics.ManualTriggers); got != 1 {
		t.Errorf("manual triggers metric = %v", got)
	}
}

func TestRefresh_TOTP(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, testSecret)

	post := func(code string) int {
		req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/refresh", nil)
		if code != "" {
			req.Header.Set("X-TOTP", code)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post(""); code != http.StatusUnauthorized {
		t.Errorf("missing code: status %d", code)
	}
	if code := post("000000x"); code != http.StatusUnauthorized {
		t.Errorf("bad code: status %d", code)
	}
	valid, err := totp.GenerateCode(testSecret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if code := post(valid); code != http.StatusAccepted {
		t.Errorf("valid code: status %d", code)
	}
	if n := env.loop.count(); n != 1 {
		t.Errorf("triggers = %d, want 1", n)
	}
}

func TestMetricsAndHealthRoutes(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, "")
	for _, path := range []string{"/metrics", "/api/health"} {
		resp, err := http.Get(env.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func dial(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return env
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketPush(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, "")
	conn := dial(t, env, "")
	waitClients(t, env.hub, 1)

	env.hub.Publish(sampleEval(model.KindSell))
	got := readEnvelope(t, conn)
	if got.Type != "evaluation" || got.Seq != 1 || got.Data == nil || got.Data.Signal.Kind != model.KindSell {
		t.Fatalf("envelope = %+v", got)
	}
	if v := testutil.ToFloat64(env.metrics.WSClients); v != 1 {
		t.Errorf("ws clients gauge = %v", v)
	}
}

func TestWebSocketInitialAndResume(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, "")
	for i := 0; i < 3; i++ {
		env.hub.Publish(sampleEval(model.KindWait))
	}

	fresh := dial(t, env, "")
	if got := readEnvelope(t, fresh); got.Seq != 3 || !got.Initial {
		t.Fatalf("fresh client got %+v, want initial seq 3", got)
	}

	resumed := dial(t, env, "?since_seq=1")
	for _, want := range []int64{2, 3} {
		if got := readEnvelope(t, resumed); got.Seq != want {
			t.Fatalf("resumed client got seq %d, want %d", got.Seq, want)
		}
	}
}

func TestWebSocketPing(t *testing.T) {
	env := newTestEnv(t, fakeHistory{}, "")
	conn := dial(t, env, "")
	waitClients(t, env.hub, 1)

	if err := conn.WriteJSON(map[string]any{"type": "ping", "ping": 42}); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(msg), `"pong":42`) {
		t.Errorf("reply = %s", msg)
	}
}
