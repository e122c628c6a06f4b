package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments of the signal daemon.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: outcome=ok|fetch_error|insufficient_data|invalid_data
	FetchDur      prometheus.Histogram
	FetchFailures prometheus.Counter
	SignalsTotal  *prometheus.CounterVec // labels: kind
	LoopState     prometheus.Gauge       // poller.State value

	// Ledger
	PersistedTotal   prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	RaceWindowsTotal prometheus.Counter
	PersistFailures  prometheus.Counter
	AppendDur        prometheus.Histogram

	// Store circuit breaker
	StoreBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	StoreBreakerTrips prometheus.Counter

	// Gateway
	WSClients      prometheus.Gauge
	ManualTriggers prometheus.Counter
	NotifyFailures prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_cycles_total",
			Help: "Poll cycles completed, by outcome",
		}, []string{"outcome"}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_fetch_duration_seconds",
			Help:    "Bar feed request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_fetch_failures_total",
			Help: "Bar feed requests that failed or timed out",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_total",
			Help: "Classifications produced, by kind",
		}, []string{"kind"}),
		LoopState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_loop_state",
			Help: "Poll loop state (0=idle, 1=fetching, 2=evaluating, 3=persisting, 4=sleeping)",
		}),

		PersistedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_history_appended_total",
			Help: "Signals appended to the history table",
		}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_history_duplicates_total",
			Help: "Appends skipped because the bar timestamp was already recorded",
		}),
		RaceWindowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_history_race_windows_total",
			Help: "Appends that lost to or collided with a concurrent overwrite",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_history_failures_total",
			Help: "Appends that failed with a table error",
		}),
		AppendDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_history_append_duration_seconds",
			Help:    "Read, re-check, overwrite and verify latency",
			Buckets: prometheus.DefBuckets,
		}),

		StoreBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_store_circuit_breaker_state",
			Help: "History table circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		StoreBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_store_circuit_breaker_trips_total",
			Help: "Times the history table circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		ManualTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_manual_triggers_total",
			Help: "Accepted operator refresh requests",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_notify_failures_total",
			Help: "Signal alerts that could not be delivered",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.FetchDur,
		m.FetchFailures,
		m.SignalsTotal,
		m.LoopState,
		m.PersistedTotal,
		m.DuplicatesTotal,
		m.RaceWindowsTotal,
		m.PersistFailures,
		m.AppendDur,
		m.StoreBreakerState,
		m.StoreBreakerTrips,
		m.WSClients,
		m.ManualTriggers,
		m.NotifyFailures,
	)
	return m
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// HealthStatus tracks feed and store liveness for /api/health.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleAt    time.Time
	LastFetchOK    bool
	LastFetchError string
	StoreOK        bool
	StoreLatencyMs float64
	LastCheckAt    time.Time
	StartedAt      time.Time
}

// NewHealthStatus returns a health status with the store assumed healthy
// until the first probe says otherwise.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), StoreOK: true}
}

// RecordFetch records the outcome of a cycle's feed request.
func (h *HealthStatus) RecordFetch(at time.Time, err error) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.LastFetchOK = err == nil
	h.LastFetchError = ""
	if err != nil {
		h.LastFetchError = err.Error()
	}
	h.mu.Unlock()
}

func (h *HealthStatus) setStore(ok bool, latency time.Duration) {
	h.mu.Lock()
	h.StoreOK = ok
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.setStore(err == nil, time.Since(start))
}

// CheckSQLite pings the database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	h.setStore(err == nil, time.Since(start))
}

// StartLivenessChecker probes whichever store is configured every interval.
// Both arguments may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	if rdb == nil && sqlDB == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles GET /api/health.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if !h.LastCycleAt.IsZero() && !h.LastFetchOK {
		overall = "degraded"
	}
	if !h.StoreOK {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	lastCycle := ""
	if !h.LastCycleAt.IsZero() {
		lastCycle = h.LastCycleAt.UTC().Format(time.RFC3339)
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		LastCycleAt    string  `json:"last_cycle_at"`
		LastFetchOK    bool    `json:"last_fetch_ok"`
		LastFetchError string  `json:"last_fetch_error,omitempty"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
	}{
		Status:         overall,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		LastCycleAt:    lastCycle,
		LastFetchOK:    h.LastFetchOK,
		LastFetchError: h.LastFetchError,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}
