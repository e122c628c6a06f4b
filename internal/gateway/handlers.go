// Package gateway is the operator surface: REST endpoints for the latest
// evaluation and the signal history, a WebSocket push of every
// evaluation, a manual refresh trigger and the metrics endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"xau-signal/internal/metrics"
	"xau-signal/internal/model"
	"xau-signal/internal/poller"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Evaluator is the poll loop as seen by the gateway.
type Evaluator interface {
	Latest() (poller.Evaluation, bool)
	State() poller.State
	Trigger()
}

// HistoryReader lists recorded signals oldest first.
type HistoryReader interface {
	ReadAll(ctx context.Context) ([]model.HistoryEntry, error)
}

// Options configure the gateway routes.
type Options struct {
	Loop    Evaluator
	History HistoryReader
	Hub     *Hub
	Health  *metrics.HealthStatus
	Metrics *metrics.Metrics
	// Metrics exposition; nil disables /metrics.
	MetricsHandler http.Handler
	// TOTPSecret, when set, protects POST /api/refresh.
	TOTPSecret string
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-TOTP")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// allow handles CORS preflight and rejects other methods.
func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// RegisterRoutes registers all HTTP routes on mux.
func RegisterRoutes(mux *http.ServeMux, o Options) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if s := r.URL.Query().Get("since_seq"); s != "" {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid since_seq")
				return
			}
			since = n
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		o.Hub.Register(conn, since)
	})

	mux.HandleFunc("/api/evaluation", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		ev, ok := o.Loop.Latest()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "no evaluation yet",
				"state": o.Loop.State().String(),
			})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			poller.Evaluation
			State string `json:"state"`
		}{ev, o.Loop.State().String()})
	})

	// ?limit=N returns the N most recent entries, still oldest first.
	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		entries, err := o.History.ReadAll(ctx)
		if err != nil {
			log.Printf("[gateway] history read failed: %v", err)
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		if limit > 0 && len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if o.TOTPSecret != "" {
			code := strings.TrimSpace(r.Header.Get("X-TOTP"))
			if code == "" {
				code = strings.TrimSpace(r.FormValue("code"))
			}
			if code == "" || !totp.Validate(code, o.TOTPSecret) {
				writeError(w, http.StatusUnauthorized, "invalid one-time code")
				return
			}
		}
		o.Loop.Trigger()
		if o.Metrics != nil {
			o.Metrics.ManualTriggers.Inc()
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
	})

	if o.Health != nil {
		mux.Handle("/api/health", o.Health)
	}
	if o.MetricsHandler != nil {
		mux.Handle("/metrics", o.MetricsHandler)
	}
}

// Server runs the gateway HTTP server.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[gateway] listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[gateway] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
