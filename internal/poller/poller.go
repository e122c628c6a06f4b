// Package poller runs the detection cycle: fetch bars, compute indicators,
// classify the latest bar, size the trade and record new signals.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"xau-signal/internal/history"
	"xau-signal/internal/indicator"
	"xau-signal/internal/logger"
	"xau-signal/internal/metrics"
	"xau-signal/internal/model"
	"xau-signal/internal/notification"
	"xau-signal/internal/risk"
	"xau-signal/internal/strategy"
)

// Config holds the loop settings.
type Config struct {
	Query        model.BarQuery
	PollInterval time.Duration
	FetchTimeout time.Duration
	NewsLimit    int
	Risk         risk.Params

	// SkipWhenClosed suppresses scheduled cycles while Session reports the
	// market closed, once a first evaluation exists. Manual triggers still run.
	SkipWhenClosed bool
}

// Session reports exchange trading hours.
type Session interface {
	IsOpen(t time.Time) bool
	Status(t time.Time) string
}

// Deps are the loop's collaborators. Feed, Engine, Classifier and History
// are required; the rest may be nil.
type Deps struct {
	Feed       model.BarFeed
	News       model.NewsFeed
	Engine     *indicator.Engine
	Classifier strategy.Classifier
	History    *history.Store
	Notifier   notification.Notifier
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Session    Session
	Logger     *slog.Logger
}

// Evaluation is the outcome of one cycle, as shown to operators.
type Evaluation struct {
	TraceID      string                   `json:"trace_id"`
	Symbol       string                   `json:"symbol"`
	Strategy     string                   `json:"strategy"`
	EvaluatedAt  time.Time                `json:"evaluated_at"`
	Market       string                   `json:"market,omitempty"`
	Signal       *model.Signal            `json:"signal,omitempty"`
	Snapshot     *model.IndicatorSnapshot `json:"snapshot,omitempty"`
	Plan         *risk.Plan               `json:"plan,omitempty"`
	RiskAmount   float64                  `json:"risk_amount"`
	RiskError    string                   `json:"risk_error,omitempty"`
	News         []model.NewsItem         `json:"news"`
	Error        string                   `json:"error,omitempty"`
	Persisted    bool                     `json:"persisted"`
	PersistError string                   `json:"persist_error,omitempty"`

	// Err is the cycle's data-layer or computation error, if any.
	Err error `json:"-"`
}

// Loop is the poll loop. One goroutine drives Run; Latest, State and
// Trigger are safe to call from others.
type Loop struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	cycleMu sync.Mutex // serialises cycles
	trigger chan struct{}

	mu     sync.RWMutex
	state  State
	latest *Evaluation

	// OnStateChange is called after every transition.
	OnStateChange func(from, to State)
	// OnEvaluation is called with every completed cycle.
	OnEvaluation func(Evaluation)

	now func() time.Time
}

// New validates cfg and creates a loop.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Feed == nil || deps.Engine == nil || deps.Classifier == nil || deps.History == nil {
		return nil, errors.New("poller: feed, engine, classifier and history are required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poller: poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("poller: fetch timeout must be positive, got %s", cfg.FetchTimeout)
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	l := &Loop{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.With(slog.String("component", "poller"), slog.String("symbol", cfg.Query.Symbol)),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
	if m := deps.Metrics; m != nil {
		deps.History.OnDuplicate = func(time.Time) { m.DuplicatesTotal.Inc() }
		deps.History.OnRace = func(time.Time) { m.RaceWindowsTotal.Inc() }
	}
	return l, nil
}

// Run cycles until ctx is cancelled, sleeping PollInterval between cycles.
// A Trigger cuts the sleep short. Fetch failures are retried on the next
// tick at the same interval.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll loop started",
		slog.String("interval", l.cfg.PollInterval.String()),
		slog.String("strategy", l.deps.Classifier.Name()))
	defer l.setState(StateIdle)

	manual := false
	for {
		if !manual && l.skipClosed() {
			l.log.Debug("market closed, skipping scheduled cycle")
		} else {
			l.cycle(ctx)
		}
		manual = false
		if ctx.Err() != nil {
			l.log.Info("poll loop stopped")
			return nil
		}

		l.setState(StateSleeping)
		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.log.Info("poll loop stopped")
			return nil
		case <-l.trigger:
			timer.Stop()
			manual = true
			l.log.Info("manual refresh")
		case <-timer.C:
		}
		l.setState(StateIdle)
	}
}

// RunOnce performs a single cycle and returns to IDLE.
func (l *Loop) RunOnce(ctx context.Context) Evaluation {
	ev := l.cycle(ctx)
	l.setState(StateIdle)
	return ev
}

// Trigger requests an immediate cycle. It never blocks; triggers that
// arrive while one is pending are coalesced.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Latest returns the most recent evaluation, if any.
func (l *Loop) Latest() (Evaluation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.latest == nil {
		return Evaluation{}, false
	}
	return *l.latest, true
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) skipClosed() bool {
	if !l.cfg.SkipWhenClosed || l.deps.Session == nil || l.deps.Session.IsOpen(l.now()) {
		return false
	}
	_, ok := l.Latest()
	return ok
}

func (l *Loop) setState(to State) {
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()
	if from == to {
		return
	}
	if m := l.deps.Metrics; m != nil {
		m.LoopState.Set(float64(to))
	}
	if l.OnStateChange != nil {
		l.OnStateChange(from, to)
	}
}

func (l *Loop) cycle(ctx context.Context) Evaluation {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	start := l.now()
	ev := Evaluation{
		TraceID:     logger.GenerateTraceID(l.cfg.Query.Symbol, start),
		Symbol:      l.cfg.Query.Symbol,
		Strategy:    l.deps.Classifier.Name(),
		EvaluatedAt: start.UTC(),
		News:        []model.NewsItem{},
	}
	if l.deps.Session != nil {
		ev.Market = l.deps.Session.Status(start)
	}
	ctx = logger.WithTraceID(ctx, ev.TraceID)
	log := l.log.With(logger.LogWithTrace(ctx)...)

	outcome := l.evaluate(ctx, log, &ev)
	if m := l.deps.Metrics; m != nil {
		m.CyclesTotal.WithLabelValues(outcome).Inc()
	}

	if ctx.Err() == nil {
		l.publish(ev)
	}
	return ev
}

// evaluate runs one pass through the states and reports the cycle outcome label.
func (l *Loop) evaluate(ctx context.Context, log *slog.Logger, ev *Evaluation) string {
	l.setState(StateFetching)
	bars, err := l.fetch(ctx)
	if l.deps.Health != nil {
		l.deps.Health.RecordFetch(l.now(), err)
	}
	if err != nil {
		ev.fail(err)
		log.Warn("fetch failed, retrying next tick", slog.Any("error", err))
		return "fetch_error"
	}
	ev.News = l.news(ctx, log)
	if ctx.Err() != nil {
		ev.fail(ctx.Err())
		return "cancelled"
	}

	l.setState(StateEvaluating)
	ev.RiskAmount, err = risk.RiskAmount(l.cfg.Risk)
	if err != nil {
		ev.RiskError = err.Error()
	}

	snaps, err := l.deps.Engine.Compute(bars)
	switch {
	case errors.Is(err, indicator.ErrInsufficientData):
		// Not enough history yet: report WAIT on the newest bar.
		ev.fail(err)
		if n := len(bars); n > 0 {
			ev.Signal = &model.Signal{TS: bars[n-1].TS, Kind: model.KindWait, Price: bars[n-1].Close}
			l.countSignal(model.KindWait)
		}
		log.Info("insufficient data", slog.Int("bars", len(bars)), slog.Int("need", l.deps.Engine.MinBars()))
		return "insufficient_data"
	case err != nil:
		ev.fail(err)
		log.Warn("rejected bar sequence", slog.Any("error", err))
		return "invalid_data"
	}

	last := snaps[len(snaps)-1]
	ev.Snapshot = &last
	sig := model.Signal{TS: last.TS, Kind: l.deps.Classifier.Classify(snaps), Price: last.Close}
	if sig.Kind.Directional() {
		plan, err := risk.Calculate(sig.Kind, sig.Price, l.cfg.Risk)
		if err != nil {
			ev.RiskError = err.Error()
		} else {
			ev.Plan = &plan
			sig.Targets = plan.Targets()
		}
	}
	ev.Signal = &sig
	l.countSignal(sig.Kind)
	log.Info("classified", slog.String("kind", string(sig.Kind)),
		slog.Float64("price", sig.Price), slog.Time("bar", sig.TS))

	if !sig.Kind.Directional() {
		return "ok"
	}
	if ctx.Err() != nil {
		ev.fail(ctx.Err())
		return "cancelled"
	}

	l.setState(StatePersisting)
	l.persist(ctx, log, ev, sig)
	return "ok"
}

func (l *Loop) fetch(ctx context.Context) ([]model.Bar, error) {
	fctx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	bars, err := l.deps.Feed.Bars(fctx, l.cfg.Query)
	if m := l.deps.Metrics; m != nil {
		m.FetchDur.Observe(time.Since(start).Seconds())
		if err != nil {
			m.FetchFailures.Inc()
		}
	}
	if err != nil && !errors.Is(err, model.ErrFetchFailure) {
		err = fmt.Errorf("%w: %w", model.ErrFetchFailure, err)
	}
	return bars, err
}

// news is best effort: a failing news feed never fails the cycle.
func (l *Loop) news(ctx context.Context, log *slog.Logger) []model.NewsItem {
	if l.deps.News == nil || l.cfg.NewsLimit <= 0 {
		return []model.NewsItem{}
	}
	nctx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()

	items, err := l.deps.News.News(nctx, l.cfg.Query.Symbol, l.cfg.NewsLimit)
	if err != nil {
		log.Debug("news unavailable", slog.Any("error", err))
		return []model.NewsItem{}
	}
	if items == nil {
		items = []model.NewsItem{}
	}
	return items
}

func (l *Loop) persist(ctx context.Context, log *slog.Logger, ev *Evaluation, sig model.Signal) {
	start := time.Now()
	ok, err := l.deps.History.Append(ctx, sig.Entry(l.deps.History.Writer()))
	m := l.deps.Metrics
	if m != nil {
		m.AppendDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		ev.PersistError = err.Error()
		if ev.Err == nil {
			ev.Err = err
		}
		if m != nil {
			m.PersistFailures.Inc()
		}
		log.Error("could not record signal", slog.Any("error", err))
		return
	}
	ev.Persisted = ok
	if !ok {
		return
	}
	if m != nil {
		m.PersistedTotal.Inc()
	}
	if l.deps.Notifier != nil {
		if err := l.deps.Notifier.Send(ctx, notification.SignalAlert(l.cfg.Query.Symbol, sig)); err != nil {
			log.Warn("signal alert not delivered", slog.Any("error", err))
			if m != nil {
				m.NotifyFailures.Inc()
			}
		}
	}
}

func (l *Loop) countSignal(k model.Kind) {
	if m := l.deps.Metrics; m != nil {
		m.SignalsTotal.WithLabelValues(string(k)).Inc()
	}
}

func (l *Loop) publish(ev Evaluation) {
	l.mu.Lock()
	l.latest = &ev
	l.mu.Unlock()
	if l.OnEvaluation != nil {
		l.OnEvaluation(ev)
	}
}

func (ev *Evaluation) fail(err error) {
	ev.Err = err
	ev.Error = err.Error()
}
