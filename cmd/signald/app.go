package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"xau-signal/config"
	"xau-signal/internal/history"
	"xau-signal/internal/indicator"
	"xau-signal/internal/logger"
	"xau-signal/internal/marketdata/binance"
	"xau-signal/internal/marketdata/yahoo"
	"xau-signal/internal/markethours"
	"xau-signal/internal/metrics"
	"xau-signal/internal/model"
	"xau-signal/internal/notification"
	"xau-signal/internal/poller"
	"xau-signal/internal/store"
	"xau-signal/internal/store/memory"
	redisstore "xau-signal/internal/store/redis"
	sqlitestore "xau-signal/internal/store/sqlite"
	"xau-signal/internal/strategy"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	guarded *store.GuardedTable
	history *history.Store

	rdb     *goredis.Client
	sqlDB   *sql.DB
	closers []func() error
}

// newApp loads configuration, initialises logging and opens the history
// table. With dryRun the table is in-memory regardless of config.
func newApp(dryRun bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.Init("signald", level)

	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(prometheus.DefaultRegisterer),
		health:  metrics.NewHealthStatus(),
	}

	backend := cfg.Store.Backend
	if dryRun {
		backend = config.StoreMemory
	}
	table, err := a.openTable(backend)
	if err != nil {
		return nil, err
	}

	cb := store.NewCircuitBreaker(cfg.Store.BreakerFailures, cfg.BreakerReset())
	cb.OnStateChange = func(from, to store.State) {
		a.metrics.StoreBreakerState.Set(float64(to))
		if to == store.StateOpen {
			a.metrics.StoreBreakerTrips.Inc()
		}
		log.Warn("store circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	a.guarded = store.Guard(table, cb)
	a.history = history.NewStore(a.guarded, cfg.WorkerID, log)

	log.Info("signald configured",
		slog.String("symbol", cfg.Symbol),
		slog.String("interval", cfg.Interval),
		slog.String("feed", cfg.Feed),
		slog.String("strategy", cfg.Strategy),
		slog.String("store", backend),
		slog.String("worker_id", cfg.WorkerID))
	return a, nil
}

func (a *app) openTable(backend string) (model.Table, error) {
	sc := a.cfg.Store
	switch backend {
	case config.StoreSQLite:
		if dir := filepath.Dir(sc.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		t, err := sqlitestore.Open(sqlitestore.TableConfig{DBPath: sc.SQLitePath, Sheet: sc.Sheet})
		if err != nil {
			return nil, err
		}
		a.sqlDB = t.DB()
		a.closers = append(a.closers, t.Close)
		return t, nil
	case config.StoreRedis:
		t, err := redisstore.New(redisstore.TableConfig{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			Key:      "sheet:" + sc.Sheet,
		})
		if err != nil {
			return nil, err
		}
		a.rdb = t.Client()
		a.closers = append(a.closers, t.Close)
		return t, nil
	default:
		return memory.NewTable(), nil
	}
}

// newLoop builds the poll loop over the app's history store.
func (a *app) newLoop() (*poller.Loop, error) {
	cfg := a.cfg
	classifier, err := strategy.New(cfg.Strategy, cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	deps := poller.Deps{
		Engine:     indicator.NewEngine(cfg.IndicatorConfig()),
		Classifier: classifier,
		History:    a.history,
		Notifier:   a.notifier(),
		Metrics:    a.metrics,
		Health:     a.health,
		Session:    markethours.COMEX(),
		Logger:     a.log,
	}
	switch cfg.Feed {
	case config.FeedBinance:
		deps.Feed = binance.NewFeed(cfg.BinanceBaseURL)
	default:
		y := yahoo.NewClient()
		deps.Feed = y
		deps.News = y
	}

	return poller.New(poller.Config{
		Query: model.BarQuery{
			Symbol:   cfg.Symbol,
			Interval: cfg.Interval,
			Lookback: cfg.Lookback,
		},
		PollInterval:   cfg.PollInterval(),
		FetchTimeout:   cfg.FetchTimeout(),
		NewsLimit:      cfg.NewsLimit,
		Risk:           cfg.Risk,
		SkipWhenClosed: cfg.SkipWhenClosed,
	}, deps)
}

func (a *app) notifier() notification.Notifier {
	n := a.cfg.Notify
	var out notification.Multi
	if n.Log {
		out = append(out, notification.NewLogNotifier())
	}
	if n.WebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(n.WebhookURL))
	}
	if n.TelegramToken != "" {
		out = append(out, notification.NewTelegramNotifier(n.TelegramToken, n.TelegramChatID))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", slog.Any("error", err))
		}
	}
}
