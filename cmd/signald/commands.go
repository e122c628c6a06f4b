package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"xau-signal/internal/gateway"
	"xau-signal/internal/metrics"
	"xau-signal/internal/model"
	"xau-signal/internal/poller"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the poll loop and the operator gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			loop, err := a.newLoop()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hub := gateway.NewHub(32, a.metrics)
			loop.OnEvaluation = hub.Publish

			mux := http.NewServeMux()
			gateway.RegisterRoutes(mux, gateway.Options{
				Loop:           loop,
				History:        a.history,
				Hub:            hub,
				Health:         a.health,
				Metrics:        a.metrics,
				MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
				TOTPSecret:     a.cfg.TOTPSecret,
			})
			srv := gateway.NewServer(a.cfg.HTTPAddr, mux)
			srv.Start()

			a.health.StartLivenessChecker(ctx, a.rdb, a.sqlDB, 15*time.Second)

			err = loop.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.Stop(shutdownCtx); serr != nil {
				a.log.Warn("gateway shutdown", slog.Any("error", serr))
			}
			a.log.Info("signald stopped")
			return err
		},
	}
}

func evaluateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one detection cycle and print the evaluation as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			loop, err := a.newLoop()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ev := loop.RunOnce(ctx)
			fmt.Fprintln(cmd.ErrOrStderr(), evaluationSummary(ev))
			if err := printJSON(cmd.OutOrStdout(), ev); err != nil {
				return err
			}
			if ev.Err != nil && ev.Signal == nil {
				return ev.Err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use an in-memory history table instead of the configured store")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the recorded signal history",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			entries, err := a.history.ReadAll(ctx)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only print the N most recent entries")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHistory(w io.Writer, entries []model.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tKIND\tPRICE\tTAKE PROFIT\tSTOP LOSS\tWRITER")
	for _, e := range entries {
		tp, sl := "-", "-"
		if e.Targets != nil {
			tp = strconv.FormatFloat(e.Targets.TakeProfit, 'f', 2, 64)
			sl = strconv.FormatFloat(e.Targets.StopLoss, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
			e.TS.UTC().Format(time.RFC3339), e.Kind, e.Price, tp, sl, e.Writer)
	}
	return tw.Flush()
}

// evaluationSummary renders ev on one line.
func evaluationSummary(ev poller.Evaluation) string {
	if ev.Signal == nil {
		return fmt.Sprintf("%s: no signal (%s)", ev.Symbol, ev.Error)
	}
	s := fmt.Sprintf("%s %s @ %.2f", ev.Symbol, ev.Signal.Kind, ev.Signal.Price)
	if ev.Persisted {
		s += " recorded"
	}
	return s
}
