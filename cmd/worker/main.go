package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skylineops/invoice-alerts/internal/bootstrap"
	"github.com/skylineops/invoice-alerts/internal/config"
	"github.com/skylineops/invoice-alerts/internal/observability/logging"
	"github.com/skylineops/invoice-alerts/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("invoice-alerts-worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	m := metrics.NewHTTPServerMetrics("worker")
	go serveMetrics(cfg.WorkerMetricsPort, m)

	slog.Info("worker_subscribed", "subject", cfg.NATSParsedSubject)
	err = app.Queue.SubscribeInvoiceParsed(ctx, func(handlerCtx context.Context, documentID string) error {
		runCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
		defer cancel()

		start := time.Now()
		summary, err := app.Creator.RunForDocument(runCtx, documentID)
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.RecordJobRun("worker", "run_for_document", status, time.Since(start))
		if err != nil {
			return err
		}

		m.RecordAlertCreation("worker", summary.Created, summary.Upgraded)
		slog.Info("invoice_processed",
			"document_id", documentID,
			"created", summary.Created,
			"upgraded", summary.Upgraded,
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}

func serveMetrics(port string, m *metrics.HTTPServerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("worker_metrics_server_error", "error", err)
	}
}
