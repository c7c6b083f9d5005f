package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skylineops/invoice-alerts/internal/config"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
	"github.com/skylineops/invoice-alerts/internal/core/usecase"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/doccache"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/notify/slack"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/queue/nats"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/repository/postgres"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/resilience"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/storage/s3"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Notifier ports.Notifier
	DocRepo  ports.DocumentRepository

	Creator  ports.AlertCreator
	Flusher  ports.AlertFlusher
	Alerts   ports.AlertLister
	Invoices ports.InvoiceReader

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	tables := postgres.Tables{
		Rules:     cfg.RulesTable,
		Alerts:    cfg.AlertsTable,
		Events:    cfg.EventsTable,
		Invoices:  cfg.InvoicesTable,
		Documents: cfg.DocumentsTable,
	}
	if err := postgres.EnsureSchema(ctx, db, tables); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ruleRepo := postgres.NewRuleRepository(db, tables, executor)
	invoiceRepo := postgres.NewInvoiceRepository(db, tables, executor)
	alertRepo := postgres.NewAlertRepository(db, tables, executor)
	eventRepo := postgres.NewEventRepository(db, tables)

	var docRepo ports.DocumentRepository = postgres.NewDocumentRepository(db, tables)
	docRepo = doccache.New(docRepo, time.Duration(cfg.DocCacheTTLSeconds)*time.Second)

	storage, err := s3.New(s3.Options{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSParsedSubject, cfg.NATSDeliveredSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	notifier := slack.New(cfg.SlackWebhookURL, slack.Options{
		Timeout:            time.Duration(cfg.SlackTimeoutSeconds) * time.Second,
		RequestsPerSecond:  cfg.SlackRatePerSecond,
		Burst:              cfg.SlackRateBurst,
		ResilienceExecutor: resilience.NewExecutor(resilience.NoRetryConfig()),
		Debug:              cfg.DebugErrors,
	})
	if !notifier.Configured() {
		slog.Warn("slack webhook not configured, deliveries will fail until it is set")
	}

	signedURLExpiry := time.Duration(cfg.SignedURLExpMinutes) * time.Minute

	creator := usecase.NewCreateAlertsUseCase(ruleRepo, invoiceRepo, alertRepo, eventRepo)
	flusher := usecase.NewFlushAlertsUseCase(
		ruleRepo, invoiceRepo, alertRepo, docRepo, eventRepo,
		notifier, storage, queue, signedURLExpiry, cfg.DebugErrors,
	)
	alerts := usecase.NewListAlertsUseCase(ruleRepo, invoiceRepo, alertRepo, docRepo, eventRepo, cfg.DebugErrors)
	invoices := usecase.NewListInvoicesUseCase(invoiceRepo, docRepo, storage, signedURLExpiry)

	return &App{
		Config: cfg,

		Queue:    queue,
		Notifier: notifier,
		DocRepo:  docRepo,

		Creator:  creator,
		Flusher:  flusher,
		Alerts:   alerts,
		Invoices: invoices,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
