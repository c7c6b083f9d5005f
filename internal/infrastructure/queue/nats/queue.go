package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/skylineops/invoice-alerts/internal/infrastructure/resilience"
)

// Queue connects the service to the parsing pipeline's event stream. The
// worker consumes invoice-parsed events through a queue group, so multiple
// replicas share the stream without double-processing.
type Queue struct {
	conn             *nats.Conn
	parsedSubject    string
	deliveredSubject string
	executor         *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, parsedSubject, deliveredSubject string) (*Queue, error) {
	return NewWithOptions(url, parsedSubject, deliveredSubject, Options{})
}

func NewWithOptions(url, parsedSubject, deliveredSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("invoice-alerts"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:             conn,
		parsedSubject:    parsedSubject,
		deliveredSubject: deliveredSubject,
		executor:         options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

type deliveredEvent struct {
	AlertID    string `json:"alert_id"`
	DocumentID string `json:"document_id"`
}

// PublishAlertDelivered announces a completed Slack send to downstream
// consumers (audit, billing reconciliation).
func (q *Queue) PublishAlertDelivered(ctx context.Context, alertID, documentID string) error {
	payload, err := json.Marshal(deliveredEvent{AlertID: alertID, DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("marshal delivered event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.deliveredSubject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeInvoiceParsed consumes invoice-parsed events until ctx is done.
// The message body is the document id of the freshly parsed invoice.
func (q *Queue) SubscribeInvoiceParsed(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.parsedSubject, "alert-workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		documentID := string(msg.Data)
		if err := handler(handlerCtx, documentID); err != nil {
			slog.Error("invoice_parsed_handler_error", "document_id", documentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
