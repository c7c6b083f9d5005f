package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

// EventRepository appends diagnostic events. Recording is best-effort: a
// failed insert is logged and swallowed so diagnostics never break a job.
type EventRepository struct {
	db    *sql.DB
	table string
}

func NewEventRepository(db *sql.DB, tables Tables) *EventRepository {
	return &EventRepository{db: db, table: tables.normalize().Events}
}

func (r *EventRepository) Record(ctx context.Context, event domain.Event) {
	if event.FiredAt.IsZero() {
		event.FiredAt = time.Now().UTC()
	}

	var payload []byte
	if event.Payload != nil {
		b, err := json.Marshal(event.Payload)
		if err != nil {
			slog.Warn("event_payload_marshal_failed", "event_type", event.Type, "error", err)
		} else {
			payload = b
		}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (event_type, document_id, rule_id, parsed_invoice_id, slack_ts, fired_at, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		event.Type, event.DocumentID,
		nullableText(event.RuleID), nullableText(event.ParsedInvoiceID), nullableText(event.SlackTS),
		event.FiredAt, payload,
	)
	if err != nil {
		slog.Warn("event_record_failed", "event_type", event.Type, "document_id", event.DocumentID, "error", err)
	}
}
