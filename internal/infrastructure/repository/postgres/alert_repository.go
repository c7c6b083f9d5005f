package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/resilience"
)

const uniqueViolationCode = "23505"

type AlertRepository struct {
	db       *sql.DB
	table    string
	executor *resilience.Executor
}

func NewAlertRepository(db *sql.DB, tables Tables, executor *resilience.Executor) *AlertRepository {
	return &AlertRepository{db: db, table: tables.normalize().Alerts, executor: executor}
}

// Insert creates a new alert row. A duplicate (rule_id, parsed_invoice_id)
// surfaces as domain.ErrConstraintViolation so the caller can upgrade the
// existing row instead.
func (r *AlertRepository) Insert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(alert.Evidence)
	if err != nil {
		return fmt.Errorf("marshal match payload: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, created_at, document_id, parsed_invoice_id, rule_id, status, slack_status, slack_error, match_reason, match_payload
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, r.table)

	_, err = r.db.ExecContext(ctx, query,
		alert.ID, alert.CreatedAt, alert.DocumentID, alert.ParsedInvoiceID, alert.RuleID,
		alert.Status, alert.SlackStatus, nullableText(alert.SlackError), alert.MatchReason, payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.WrapError(domain.ErrConstraintViolation, "insert alert", err)
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) GetByRuleAndInvoice(ctx context.Context, ruleID, parsedInvoiceID string) (*domain.Alert, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE rule_id = $1 AND parsed_invoice_id = $2
LIMIT 1
`, alertColumns, r.table)

	var alert *domain.Alert
	err := runRead(ctx, r.executor, "postgres.alert_get", func(ctx context.Context) error {
		var scanErr error
		alert, scanErr = scanAlert(r.db.QueryRowContext(ctx, query, ruleID, parsedInvoiceID))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "alert lookup",
				fmt.Errorf("rule %s invoice %s", ruleID, parsedInvoiceID))
		}
		return nil, err
	}
	return alert, nil
}

func (r *AlertRepository) ListOldest(ctx context.Context, limit int) ([]domain.Alert, error) {
	return r.list(ctx, "ASC", limit)
}

func (r *AlertRepository) ListNewest(ctx context.Context, limit int) ([]domain.Alert, error) {
	return r.list(ctx, "DESC", limit)
}

func (r *AlertRepository) list(ctx context.Context, order string, limit int) ([]domain.Alert, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY created_at %s
LIMIT $1
`, alertColumns, r.table, order)

	var out []domain.Alert
	err := runRead(ctx, r.executor, "postgres.alert_list", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, limit)
		if err != nil {
			return fmt.Errorf("query alerts: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			alert, err := scanAlert(rows)
			if err != nil {
				return err
			}
			out = append(out, *alert)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate alerts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEvidence replaces the cached match evidence and reason. With reopen
// set it also resets delivery to pending and clears the stale error.
func (r *AlertRepository) UpdateEvidence(ctx context.Context, id string, evidence domain.MatchEvidence, reason string, reopen bool) error {
	payload, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("marshal match payload: %w", err)
	}

	var query string
	if reopen {
		query = fmt.Sprintf(`
UPDATE %s
SET match_payload = $2, match_reason = $3, status = $4, slack_status = $5, slack_error = NULL
WHERE id = $1
`, r.table)
		_, err = r.db.ExecContext(ctx, query, id, payload, reason, domain.StatusPending, domain.SlackPending)
	} else {
		query = fmt.Sprintf(`
UPDATE %s
SET match_payload = $2, match_reason = $3
WHERE id = $1
`, r.table)
		_, err = r.db.ExecContext(ctx, query, id, payload, reason)
	}
	if err != nil {
		return fmt.Errorf("update alert evidence: %w", err)
	}
	return nil
}

func (r *AlertRepository) SetDelivery(ctx context.Context, id, slackStatus, slackError string) error {
	query := fmt.Sprintf(`
UPDATE %s
SET slack_status = $2, slack_error = $3
WHERE id = $1
`, r.table)

	if _, err := r.db.ExecContext(ctx, query, id, slackStatus, nullableText(slackError)); err != nil {
		return fmt.Errorf("set alert delivery: %w", err)
	}
	return nil
}

func (r *AlertRepository) FinalizeDelivery(ctx context.Context, id, slackStatus, status, slackError string) error {
	query := fmt.Sprintf(`
UPDATE %s
SET slack_status = $2, status = $3, slack_error = $4
WHERE id = $1
`, r.table)

	if _, err := r.db.ExecContext(ctx, query, id, slackStatus, status, nullableText(slackError)); err != nil {
		return fmt.Errorf("finalize alert delivery: %w", err)
	}
	return nil
}

// ClaimSending is the at-most-once gate: a single conditional UPDATE moves
// pending to sending, and RowsAffected tells the caller whether it won.
func (r *AlertRepository) ClaimSending(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET slack_status = $2, slack_error = NULL
WHERE id = $1 AND slack_status = $3
`, r.table)

	res, err := r.db.ExecContext(ctx, query, id, domain.SlackSending, domain.SlackPending)
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim alert rows affected: %w", err)
	}
	return affected == 1, nil
}

const alertColumns = "id, created_at, document_id, parsed_invoice_id, rule_id, status, slack_status, slack_error, match_reason, match_payload"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var alert domain.Alert
	var documentID, slackStatus, slackError, matchReason sql.NullString
	var payload []byte

	err := row.Scan(
		&alert.ID, &alert.CreatedAt, &documentID, &alert.ParsedInvoiceID, &alert.RuleID,
		&alert.Status, &slackStatus, &slackError, &matchReason, &payload,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	alert.DocumentID = documentID.String
	alert.SlackStatus = slackStatus.String
	alert.SlackError = slackError.String
	alert.MatchReason = matchReason.String

	if len(payload) > 0 {
		// Malformed legacy payloads degrade to empty evidence; the flush path
		// recomputes it from the live rule.
		_ = json.Unmarshal(payload, &alert.Evidence)
	}
	return &alert, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
