package ports

import (
	"context"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

// RuleRepository reads alert rules. The enabled flag is already normalized.
type RuleRepository interface {
	ListAll(ctx context.Context) ([]domain.Rule, error)
}

// InvoiceRepository reads parsed invoices. Read-only to this service.
type InvoiceRepository interface {
	GetByDocumentID(ctx context.Context, documentID string) (*domain.Invoice, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Invoice, error)
	ListLatest(ctx context.Context, limit int) ([]domain.Invoice, error)
	BatchByDocumentIDs(ctx context.Context, documentIDs []string) (map[string]*domain.Invoice, error)
}

// AlertRepository persists alert rows and implements the claim protocol.
type AlertRepository interface {
	// Insert fails with domain.ErrConstraintViolation when an alert for the
	// same (rule_id, parsed_invoice_id) already exists.
	Insert(ctx context.Context, alert *domain.Alert) error
	GetByRuleAndInvoice(ctx context.Context, ruleID, parsedInvoiceID string) (*domain.Alert, error)
	ListOldest(ctx context.Context, limit int) ([]domain.Alert, error)
	ListNewest(ctx context.Context, limit int) ([]domain.Alert, error)
	// UpdateEvidence replaces the cached match evidence; when reopen is set it
	// also resets slack_status to pending and clears slack_error.
	UpdateEvidence(ctx context.Context, id string, evidence domain.MatchEvidence, reason string, reopen bool) error
	// SetDelivery patches slack_status/slack_error only. Empty slackError
	// clears the column.
	SetDelivery(ctx context.Context, id, slackStatus, slackError string) error
	// FinalizeDelivery patches slack_status, slack_error and the business
	// status together.
	FinalizeDelivery(ctx context.Context, id, slackStatus, status, slackError string) error
	// ClaimSending atomically transitions pending -> sending for one row and
	// reports whether this caller won the claim. It must be a single
	// conditional UPDATE, never read-then-write.
	ClaimSending(ctx context.Context, id string) (bool, error)
}

// DocumentRepository reads document rows (usually via a TTL cache).
type DocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// EventRecorder persists diagnostic events, best-effort: failures to record
// must never disturb the caller.
type EventRecorder interface {
	Record(ctx context.Context, event domain.Event)
}

// AlertMessage is the rendered content of one Slack fee alert.
type AlertMessage struct {
	DocumentID   string
	RuleName     string
	FBO          string
	AirportCode  string
	Tail         string
	FeeName      string
	FeeAmount    float64
	Currency     string
	SignedPDFURL string
}

// DeliveryResult is the diagnostic outcome of a webhook post; it is safe to
// log and is persisted (truncated) into slack_error on failure.
type DeliveryResult struct {
	OK           bool   `json:"ok"`
	Skipped      bool   `json:"skipped,omitempty"`
	Reason       string `json:"reason,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Notifier posts alerts to the configured webhook. Posting never returns an
// error: every outcome is a DeliveryResult.
type Notifier interface {
	PostAlert(ctx context.Context, msg AlertMessage) DeliveryResult
	PostTest(ctx context.Context) DeliveryResult
}

// ObjectStorage signs time-limited download URLs for stored invoice PDFs.
type ObjectStorage interface {
	PresignDocumentURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error)
}

// MessageQueue connects the service to the parsing pipeline's event stream.
type MessageQueue interface {
	PublishAlertDelivered(ctx context.Context, alertID, documentID string) error
	SubscribeInvoiceParsed(ctx context.Context, handler func(context.Context, string) error) error
}
