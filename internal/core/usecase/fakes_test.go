package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
)

type fakeRuleRepo struct {
	rules []domain.Rule
	err   error
}

func (f *fakeRuleRepo) ListAll(ctx context.Context) ([]domain.Rule, error) {
	return f.rules, f.err
}

type fakeInvoiceRepo struct {
	byDoc    map[string]*domain.Invoice
	recent   []domain.Invoice
	latest   []domain.Invoice
	getErr   error
	batchErr error
}

func (f *fakeInvoiceRepo) GetByDocumentID(ctx context.Context, documentID string) (*domain.Invoice, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if inv, ok := f.byDoc[documentID]; ok {
		return inv, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch invoice", errors.New("no rows"))
}

func (f *fakeInvoiceRepo) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Invoice, error) {
	return f.recent, nil
}

func (f *fakeInvoiceRepo) ListLatest(ctx context.Context, limit int) ([]domain.Invoice, error) {
	return f.latest, nil
}

func (f *fakeInvoiceRepo) BatchByDocumentIDs(ctx context.Context, documentIDs []string) (map[string]*domain.Invoice, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make(map[string]*domain.Invoice, len(documentIDs))
	for _, id := range documentIDs {
		if inv, ok := f.byDoc[id]; ok {
			out[id] = inv
		}
	}
	return out, nil
}

// fakeAlertRepo is an in-memory alert store honoring the same claim and
// uniqueness semantics as the Postgres implementation.
type fakeAlertRepo struct {
	seq       int
	rows      []*domain.Alert
	insertErr error
	listErr   error
	claimDeny map[string]bool
}

func newFakeAlertRepo(seed ...domain.Alert) *fakeAlertRepo {
	repo := &fakeAlertRepo{}
	for i := range seed {
		row := seed[i]
		repo.rows = append(repo.rows, &row)
	}
	return repo
}

func (f *fakeAlertRepo) key(ruleID, parsedInvoiceID string) string {
	return ruleID + "|" + parsedInvoiceID
}

func (f *fakeAlertRepo) find(id string) *domain.Alert {
	for _, row := range f.rows {
		if row.ID == id {
			return row
		}
	}
	return nil
}

func (f *fakeAlertRepo) Insert(ctx context.Context, alert *domain.Alert) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, row := range f.rows {
		if f.key(row.RuleID, row.ParsedInvoiceID) == f.key(alert.RuleID, alert.ParsedInvoiceID) {
			return domain.WrapError(domain.ErrConstraintViolation, "insert alert", errors.New("duplicate key"))
		}
	}
	f.seq++
	if alert.ID == "" {
		alert.ID = fmt.Sprintf("a-%d", f.seq)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	stored := *alert
	f.rows = append(f.rows, &stored)
	return nil
}

func (f *fakeAlertRepo) GetByRuleAndInvoice(ctx context.Context, ruleID, parsedInvoiceID string) (*domain.Alert, error) {
	for _, row := range f.rows {
		if row.RuleID == ruleID && row.ParsedInvoiceID == parsedInvoiceID {
			out := *row
			return &out, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch alert", errors.New("no rows"))
}

func (f *fakeAlertRepo) ListOldest(ctx context.Context, limit int) ([]domain.Alert, error) {
	return f.list(limit)
}

func (f *fakeAlertRepo) ListNewest(ctx context.Context, limit int) ([]domain.Alert, error) {
	return f.list(limit)
}

func (f *fakeAlertRepo) list(limit int) ([]domain.Alert, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Alert, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, *row)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAlertRepo) UpdateEvidence(ctx context.Context, id string, evidence domain.MatchEvidence, reason string, reopen bool) error {
	row := f.find(id)
	if row == nil {
		return domain.WrapError(domain.ErrNotFound, "update alert", errors.New("no rows"))
	}
	row.Evidence = evidence
	row.MatchReason = reason
	if reopen {
		row.Status = domain.StatusPending
		row.SlackStatus = domain.SlackPending
		row.SlackError = ""
	}
	return nil
}

func (f *fakeAlertRepo) SetDelivery(ctx context.Context, id, slackStatus, slackError string) error {
	row := f.find(id)
	if row == nil {
		return domain.WrapError(domain.ErrNotFound, "update alert", errors.New("no rows"))
	}
	row.SlackStatus = slackStatus
	row.SlackError = slackError
	return nil
}

func (f *fakeAlertRepo) FinalizeDelivery(ctx context.Context, id, slackStatus, status, slackError string) error {
	row := f.find(id)
	if row == nil {
		return domain.WrapError(domain.ErrNotFound, "update alert", errors.New("no rows"))
	}
	row.SlackStatus = slackStatus
	row.Status = status
	row.SlackError = slackError
	return nil
}

func (f *fakeAlertRepo) ClaimSending(ctx context.Context, id string) (bool, error) {
	if f.claimDeny[id] {
		return false, nil
	}
	row := f.find(id)
	if row == nil || domain.NormalizeDeliveryState(row.SlackStatus) != domain.SlackPending {
		return false, nil
	}
	row.SlackStatus = domain.SlackSending
	return true, nil
}

type fakeDocRepo struct {
	byID map[string]*domain.Document
}

func (f *fakeDocRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if doc, ok := f.byID[id]; ok {
		return doc, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "fetch document", errors.New("no rows"))
}

type fakeEvents struct {
	recorded []domain.Event
}

func (f *fakeEvents) Record(ctx context.Context, event domain.Event) {
	f.recorded = append(f.recorded, event)
}

type fakeNotifier struct {
	result ports.DeliveryResult
	posts  []ports.AlertMessage
}

func (f *fakeNotifier) PostAlert(ctx context.Context, msg ports.AlertMessage) ports.DeliveryResult {
	f.posts = append(f.posts, msg)
	return f.result
}

func (f *fakeNotifier) PostTest(ctx context.Context) ports.DeliveryResult {
	return f.result
}

type fakeStorage struct {
	url string
	err error
}

func (f *fakeStorage) PresignDocumentURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	return f.url, f.err
}

type fakeQueue struct {
	published  []string
	publishErr error
}

func (f *fakeQueue) PublishAlertDelivered(ctx context.Context, alertID, documentID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, alertID)
	return nil
}

func (f *fakeQueue) SubscribeInvoiceParsed(ctx context.Context, handler func(context.Context, string) error) error {
	return nil
}
