package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
)

type flushDeps struct {
	ruleRepo  *fakeRuleRepo
	invRepo   *fakeInvoiceRepo
	alertRepo *fakeAlertRepo
	docRepo   *fakeDocRepo
	events    *fakeEvents
	notifier  *fakeNotifier
	storage   *fakeStorage
	queue     *fakeQueue
}

func newFlushDeps(alerts ...domain.Alert) *flushDeps {
	inv := rampInvoice()
	return &flushDeps{
		ruleRepo:  &fakeRuleRepo{rules: []domain.Rule{rampRule()}},
		invRepo:   &fakeInvoiceRepo{byDoc: map[string]*domain.Invoice{"doc-1": &inv}},
		alertRepo: newFakeAlertRepo(alerts...),
		docRepo:   &fakeDocRepo{},
		events:    &fakeEvents{},
		notifier:  &fakeNotifier{result: ports.DeliveryResult{OK: true}},
		storage:   &fakeStorage{},
		queue:     &fakeQueue{},
	}
}

func (d *flushDeps) usecase() *FlushAlertsUseCase {
	return NewFlushAlertsUseCase(
		d.ruleRepo, d.invRepo, d.alertRepo, d.docRepo,
		d.events, d.notifier, d.storage, d.queue,
		time.Hour, false)
}

func pendingAlert(id string) domain.Alert {
	return domain.Alert{
		ID:              id,
		DocumentID:      "doc-1",
		ParsedInvoiceID: "inv-1",
		RuleID:          "r-1",
		Status:          domain.StatusPending,
		SlackStatus:     domain.SlackPending,
		Evidence: domain.MatchEvidence{
			RuleName: "Ramp Fee",
			MatchedLineItems: []domain.LineItem{
				{Description: "Ramp fee after hours", Total: domain.NewAmount(125)},
			},
		},
	}
}

func TestFlushSendsPendingAlertOnce(t *testing.T) {
	deps := newFlushDeps(pendingAlert("a-1"))
	deps.docRepo.byID = map[string]*domain.Document{
		"doc-1": {ID: "doc-1", StorageBucket: "invoices", StoragePath: "2024/doc-1.pdf"},
	}
	deps.storage.url = "https://files.example/signed/doc-1.pdf"

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Sent != 1 || summary.Errored != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	row := deps.alertRepo.find("a-1")
	if row.SlackStatus != domain.SlackSent || row.Status != domain.StatusSent {
		t.Fatalf("expected sent/sent, got %s/%s", row.SlackStatus, row.Status)
	}

	if len(deps.notifier.posts) != 1 {
		t.Fatalf("expected one post, got %d", len(deps.notifier.posts))
	}
	msg := deps.notifier.posts[0]
	if msg.FBO != "Signature Aviation" || msg.FeeName != "Ramp fee after hours" || msg.FeeAmount != 125 {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.SignedPDFURL != "https://files.example/signed/doc-1.pdf" {
		t.Fatalf("expected signed URL, got %q", msg.SignedPDFURL)
	}

	if len(deps.queue.published) != 1 || deps.queue.published[0] != "a-1" {
		t.Fatalf("expected delivered event for a-1, got %v", deps.queue.published)
	}
}

func TestFlushLostClaimSendsNothing(t *testing.T) {
	deps := newFlushDeps(pendingAlert("a-1"))
	deps.alertRepo.claimDeny = map[string]bool{"a-1": true}

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary != (ports.FlushSummary{}) {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if len(deps.notifier.posts) != 0 {
		t.Fatalf("a lost claim must never post")
	}
	if row := deps.alertRepo.find("a-1"); row.SlackStatus != domain.SlackPending {
		t.Fatalf("lost claim must leave the row untouched, got %q", row.SlackStatus)
	}
}

func TestFlushHealsSentRowWithoutDeliveryRecord(t *testing.T) {
	alert := pendingAlert("a-1")
	alert.Status = domain.StatusSent
	alert.SlackStatus = ""
	deps := newFlushDeps(alert)

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Healed != 1 || summary.Sent != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(deps.notifier.posts) != 0 {
		t.Fatalf("healing must never re-send")
	}
	if row := deps.alertRepo.find("a-1"); row.SlackStatus != domain.SlackSent {
		t.Fatalf("expected healed slack_status, got %q", row.SlackStatus)
	}
}

func TestFlushIgnoresDeliveredRows(t *testing.T) {
	alert := pendingAlert("a-1")
	alert.SlackStatus = "ok"
	deps := newFlushDeps(alert)

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary != (ports.FlushSummary{}) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(deps.notifier.posts) != 0 {
		t.Fatalf("delivered rows must not be re-sent")
	}
}

func TestFlushSkipsAlertWithoutDocumentID(t *testing.T) {
	alert := pendingAlert("a-1")
	alert.DocumentID = ""
	deps := newFlushDeps(alert)

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Skipped != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	row := deps.alertRepo.find("a-1")
	if row.SlackStatus != domain.SlackSkipped || row.SlackError != "missing_document_id" {
		t.Fatalf("unexpected row state %s/%q", row.SlackStatus, row.SlackError)
	}
}

func TestFlushSkipsNonActionableFee(t *testing.T) {
	alert := pendingAlert("a-1")
	alert.Evidence.MatchedLineItems = []domain.LineItem{
		{Description: "Ramp fee (waived)", Total: domain.NewAmount(0)},
	}
	deps := newFlushDeps(alert)

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Skipped != 1 || summary.Sent != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	row := deps.alertRepo.find("a-1")
	if row.SlackStatus != domain.SlackSkipped || row.SlackError != "non_actionable_missing_fee" {
		t.Fatalf("unexpected row state %s/%q", row.SlackStatus, row.SlackError)
	}
	if len(deps.notifier.posts) != 0 {
		t.Fatalf("non-actionable alert must never post")
	}
}

func TestFlushFinalizesClaimedRowWhenInvoiceFetchFails(t *testing.T) {
	deps := newFlushDeps(pendingAlert("a-1"))
	deps.invRepo.getErr = errors.New("connection refused")

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Errored != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	row := deps.alertRepo.find("a-1")
	if row.SlackStatus != domain.SlackError || row.Status != domain.StatusError {
		t.Fatalf("claimed row must be finalized, not stranded at sending: %s/%s", row.SlackStatus, row.Status)
	}
	if !strings.HasPrefix(row.SlackError, "invoice_fetch_failed") {
		t.Fatalf("unexpected slack_error %q", row.SlackError)
	}
}

func TestFlushRecordsFailedPostDiagnostic(t *testing.T) {
	deps := newFlushDeps(pendingAlert("a-1"))
	deps.notifier.result = ports.DeliveryResult{OK: false, StatusCode: 500, ResponseText: "no_service"}

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Errored != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	row := deps.alertRepo.find("a-1")
	if row.SlackStatus != domain.SlackError || row.Status != domain.StatusError {
		t.Fatalf("unexpected row state %s/%s", row.SlackStatus, row.Status)
	}
	if !strings.Contains(row.SlackError, "status_code") || !strings.Contains(row.SlackError, "no_service") {
		t.Fatalf("expected diagnostic in slack_error, got %q", row.SlackError)
	}
}

func TestFlushRepairsMissingEvidenceFromLiveInvoice(t *testing.T) {
	alert := pendingAlert("a-1")
	alert.Evidence = domain.MatchEvidence{}
	deps := newFlushDeps(alert)

	summary, err := deps.usecase().Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Sent != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	row := deps.alertRepo.find("a-1")
	if len(row.Evidence.MatchedLineItems) != 1 {
		t.Fatalf("expected repaired evidence, got %+v", row.Evidence)
	}
	if row.SlackStatus != domain.SlackSent {
		t.Fatalf("repair must not block delivery, got %q", row.SlackStatus)
	}
}

func TestFlushStopsAtLimit(t *testing.T) {
	a1 := pendingAlert("a-1")
	a2 := pendingAlert("a-2")
	a2.ParsedInvoiceID = "inv-2"
	a3 := pendingAlert("a-3")
	a3.ParsedInvoiceID = "inv-3"
	deps := newFlushDeps(a1, a2, a3)

	summary, err := deps.usecase().Run(context.Background(), 2)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Sent != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if row := deps.alertRepo.find("a-3"); row.SlackStatus != domain.SlackPending {
		t.Fatalf("third row must stay pending for the next run, got %q", row.SlackStatus)
	}
}
