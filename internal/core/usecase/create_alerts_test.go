package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

func rampRule() domain.Rule {
	return domain.Rule{ID: "r-1", Name: "Ramp Fee", Enabled: true, Keywords: []string{"ramp"}}
}

func rampInvoice() domain.Invoice {
	return domain.Invoice{
		ID:         "inv-1",
		DocumentID: "doc-1",
		VendorName: "Signature Aviation",
		LineItems: []domain.LineItem{
			{Description: "Ramp fee after hours", Total: domain.NewAmount(125)},
		},
	}
}

func TestRunCreatesAlertForMatchingInvoice(t *testing.T) {
	alertRepo := newFakeAlertRepo()
	invRepo := &fakeInvoiceRepo{recent: []domain.Invoice{rampInvoice()}}
	uc := NewCreateAlertsUseCase(&fakeRuleRepo{rules: []domain.Rule{rampRule()}}, invRepo, alertRepo, &fakeEvents{})

	summary, err := uc.Run(context.Background(), 10, 60)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Created != 1 || summary.Upgraded != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	row := alertRepo.rows[0]
	if row.Status != domain.StatusPending || row.SlackStatus != domain.SlackPending {
		t.Fatalf("new alert must start pending/pending, got %s/%s", row.Status, row.SlackStatus)
	}
	if row.Evidence.RuleName != "Ramp Fee" || len(row.Evidence.MatchedLineItems) != 1 {
		t.Fatalf("unexpected evidence %+v", row.Evidence)
	}
	if row.MatchReason != "keyword match: ramp" {
		t.Fatalf("unexpected match reason %q", row.MatchReason)
	}
}

func TestRunSkipsInvoiceWithoutDocumentID(t *testing.T) {
	inv := rampInvoice()
	inv.DocumentID = ""
	alertRepo := newFakeAlertRepo()
	uc := NewCreateAlertsUseCase(
		&fakeRuleRepo{rules: []domain.Rule{rampRule()}},
		&fakeInvoiceRepo{recent: []domain.Invoice{inv}},
		alertRepo, &fakeEvents{})

	summary, err := uc.Run(context.Background(), 10, 60)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Created != 0 || len(alertRepo.rows) != 0 {
		t.Fatalf("expected nothing created, got %+v rows=%d", summary, len(alertRepo.rows))
	}
}

func TestDuplicateInsertUpgradesAndReopensFailedDelivery(t *testing.T) {
	existing := domain.Alert{
		ID:              "a-old",
		DocumentID:      "doc-1",
		ParsedInvoiceID: "inv-1",
		RuleID:          "r-1",
		Status:          domain.StatusError,
		SlackStatus:     domain.SlackError,
		SlackError:      "previous failure",
	}
	alertRepo := newFakeAlertRepo(existing)
	uc := NewCreateAlertsUseCase(
		&fakeRuleRepo{rules: []domain.Rule{rampRule()}},
		&fakeInvoiceRepo{recent: []domain.Invoice{rampInvoice()}},
		alertRepo, &fakeEvents{})

	summary, err := uc.Run(context.Background(), 10, 60)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Created != 0 || summary.Upgraded != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	row := alertRepo.find("a-old")
	if row.Status != domain.StatusPending || row.SlackStatus != domain.SlackPending {
		t.Fatalf("expected reopened delivery, got %s/%s", row.Status, row.SlackStatus)
	}
	if row.SlackError != "" {
		t.Fatalf("expected cleared slack_error, got %q", row.SlackError)
	}
	if len(row.Evidence.MatchedLineItems) != 1 {
		t.Fatalf("expected refreshed evidence, got %+v", row.Evidence)
	}
}

func TestDuplicateInsertNeverReopensDeliveredRow(t *testing.T) {
	for _, slackStatus := range []string{domain.SlackSent, domain.SlackSending, "ok"} {
		existing := domain.Alert{
			ID:              "a-old",
			DocumentID:      "doc-1",
			ParsedInvoiceID: "inv-1",
			RuleID:          "r-1",
			Status:          domain.StatusSent,
			SlackStatus:     slackStatus,
		}
		alertRepo := newFakeAlertRepo(existing)
		uc := NewCreateAlertsUseCase(
			&fakeRuleRepo{rules: []domain.Rule{rampRule()}},
			&fakeInvoiceRepo{recent: []domain.Invoice{rampInvoice()}},
			alertRepo, &fakeEvents{})

		summary, err := uc.Run(context.Background(), 10, 60)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if summary.Upgraded != 1 {
			t.Fatalf("expected evidence upgrade for %q, got %+v", slackStatus, summary)
		}

		row := alertRepo.find("a-old")
		if row.SlackStatus != slackStatus {
			t.Fatalf("delivery state %q must not be reset, got %q", slackStatus, row.SlackStatus)
		}
		if row.Evidence.RuleName != "Ramp Fee" {
			t.Fatalf("expected evidence refresh even without reopen, got %+v", row.Evidence)
		}
	}
}

func TestRunForDocumentEvaluatesSingleInvoice(t *testing.T) {
	inv := rampInvoice()
	alertRepo := newFakeAlertRepo()
	uc := NewCreateAlertsUseCase(
		&fakeRuleRepo{rules: []domain.Rule{rampRule()}},
		&fakeInvoiceRepo{byDoc: map[string]*domain.Invoice{"doc-1": &inv}},
		alertRepo, &fakeEvents{})

	summary, err := uc.RunForDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("RunForDocument() error = %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunRecordsEventOnRuleFetchFailure(t *testing.T) {
	events := &fakeEvents{}
	uc := NewCreateAlertsUseCase(
		&fakeRuleRepo{err: errors.New("connection refused")},
		&fakeInvoiceRepo{}, newFakeAlertRepo(), events)

	if _, err := uc.Run(context.Background(), 10, 60); err == nil {
		t.Fatalf("expected error")
	}
	if len(events.recorded) != 1 || events.recorded[0].Type != "run_alerts_error" {
		t.Fatalf("expected run_alerts_error event, got %+v", events.recorded)
	}
}
