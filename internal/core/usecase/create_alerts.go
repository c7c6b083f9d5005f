package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/fees"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
	"github.com/skylineops/invoice-alerts/internal/core/rules"
)

const (
	maxCreateLimit      = 200
	maxNextLimit        = 50
	nextInnerLimit      = 50
	maxLookbackMinutes  = 24 * 60
	invoiceScanWindow   = 1000
	defaultLookbackMins = 240
)

// CreateAlertsUseCase scans recent invoices, evaluates every enabled rule and
// creates alert rows, idempotent on (rule_id, parsed_invoice_id): a duplicate
// insert upgrades the existing row's evidence in place instead.
type CreateAlertsUseCase struct {
	ruleRepo    ports.RuleRepository
	invoiceRepo ports.InvoiceRepository
	alertRepo   ports.AlertRepository
	events      ports.EventRecorder
}

func NewCreateAlertsUseCase(
	ruleRepo ports.RuleRepository,
	invoiceRepo ports.InvoiceRepository,
	alertRepo ports.AlertRepository,
	events ports.EventRecorder,
) *CreateAlertsUseCase {
	return &CreateAlertsUseCase{
		ruleRepo:    ruleRepo,
		invoiceRepo: invoiceRepo,
		alertRepo:   alertRepo,
		events:      events,
	}
}

func (uc *CreateAlertsUseCase) Run(ctx context.Context, limit, lookbackMinutes int) (ports.CreateSummary, error) {
	limit = clamp(limit, 1, maxCreateLimit)
	lookbackMinutes = clamp(lookbackMinutes, 1, maxLookbackMinutes)

	ruleSet, err := uc.ruleRepo.ListAll(ctx)
	if err != nil {
		uc.recordJobError(ctx, "run_alerts_error", err)
		return ports.CreateSummary{}, fmt.Errorf("fetch rules: %w", err)
	}
	if len(ruleSet) == 0 {
		return ports.CreateSummary{}, nil
	}

	since := time.Now().UTC().Add(-time.Duration(lookbackMinutes) * time.Minute)
	invoices, err := uc.invoiceRepo.ListRecent(ctx, since, invoiceScanWindow)
	if err != nil {
		uc.recordJobError(ctx, "run_alerts_error", err)
		return ports.CreateSummary{}, fmt.Errorf("fetch recent invoices: %w", err)
	}

	var summary ports.CreateSummary
	for _, inv := range invoices {
		if summary.Created >= limit {
			break
		}
		created, upgraded := uc.runForInvoice(ctx, inv, ruleSet)
		summary.Created += created
		summary.Upgraded += upgraded
	}
	return summary, nil
}

// RunForDocument evaluates every enabled rule against a single parsed
// invoice. This is the worker's entrypoint for invoices.parsed events.
func (uc *CreateAlertsUseCase) RunForDocument(ctx context.Context, documentID string) (ports.CreateSummary, error) {
	inv, err := uc.invoiceRepo.GetByDocumentID(ctx, documentID)
	if err != nil {
		uc.recordJobError(ctx, "run_alerts_error", err)
		return ports.CreateSummary{}, fmt.Errorf("fetch invoice %s: %w", documentID, err)
	}

	ruleSet, err := uc.ruleRepo.ListAll(ctx)
	if err != nil {
		uc.recordJobError(ctx, "run_alerts_error", err)
		return ports.CreateSummary{}, fmt.Errorf("fetch rules: %w", err)
	}

	created, upgraded := uc.runForInvoice(ctx, *inv, ruleSet)
	return ports.CreateSummary{Created: created, Upgraded: upgraded}, nil
}

// RunNext re-runs the creation scan against the most recently parsed
// invoices, reporting per-document results.
func (uc *CreateAlertsUseCase) RunNext(ctx context.Context, limit, lookbackMinutes int) (ports.NextSummary, error) {
	limit = clamp(limit, 1, maxNextLimit)

	scan := limit
	if scan < 100 {
		scan = 100
	}
	rows, err := uc.invoiceRepo.ListLatest(ctx, scan)
	if err != nil {
		uc.recordJobError(ctx, "run_alerts_next_error", err)
		return ports.NextSummary{}, fmt.Errorf("fetch latest invoices: %w", err)
	}

	var summary ports.NextSummary
	for _, row := range rows {
		if row.DocumentID == "" {
			continue
		}

		out, err := uc.Run(ctx, nextInnerLimit, lookbackMinutes)
		if err != nil {
			return summary, err
		}

		summary.Created += out.Created
		summary.Upgraded += out.Upgraded
		summary.Results = append(summary.Results, ports.NextResult{
			DocumentID:      row.DocumentID,
			ParsedInvoiceID: row.ID,
			Created:         out.Created,
			Upgraded:        out.Upgraded,
		})

		summary.Ran++
		if summary.Ran >= limit {
			break
		}
	}
	return summary, nil
}

// runForInvoice evaluates every rule for one invoice. Per-rule failures are
// recorded as events and must not abort the remaining evaluations.
func (uc *CreateAlertsUseCase) runForInvoice(ctx context.Context, inv domain.Invoice, ruleSet []domain.Rule) (created, upgraded int) {
	if inv.DocumentID == "" {
		return 0, 0
	}

	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}

		result := rules.Match(rule, inv)
		if !result.Matched {
			continue
		}

		alert := &domain.Alert{
			DocumentID:      inv.DocumentID,
			ParsedInvoiceID: inv.ID,
			RuleID:          rule.ID,
			Status:          domain.StatusPending,
			SlackStatus:     domain.SlackPending,
			MatchReason:     result.Reason,
			Evidence: domain.MatchEvidence{
				RuleName:         rule.Name,
				MatchedKeywords:  result.MatchedKeywords,
				MatchedLineItems: result.MatchedLineItems,
			},
		}

		err := uc.alertRepo.Insert(ctx, alert)
		switch {
		case err == nil:
			created++
		case domain.IsKind(err, domain.ErrConstraintViolation):
			if upgradeErr := uc.upgradeExisting(ctx, rule, inv, result); upgradeErr != nil {
				uc.recordRuleError(ctx, rule, inv, upgradeErr)
				continue
			}
			upgraded++
		default:
			uc.recordRuleError(ctx, rule, inv, err)
		}
	}
	return created, upgraded
}

// upgradeExisting merges fresh match evidence into the duplicate row.
// Delivery is reopened only when the new evidence is actionable under the
// charged-only guard AND the row never recorded a send: a completed delivery
// must not be undone or repeated, and a row mid-sending belongs to a
// concurrent flush run.
func (uc *CreateAlertsUseCase) upgradeExisting(ctx context.Context, rule domain.Rule, inv domain.Invoice, result rules.Result) error {
	existing, err := uc.alertRepo.GetByRuleAndInvoice(ctx, rule.ID, inv.ID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fetch existing alert: %w", err)
	}

	evidence := domain.MatchEvidence{
		RuleName:         rule.Name,
		MatchedKeywords:  result.MatchedKeywords,
		MatchedLineItems: result.MatchedLineItems,
	}

	fee := fees.Resolve(result.MatchedLineItems, rule.Name, &inv, rule.Name, true)

	alreadySent := domain.IsDelivered(existing.SlackStatus) ||
		domain.NormalizeDeliveryState(existing.Status) == domain.StatusSent

	reopen := fee.Actionable() && !alreadySent && domain.CanReopenDelivery(existing.SlackStatus)

	if err := uc.alertRepo.UpdateEvidence(ctx, existing.ID, evidence, result.Reason, reopen); err != nil {
		return fmt.Errorf("upgrade alert %s: %w", existing.ID, err)
	}
	return nil
}

func (uc *CreateAlertsUseCase) recordRuleError(ctx context.Context, rule domain.Rule, inv domain.Invoice, err error) {
	uc.events.Record(ctx, domain.Event{
		Type:            "run_alerts_rule_error",
		DocumentID:      inv.DocumentID,
		RuleID:          rule.ID,
		ParsedInvoiceID: inv.ID,
		FiredAt:         time.Now().UTC(),
		Payload:         map[string]any{"error": err.Error()},
	})
}

func (uc *CreateAlertsUseCase) recordJobError(ctx context.Context, eventType string, err error) {
	uc.events.Record(ctx, domain.Event{
		Type:       eventType,
		DocumentID: "n/a",
		FiredAt:    time.Now().UTC(),
		Payload:    map[string]any{"error": err.Error()},
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
