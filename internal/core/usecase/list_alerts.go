package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/fees"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
	"github.com/skylineops/invoice-alerts/internal/core/rules"
)

const (
	maxListLimit    = 500
	alertScanWindow = 2000
)

// ListAlertsUseCase serves only alerts that currently resolve to an
// actionable fee. Rows are filtered twice: cheaply against cached evidence,
// then against the live invoice fetched in one batch, so stale evidence
// cannot surface a fee the reparsed invoice no longer carries. The contract
// is availability over completeness: nothing here returns an error.
type ListAlertsUseCase struct {
	ruleRepo    ports.RuleRepository
	invoiceRepo ports.InvoiceRepository
	alertRepo   ports.AlertRepository
	docRepo     ports.DocumentRepository
	events      ports.EventRecorder
	debug       bool
}

func NewListAlertsUseCase(
	ruleRepo ports.RuleRepository,
	invoiceRepo ports.InvoiceRepository,
	alertRepo ports.AlertRepository,
	docRepo ports.DocumentRepository,
	events ports.EventRecorder,
	debug bool,
) *ListAlertsUseCase {
	return &ListAlertsUseCase{
		ruleRepo:    ruleRepo,
		invoiceRepo: invoiceRepo,
		alertRepo:   alertRepo,
		docRepo:     docRepo,
		events:      events,
		debug:       debug,
	}
}

type alertCandidate struct {
	alert       domain.Alert
	ruleName    string
	chargedOnly bool
	fee         domain.Fee
}

func (uc *ListAlertsUseCase) List(ctx context.Context, query ports.ListAlertsQuery) []domain.AlertSummary {
	limit := clamp(query.Limit, 1, maxListLimit)
	qn := strings.ToLower(strings.TrimSpace(query.Q))

	rows, err := uc.alertRepo.ListNewest(ctx, alertScanWindow)
	if err != nil {
		uc.recordDebug(ctx, "api_alerts_query_error", "n/a", err)
		return []domain.AlertSummary{}
	}

	rulesByID := uc.loadRules(ctx)

	// Phase 1: cheap actionability filter on cached evidence only, so rows
	// that can never qualify don't cost an invoice lookup.
	var candidates []alertCandidate
	for _, row := range rows {
		ruleName := row.Evidence.RuleName
		chargedOnly := false
		if rule, ok := rulesByID[row.RuleID]; ok {
			if ruleName == "" {
				ruleName = rule.Name
			}
			chargedOnly = rule.RequireChargedLineItems
		}

		fee := fees.Resolve(row.Evidence.MatchedLineItems, ruleName, nil, ruleName, chargedOnly)
		if !fee.Actionable() {
			continue
		}
		candidates = append(candidates, alertCandidate{
			alert:       row,
			ruleName:    ruleName,
			chargedOnly: chargedOnly,
			fee:         fee,
		})
	}

	invoicesByDoc := uc.batchInvoices(ctx, candidates)

	// Phase 2: re-resolve the fee against live invoice data; the current row
	// wins over creation-time evidence, so a reparsed invoice that dropped a
	// fee stops surfacing it here. Only the evidence recomputes: lifecycle
	// gates (enabled, allow-lists) must not hide historical alerts.
	out := make([]domain.AlertSummary, 0, len(candidates))
	for _, c := range candidates {
		inv := invoicesByDoc[c.alert.DocumentID]

		fee := c.fee
		if inv != nil {
			matched := c.alert.Evidence.MatchedLineItems
			if rule, ok := rulesByID[c.alert.RuleID]; ok && len(rule.Keywords) > 0 {
				matched = rules.LiveLineItems(rule, *inv)
			}
			live := fees.Resolve(matched, c.ruleName, inv, c.ruleName, c.chargedOnly)
			if !live.Actionable() {
				continue
			}
			fee = live
		}

		summary := uc.buildSummary(ctx, c, inv, fee)

		if query.Status != "" && !strings.EqualFold(summary.Status, query.Status) {
			continue
		}
		if query.SlackStatus != "" && !strings.EqualFold(summary.SlackStatus, query.SlackStatus) {
			continue
		}
		if qn != "" && !summaryMatches(summary, qn) {
			continue
		}

		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (uc *ListAlertsUseCase) loadRules(ctx context.Context) map[string]domain.Rule {
	byID := make(map[string]domain.Rule)
	ruleSet, err := uc.ruleRepo.ListAll(ctx)
	if err != nil {
		uc.recordDebug(ctx, "api_alerts_rules_error", "n/a", err)
		return byID
	}
	for _, r := range ruleSet {
		byID[r.ID] = r
	}
	return byID
}

// batchInvoices fetches every candidate's invoice in one query. A failed
// batch degrades to cached-evidence results instead of failing the request.
func (uc *ListAlertsUseCase) batchInvoices(ctx context.Context, candidates []alertCandidate) map[string]*domain.Invoice {
	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		id := c.alert.DocumentID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]*domain.Invoice{}
	}

	invoices, err := uc.invoiceRepo.BatchByDocumentIDs(ctx, ids)
	if err != nil {
		uc.recordDebug(ctx, "api_alerts_invoice_lookup_error", "n/a", err)
		return map[string]*domain.Invoice{}
	}
	return invoices
}

func (uc *ListAlertsUseCase) buildSummary(ctx context.Context, c alertCandidate, inv *domain.Invoice, fee domain.Fee) domain.AlertSummary {
	summary := domain.AlertSummary{
		ID:          c.alert.ID,
		CreatedAt:   c.alert.CreatedAt,
		DocumentID:  c.alert.DocumentID,
		Status:      c.alert.Status,
		SlackStatus: c.alert.SlackStatus,
		RuleName:    c.ruleName,
		FeeName:     fee.Name,
		FeeAmount:   fee.Amount,
	}

	if inv != nil {
		summary.Vendor = inv.VendorName
		summary.Tail = inv.TailNumber
		summary.Currency = inv.Currency
		summary.AirportCode = inv.AirportCode
	}

	if summary.AirportCode == "" {
		var doc *domain.Document
		if c.alert.DocumentID != "" {
			doc, _ = uc.docRepo.GetByID(ctx, c.alert.DocumentID)
		}
		summary.AirportCode = domain.InferAirportCode(inv, doc)
	}

	return summary
}

func summaryMatches(s domain.AlertSummary, qn string) bool {
	hay := strings.ToLower(strings.Join([]string{
		s.DocumentID,
		s.RuleName,
		s.Vendor,
		s.Tail,
		s.AirportCode,
		s.FeeName,
	}, " "))
	return strings.Contains(hay, qn)
}

func (uc *ListAlertsUseCase) recordDebug(ctx context.Context, eventType, documentID string, err error) {
	if !uc.debug {
		return
	}
	uc.events.Record(ctx, domain.Event{
		Type:       eventType,
		DocumentID: documentID,
		FiredAt:    time.Now().UTC(),
		Payload:    map[string]any{"error": err.Error()},
	})
}
