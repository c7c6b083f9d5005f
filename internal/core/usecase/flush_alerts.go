package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/fees"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
	"github.com/skylineops/invoice-alerts/internal/core/rules"
)

const (
	maxFlushLimit      = 100
	flushScanWindow    = 500
	slackErrorMaxChars = 1000
)

// outcome classifies what happened to one alert row during a flush pass.
type outcome int

const (
	outcomeNone outcome = iota
	outcomeHealed
	outcomeSkipped
	outcomeSent
	outcomeErrored
)

// FlushAlertsUseCase delivers pending alerts to Slack at most once via the
// claim state machine: pending -> sending -> {sent, error, skipped}. The
// claim is a conditional UPDATE acting as a CAS; a runner that loses the
// claim performs no send. Legacy inconsistent rows are healed along the way.
type FlushAlertsUseCase struct {
	ruleRepo    ports.RuleRepository
	invoiceRepo ports.InvoiceRepository
	alertRepo   ports.AlertRepository
	docRepo     ports.DocumentRepository
	events      ports.EventRecorder
	notifier    ports.Notifier
	storage     ports.ObjectStorage
	queue       ports.MessageQueue

	signedURLExpiry time.Duration
	debug           bool
}

func NewFlushAlertsUseCase(
	ruleRepo ports.RuleRepository,
	invoiceRepo ports.InvoiceRepository,
	alertRepo ports.AlertRepository,
	docRepo ports.DocumentRepository,
	events ports.EventRecorder,
	notifier ports.Notifier,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	signedURLExpiry time.Duration,
	debug bool,
) *FlushAlertsUseCase {
	return &FlushAlertsUseCase{
		ruleRepo:        ruleRepo,
		invoiceRepo:     invoiceRepo,
		alertRepo:       alertRepo,
		docRepo:         docRepo,
		events:          events,
		notifier:        notifier,
		storage:         storage,
		queue:           queue,
		signedURLExpiry: signedURLExpiry,
		debug:           debug,
	}
}

func (uc *FlushAlertsUseCase) Run(ctx context.Context, limit int) (ports.FlushSummary, error) {
	limit = clamp(limit, 1, maxFlushLimit)

	ruleSet, err := uc.ruleRepo.ListAll(ctx)
	if err != nil {
		uc.recordFlushError(ctx, err)
		return ports.FlushSummary{}, fmt.Errorf("fetch rules: %w", err)
	}
	rulesByID := make(map[string]domain.Rule, len(ruleSet))
	for _, r := range ruleSet {
		rulesByID[r.ID] = r
	}

	rows, err := uc.alertRepo.ListOldest(ctx, flushScanWindow)
	if err != nil {
		uc.recordFlushError(ctx, err)
		return ports.FlushSummary{}, fmt.Errorf("fetch alerts: %w", err)
	}

	var summary ports.FlushSummary
	for i := range rows {
		if summary.Sent+summary.Errored >= limit {
			break
		}
		alert := rows[i]
		if alert.ID == "" {
			continue
		}

		out, err := uc.processAlert(ctx, alert, rulesByID)
		if err != nil {
			// One bad row must never abort the whole run.
			uc.events.Record(ctx, domain.Event{
				Type:       "flush_item_error",
				DocumentID: orNA(alert.DocumentID),
				RuleID:     alert.RuleID,
				FiredAt:    time.Now().UTC(),
				Payload:    map[string]any{"error": err.Error(), "alert_id": alert.ID},
			})
			continue
		}

		switch out {
		case outcomeHealed:
			summary.Healed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeSent:
			summary.Sent++
		case outcomeErrored:
			summary.Errored++
		}
	}
	return summary, nil
}

func (uc *FlushAlertsUseCase) processAlert(ctx context.Context, alert domain.Alert, rulesByID map[string]domain.Rule) (outcome, error) {
	slackStatus := domain.NormalizeDeliveryState(alert.SlackStatus)
	status := domain.NormalizeDeliveryState(alert.Status)

	// Auto-heal: status=sent but delivery never recorded. Correct the row
	// without re-sending.
	if status == domain.StatusSent && (slackStatus == domain.SlackPending || domain.IsBlankDeliveryState(alert.SlackStatus)) {
		if err := uc.alertRepo.SetDelivery(ctx, alert.ID, domain.SlackSent, ""); err != nil {
			return outcomeNone, fmt.Errorf("heal alert %s: %w", alert.ID, err)
		}
		return outcomeHealed, nil
	}

	if domain.IsDelivered(alert.SlackStatus) {
		return outcomeNone, nil
	}

	// Normalize legacy blank/null delivery state to pending.
	if domain.IsBlankDeliveryState(alert.SlackStatus) {
		if err := uc.alertRepo.SetDelivery(ctx, alert.ID, domain.SlackPending, ""); err != nil {
			return outcomeNone, nil
		}
		slackStatus = domain.SlackPending
	}

	if slackStatus != domain.SlackPending {
		return outcomeNone, nil
	}

	// Claim: pending -> sending, atomically. Losing the CAS means another
	// runner owns this row.
	claimed, err := uc.alertRepo.ClaimSending(ctx, alert.ID)
	if err != nil {
		return outcomeNone, fmt.Errorf("claim alert %s: %w", alert.ID, err)
	}
	if !claimed {
		return outcomeNone, nil
	}

	if alert.DocumentID == "" {
		if err := uc.alertRepo.SetDelivery(ctx, alert.ID, domain.SlackSkipped, "missing_document_id"); err != nil {
			return outcomeNone, err
		}
		return outcomeSkipped, nil
	}

	inv, err := uc.invoiceRepo.GetByDocumentID(ctx, alert.DocumentID)
	if err != nil {
		// The row is already claimed; finalize it rather than stranding it
		// at sending.
		diag := truncate("invoice_fetch_failed: "+err.Error(), slackErrorMaxChars)
		if finErr := uc.alertRepo.FinalizeDelivery(ctx, alert.ID, domain.SlackError, domain.StatusError, diag); finErr != nil {
			return outcomeNone, finErr
		}
		return outcomeErrored, nil
	}

	doc, _ := uc.docRepo.GetByID(ctx, alert.DocumentID)
	signedURL := uc.presign(ctx, doc)

	var rulePtr *domain.Rule
	if r, ok := rulesByID[alert.RuleID]; ok {
		rulePtr = &r
	}

	ruleName := alert.Evidence.RuleName
	if ruleName == "" && rulePtr != nil {
		ruleName = rulePtr.Name
	}
	if ruleName == "" {
		ruleName = "Fee"
	}
	chargedOnly := rulePtr != nil && rulePtr.RequireChargedLineItems

	matchedItems := alert.Evidence.MatchedLineItems

	// Evidence self-heal: legacy rows predate cached matched_line_items.
	// Recompute from the live rule and invoice and persist the result.
	if len(matchedItems) == 0 && rulePtr != nil {
		if res := rules.Match(*rulePtr, *inv); res.Matched && len(res.MatchedLineItems) > 0 {
			matchedItems = res.MatchedLineItems
			repaired := domain.MatchEvidence{
				RuleName:         rulePtr.Name,
				MatchedKeywords:  res.MatchedKeywords,
				MatchedLineItems: res.MatchedLineItems,
			}
			_ = uc.alertRepo.UpdateEvidence(ctx, alert.ID, repaired, res.Reason, false)
		}
	}

	fee := fees.Resolve(matchedItems, ruleName, inv, ruleName, chargedOnly)
	if !fee.Actionable() {
		if err := uc.alertRepo.SetDelivery(ctx, alert.ID, domain.SlackSkipped, "non_actionable_missing_fee"); err != nil {
			return outcomeNone, err
		}
		return outcomeSkipped, nil
	}

	msg := ports.AlertMessage{
		DocumentID:   alert.DocumentID,
		RuleName:     ruleName,
		FBO:          orDash(inv.VendorName),
		AirportCode:  orDash(domain.InferAirportCode(inv, doc)),
		Tail:         orDash(inv.TailNumber),
		FeeName:      fee.Name,
		FeeAmount:    fee.Amount.Or(0),
		Currency:     inv.Currency,
		SignedPDFURL: signedURL,
	}

	res := uc.notifier.PostAlert(ctx, msg)
	if res.OK {
		if err := uc.alertRepo.FinalizeDelivery(ctx, alert.ID, domain.SlackSent, domain.StatusSent, ""); err != nil {
			return outcomeNone, err
		}
		uc.publishDelivered(ctx, alert)
		return outcomeSent, nil
	}

	if err := uc.alertRepo.FinalizeDelivery(ctx, alert.ID, domain.SlackError, domain.StatusError, deliveryDiagnostic(res)); err != nil {
		return outcomeNone, err
	}
	return outcomeErrored, nil
}

func (uc *FlushAlertsUseCase) presign(ctx context.Context, doc *domain.Document) string {
	if uc.storage == nil || doc == nil || doc.StorageBucket == "" || doc.StoragePath == "" {
		return ""
	}
	url, err := uc.storage.PresignDocumentURL(ctx, doc.StorageBucket, doc.StoragePath, uc.signedURLExpiry)
	if err != nil {
		if uc.debug {
			uc.events.Record(ctx, domain.Event{
				Type:       "signed_url_error",
				DocumentID: doc.ID,
				FiredAt:    time.Now().UTC(),
				Payload:    map[string]any{"error": err.Error()},
			})
		}
		return ""
	}
	return url
}

func (uc *FlushAlertsUseCase) publishDelivered(ctx context.Context, alert domain.Alert) {
	if uc.queue == nil {
		return
	}
	if err := uc.queue.PublishAlertDelivered(ctx, alert.ID, alert.DocumentID); err != nil && uc.debug {
		uc.events.Record(ctx, domain.Event{
			Type:       "alert_delivered_publish_error",
			DocumentID: orNA(alert.DocumentID),
			FiredAt:    time.Now().UTC(),
			Payload:    map[string]any{"error": err.Error(), "alert_id": alert.ID},
		})
	}
}

func (uc *FlushAlertsUseCase) recordFlushError(ctx context.Context, err error) {
	uc.events.Record(ctx, domain.Event{
		Type:       "flush_alerts_error",
		DocumentID: "n/a",
		FiredAt:    time.Now().UTC(),
		Payload:    map[string]any{"error": err.Error()},
	})
}

// deliveryDiagnostic renders a failed result for slack_error, truncated so a
// giant webhook response cannot bloat the row.
func deliveryDiagnostic(res ports.DeliveryResult) string {
	b, err := json.Marshal(res)
	if err != nil {
		return "slack_post_failed"
	}
	return truncate(string(b), slackErrorMaxChars)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
