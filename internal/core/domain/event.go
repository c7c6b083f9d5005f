package domain

import "time"

// Event is a diagnostic invoice_alert_events row: the persistent error and
// audit trail of the jobs. Recording is always best-effort.
type Event struct {
	Type            string         `json:"event_type"`
	DocumentID      string         `json:"document_id"`
	RuleID          string         `json:"rule_id,omitempty"`
	ParsedInvoiceID string         `json:"parsed_invoice_id,omitempty"`
	SlackTS         string         `json:"slack_ts,omitempty"`
	FiredAt         time.Time      `json:"fired_at"`
	Payload         map[string]any `json:"payload,omitempty"`
}
