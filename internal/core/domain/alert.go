package domain

import (
	"strings"
	"time"
)

// Business lifecycle of an alert row.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusError   = "error"
)

// Delivery lifecycle. slack_status only ever advances
// pending -> sending -> {sent, error, skipped}.
const (
	SlackPending = "pending"
	SlackSending = "sending"
	SlackSent    = "sent"
	SlackError   = "error"
	SlackSkipped = "skipped"
)

// MatchEvidence is the cached proof of why a rule matched, persisted as the
// alert's match_payload and reused for fee resolution without re-matching.
type MatchEvidence struct {
	RuleName         string     `json:"rule_name,omitempty"`
	MatchedKeywords  []string   `json:"matched_keywords,omitempty"`
	MatchedLineItems []LineItem `json:"matched_line_items,omitempty"`
}

// Alert is the one mutable entity of this service, unique on
// (rule_id, parsed_invoice_id).
type Alert struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	DocumentID      string        `json:"document_id"`
	ParsedInvoiceID string        `json:"parsed_invoice_id"`
	RuleID          string        `json:"rule_id"`
	Status          string        `json:"status"`
	SlackStatus     string        `json:"slack_status"`
	SlackError      string        `json:"slack_error,omitempty"`
	MatchReason     string        `json:"match_reason,omitempty"`
	Evidence        MatchEvidence `json:"match_payload"`
}

// NormalizeDeliveryState lowercases and trims a raw slack_status value so
// legacy spellings compare cleanly.
func NormalizeDeliveryState(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsDelivered reports whether a slack_status value records a completed send.
// Legacy rows used "ok" and "success".
func IsDelivered(slackStatus string) bool {
	switch NormalizeDeliveryState(slackStatus) {
	case SlackSent, "ok", "success":
		return true
	}
	return false
}

// IsBlankDeliveryState reports whether a slack_status value is one of the
// legacy empty markers that must be normalized to pending.
func IsBlankDeliveryState(slackStatus string) bool {
	switch NormalizeDeliveryState(slackStatus) {
	case "", "null", "none":
		return true
	}
	return false
}

// CanReopenDelivery reports whether the upgrade path may reset a row's
// slack_status to pending. A row mid-sending belongs to a concurrent flush
// run, and a completed send is never reopened.
func CanReopenDelivery(slackStatus string) bool {
	if IsBlankDeliveryState(slackStatus) {
		return true
	}
	switch NormalizeDeliveryState(slackStatus) {
	case SlackPending, SlackSkipped, SlackError:
		return true
	}
	return false
}

// Fee is a resolved (name, amount) pair for an alert.
type Fee struct {
	Name   string `json:"fee_name"`
	Amount Amount `json:"fee_amount"`
}

// Actionable reports whether the fee is worth a human's attention: a named
// fee with a strictly positive amount.
func (f Fee) Actionable() bool {
	return strings.TrimSpace(f.Name) != "" && f.Amount.Positive()
}

// AlertSummary is the read-API projection of an actionable alert.
type AlertSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	DocumentID  string    `json:"document_id"`
	Status      string    `json:"status"`
	SlackStatus string    `json:"slack_status"`
	RuleName    string    `json:"rule_name,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	Tail        string    `json:"tail,omitempty"`
	AirportCode string    `json:"airport_code,omitempty"`
	FeeName     string    `json:"fee_name"`
	FeeAmount   Amount    `json:"fee_amount"`
	Currency    string    `json:"currency,omitempty"`
}
