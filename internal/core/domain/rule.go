package domain

import "time"

// Rule is an invoice_alert_rules row. The legacy is_enabled/enabled column
// pair is normalized into the single Enabled flag at the storage boundary.
type Rule struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Enabled bool `json:"enabled"`

	Keywords []string `json:"keywords,omitempty"`

	MinTotal          Amount `json:"min_total"`
	MinHandlingFee    Amount `json:"min_handling_fee"`
	MinServiceFee     Amount `json:"min_service_fee"`
	MinSurcharge      Amount `json:"min_surcharge"`
	MinRiskScore      Amount `json:"min_risk_score"`
	MinLineItemAmount Amount `json:"min_line_item_amount"`

	VendorNormalizedIn []string `json:"vendor_normalized_in,omitempty"`
	DocTypeIn          []string `json:"doc_type_in,omitempty"`
	AirportCodeIn      []string `json:"airport_code_in,omitempty"`

	RequireReviewRequired   bool `json:"require_review_required"`
	RequireChargedLineItems bool `json:"require_charged_line_items"`

	SlackChannel string    `json:"slack_channel,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
