package domain

import (
	"math"
	"strings"
	"time"
)

// chargedEpsilon separates genuinely billed line items from zero/rounding
// noise; negative totals are credits and never count as charged.
const chargedEpsilon = 0.01

// LineItem is one row of a parsed invoice. Vendors disagree on which field
// carries the billed amount, so every observed candidate is kept as its own
// column and probed in a fixed order by the fee resolver.
type LineItem struct {
	Description string `json:"description,omitempty"`
	Name        string `json:"name,omitempty"`
	Desc        string `json:"desc,omitempty"`

	Quantity Amount `json:"quantity"`
	Qty      Amount `json:"qty"`

	UnitPrice Amount `json:"unit_price"`
	Rate      Amount `json:"rate"`
	Price     Amount `json:"price"`

	Total     Amount `json:"total"`
	AmountVal Amount `json:"amount"`
	LineTotal Amount `json:"line_total"`
	Extended  Amount `json:"extended"`
	ExtAmount Amount `json:"ext_amount"`
	ValueAmt  Amount `json:"value"`
	Subtotal  Amount `json:"subtotal"`
	Charge    Amount `json:"charge"`

	Tax Amount `json:"tax"`
}

// Label returns the human-readable name of the line item.
func (li LineItem) Label() string {
	for _, s := range []string{li.Description, li.Name, li.Desc} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// AmountCandidates returns the billed-amount fields in probing order. The
// order is inherited from observed vendor data; changing it changes which
// historical amounts get reported.
func (li LineItem) AmountCandidates() []Amount {
	return []Amount{
		li.Total,
		li.AmountVal,
		li.LineTotal,
		li.Extended,
		li.ExtAmount,
		li.ValueAmt,
		li.Subtotal,
		li.Charge,
	}
}

// Charged reports whether the item was actually billed: a positive total.
// Zero totals are waived fees, negatives are credits.
func (li LineItem) Charged() bool {
	return li.Total.Or(0) > chargedEpsilon
}

func (li LineItem) QuantityValue() (float64, bool) {
	if li.Quantity.Valid() {
		return li.Quantity.Float()
	}
	return li.Qty.Float()
}

func (li LineItem) UnitPriceValue() (float64, bool) {
	for _, a := range []Amount{li.UnitPrice, li.Rate, li.Price} {
		if a.Valid() {
			return a.Float()
		}
	}
	return 0, false
}

// SynthesizedAmount computes quantity × unit price, rounded to cents. Callers
// enforcing charged evidence must not use it: it can resurrect a waived fee.
func (li LineItem) SynthesizedAmount() (float64, bool) {
	qty, okQty := li.QuantityValue()
	unit, okUnit := li.UnitPriceValue()
	if !okQty || !okUnit {
		return 0, false
	}
	return math.Round(qty*unit*100) / 100, true
}

// Invoice is a parsed_invoices row. Read-only to this service.
type Invoice struct {
	ID             string     `json:"id"`
	DocumentID     string     `json:"document_id"`
	CreatedAt      time.Time  `json:"created_at"`
	VendorName     string     `json:"vendor_name,omitempty"`
	VendorNormal   string     `json:"vendor_normalized,omitempty"`
	InvoiceNumber  string     `json:"invoice_number,omitempty"`
	InvoiceDate    string     `json:"invoice_date,omitempty"`
	AirportCode    string     `json:"airport_code,omitempty"`
	DocType        string     `json:"doc_type,omitempty"`
	TailNumber     string     `json:"tail_number,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Total          Amount     `json:"total"`
	HandlingFee    Amount     `json:"handling_fee"`
	ServiceFee     Amount     `json:"service_fee"`
	Surcharge      Amount     `json:"surcharge"`
	RiskScore      Amount     `json:"risk_score"`
	ReviewRequired bool       `json:"review_required"`
	LineItems      []LineItem `json:"line_items,omitempty"`
}

// TextBlob synthesizes the invoice-level haystack used for keyword matching:
// every identifying field, lowercased and space-joined.
func (inv Invoice) TextBlob() string {
	parts := []string{
		inv.VendorName,
		inv.VendorNormal,
		inv.InvoiceNumber,
		inv.AirportCode,
		inv.TailNumber,
		inv.DocType,
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, " ")
}
