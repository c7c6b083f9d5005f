package ports

import (
	"context"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

type CreateSummary struct {
	Created  int `json:"created"`
	Upgraded int `json:"upgraded"`
}

type NextResult struct {
	DocumentID      string `json:"document_id"`
	ParsedInvoiceID string `json:"parsed_invoice_id"`
	Created         int    `json:"created"`
	Upgraded        int    `json:"upgraded"`
}

type NextSummary struct {
	Ran      int          `json:"ran"`
	Created  int          `json:"created"`
	Upgraded int          `json:"upgraded"`
	Results  []NextResult `json:"results"`
}

type FlushSummary struct {
	Sent    int `json:"sent"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	Healed  int `json:"healed"`
}

// AlertCreator scans invoices and creates or upgrades alert rows.
type AlertCreator interface {
	Run(ctx context.Context, limit, lookbackMinutes int) (CreateSummary, error)
	RunNext(ctx context.Context, limit, lookbackMinutes int) (NextSummary, error)
	RunForDocument(ctx context.Context, documentID string) (CreateSummary, error)
}

// AlertFlusher runs the claim/send/finalize cycle.
type AlertFlusher interface {
	Run(ctx context.Context, limit int) (FlushSummary, error)
}

type ListAlertsQuery struct {
	Limit       int
	Q           string
	Status      string
	SlackStatus string
}

// AlertLister serves only currently-actionable alerts and never errors: a
// failing backend degrades to an empty result.
type AlertLister interface {
	List(ctx context.Context, query ListAlertsQuery) []domain.AlertSummary
}

type InvoiceQuery struct {
	Limit          int
	Vendor         string
	DocType        string
	ReviewRequired *bool
}

type InvoiceSummary struct {
	ID             string        `json:"id"`
	DocumentID     string        `json:"document_id"`
	CreatedAt      time.Time     `json:"created_at"`
	VendorName     string        `json:"vendor_name,omitempty"`
	InvoiceNumber  string        `json:"invoice_number,omitempty"`
	InvoiceDate    string        `json:"invoice_date,omitempty"`
	AirportCode    string        `json:"airport_code,omitempty"`
	TailNumber     string        `json:"tail_number,omitempty"`
	Currency       string        `json:"currency,omitempty"`
	Total          domain.Amount `json:"total"`
	DocType        string        `json:"doc_type,omitempty"`
	ReviewRequired bool          `json:"review_required"`
	RiskScore      domain.Amount `json:"risk_score"`
	HasLineItems   bool          `json:"has_line_items"`
}

type InvoiceDetail struct {
	Invoice      *domain.Invoice `json:"invoice"`
	SignedPDFURL string          `json:"signed_pdf_url,omitempty"`
}

// InvoiceReader exposes the invoice-browsing collaborators consumed by the
// read API.
type InvoiceReader interface {
	List(ctx context.Context, query InvoiceQuery) ([]InvoiceSummary, error)
	Get(ctx context.Context, documentID string) (*InvoiceDetail, error)
	FileURL(ctx context.Context, documentID string) (string, error)
}
