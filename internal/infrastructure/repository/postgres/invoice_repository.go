package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/infrastructure/resilience"
)

type InvoiceRepository struct {
	db       *sql.DB
	table    string
	executor *resilience.Executor
}

func NewInvoiceRepository(db *sql.DB, tables Tables, executor *resilience.Executor) *InvoiceRepository {
	return &InvoiceRepository{db: db, table: tables.normalize().Invoices, executor: executor}
}

const invoiceColumns = `id, document_id, created_at, vendor_name, vendor_normalized, invoice_number, invoice_date,
	airport_code, doc_type, tail_number, currency,
	total, handling_fee, service_fee, surcharge, risk_score,
	COALESCE(review_required, FALSE), line_items`

// GetByDocumentID returns the newest parse for a document. Reparsing inserts
// a fresh row, so the latest one is authoritative.
func (r *InvoiceRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.Invoice, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT 1
`, invoiceColumns, r.table)

	var inv *domain.Invoice
	err := runRead(ctx, r.executor, "postgres.invoice_get", func(ctx context.Context) error {
		var scanErr error
		inv, scanErr = scanInvoice(r.db.QueryRowContext(ctx, query, documentID))
		return scanErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "invoice lookup", fmt.Errorf("document %s", documentID))
		}
		return nil, err
	}
	return inv, nil
}

func (r *InvoiceRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]domain.Invoice, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE created_at >= $1
ORDER BY created_at DESC
LIMIT $2
`, invoiceColumns, r.table)

	return r.query(ctx, query, since, limit)
}

func (r *InvoiceRepository) ListLatest(ctx context.Context, limit int) ([]domain.Invoice, error) {
	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY created_at DESC
LIMIT $1
`, invoiceColumns, r.table)

	return r.query(ctx, query, limit)
}

// BatchByDocumentIDs fetches the newest parse per document in one round trip.
func (r *InvoiceRepository) BatchByDocumentIDs(ctx context.Context, documentIDs []string) (map[string]*domain.Invoice, error) {
	out := make(map[string]*domain.Invoice, len(documentIDs))
	if len(documentIDs) == 0 {
		return out, nil
	}

	query := fmt.Sprintf(`
SELECT DISTINCT ON (document_id) %s
FROM %s
WHERE document_id = ANY($1)
ORDER BY document_id, created_at DESC
`, invoiceColumns, r.table)

	err := runRead(ctx, r.executor, "postgres.invoice_batch", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, documentIDs)
		if err != nil {
			return fmt.Errorf("query invoices batch: %w", err)
		}
		defer rows.Close()

		clear(out)
		for rows.Next() {
			inv, err := scanInvoice(rows)
			if err != nil {
				return err
			}
			out[inv.DocumentID] = inv
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate invoices batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *InvoiceRepository) query(ctx context.Context, query string, args ...any) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := runRead(ctx, r.executor, "postgres.invoice_list", func(ctx context.Context) error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query invoices: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			inv, err := scanInvoice(rows)
			if err != nil {
				return err
			}
			out = append(out, *inv)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate invoices: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var documentID, vendorName, vendorNormal, invoiceNumber, invoiceDate sql.NullString
	var airportCode, docType, tailNumber, currency sql.NullString
	var lineItemsRaw []byte

	err := row.Scan(
		&inv.ID, &documentID, &inv.CreatedAt, &vendorName, &vendorNormal, &invoiceNumber, &invoiceDate,
		&airportCode, &docType, &tailNumber, &currency,
		&inv.Total, &inv.HandlingFee, &inv.ServiceFee, &inv.Surcharge, &inv.RiskScore,
		&inv.ReviewRequired, &lineItemsRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}

	inv.DocumentID = documentID.String
	inv.VendorName = vendorName.String
	inv.VendorNormal = vendorNormal.String
	inv.InvoiceNumber = invoiceNumber.String
	inv.InvoiceDate = invoiceDate.String
	inv.AirportCode = airportCode.String
	inv.DocType = docType.String
	inv.TailNumber = tailNumber.String
	inv.Currency = currency.String

	if len(lineItemsRaw) > 0 {
		// Parser output is loosely typed; unparseable line items degrade to an
		// empty list rather than failing the whole row.
		_ = json.Unmarshal(lineItemsRaw, &inv.LineItems)
	}
	return &inv, nil
}
