package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
)

const (
	maxInvoiceListLimit = 200
	invoiceListWindow   = 1000
	fileURLExpiry       = 7 * 24 * time.Hour
)

// ListInvoicesUseCase backs the invoice-browsing endpoints: summaries,
// detail with a signed PDF URL, and direct file redirection.
type ListInvoicesUseCase struct {
	invoiceRepo ports.InvoiceRepository
	docRepo     ports.DocumentRepository
	storage     ports.ObjectStorage

	signedURLExpiry time.Duration
}

func NewListInvoicesUseCase(
	invoiceRepo ports.InvoiceRepository,
	docRepo ports.DocumentRepository,
	storage ports.ObjectStorage,
	signedURLExpiry time.Duration,
) *ListInvoicesUseCase {
	return &ListInvoicesUseCase{
		invoiceRepo:     invoiceRepo,
		docRepo:         docRepo,
		storage:         storage,
		signedURLExpiry: signedURLExpiry,
	}
}

func (uc *ListInvoicesUseCase) List(ctx context.Context, query ports.InvoiceQuery) ([]ports.InvoiceSummary, error) {
	limit := clamp(query.Limit, 1, maxInvoiceListLimit)

	rows, err := uc.invoiceRepo.ListLatest(ctx, invoiceListWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch invoices: %w", err)
	}

	out := make([]ports.InvoiceSummary, 0, limit)
	for _, inv := range rows {
		if query.Vendor != "" && !strings.Contains(strings.ToLower(inv.VendorName), strings.ToLower(query.Vendor)) {
			continue
		}
		if query.DocType != "" && inv.DocType != query.DocType {
			continue
		}
		if query.ReviewRequired != nil && inv.ReviewRequired != *query.ReviewRequired {
			continue
		}

		out = append(out, ports.InvoiceSummary{
			ID:             inv.ID,
			DocumentID:     inv.DocumentID,
			CreatedAt:      inv.CreatedAt,
			VendorName:     inv.VendorName,
			InvoiceNumber:  inv.InvoiceNumber,
			InvoiceDate:    inv.InvoiceDate,
			AirportCode:    inv.AirportCode,
			TailNumber:     inv.TailNumber,
			Currency:       inv.Currency,
			Total:          inv.Total,
			DocType:        inv.DocType,
			ReviewRequired: inv.ReviewRequired,
			RiskScore:      inv.RiskScore,
			HasLineItems:   len(inv.LineItems) > 0,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (uc *ListInvoicesUseCase) Get(ctx context.Context, documentID string) (*ports.InvoiceDetail, error) {
	inv, err := uc.invoiceRepo.GetByDocumentID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	detail := &ports.InvoiceDetail{Invoice: inv}

	doc, err := uc.docRepo.GetByID(ctx, documentID)
	if err != nil || doc == nil {
		return detail, nil
	}
	if doc.StorageBucket != "" && doc.StoragePath != "" && uc.storage != nil {
		if url, err := uc.storage.PresignDocumentURL(ctx, doc.StorageBucket, doc.StoragePath, uc.signedURLExpiry); err == nil {
			detail.SignedPDFURL = url
		}
	}
	return detail, nil
}

func (uc *ListInvoicesUseCase) FileURL(ctx context.Context, documentID string) (string, error) {
	doc, err := uc.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", domain.WrapError(domain.ErrNotFound, "document lookup", fmt.Errorf("document %s", documentID))
	}
	if doc.StorageBucket == "" || doc.StoragePath == "" {
		return "", domain.WrapError(domain.ErrNotFound, "document file", fmt.Errorf("no stored file for document %s", documentID))
	}
	if uc.storage == nil {
		return "", fmt.Errorf("object storage not configured")
	}

	url, err := uc.storage.PresignDocumentURL(ctx, doc.StorageBucket, doc.StoragePath, fileURLExpiry)
	if err != nil {
		return "", fmt.Errorf("sign document url: %w", err)
	}
	return url, nil
}
