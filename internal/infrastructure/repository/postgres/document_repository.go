package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skylineops/invoice-alerts/internal/core/domain"
)

type DocumentRepository struct {
	db    *sql.DB
	table string
}

func NewDocumentRepository(db *sql.DB, tables Tables) *DocumentRepository {
	return &DocumentRepository{db: db, table: tables.normalize().Documents}
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := fmt.Sprintf(`
SELECT id, attachment_filename, storage_bucket, storage_path, raw_file_url, created_at
FROM %s
WHERE id = $1
`, r.table)

	row := r.db.QueryRowContext(ctx, query, id)

	var doc domain.Document
	var filename, bucket, path, rawURL sql.NullString

	err := row.Scan(&doc.ID, &filename, &bucket, &path, &rawURL, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "document lookup", fmt.Errorf("document %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.AttachmentFilename = filename.String
	doc.StorageBucket = bucket.String
	doc.StoragePath = path.String
	doc.RawFileURL = rawURL.String
	return &doc, nil
}
