package s3

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage signs time-limited download URLs for stored invoice PDFs. The
// service never writes objects; the upload pipeline owns the buckets.
type Storage struct {
	client *minio.Client
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

func New(options Options) (*Storage, error) {
	client, err := minio.New(options.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(options.AccessKey, options.SecretKey, ""),
		Secure: options.UseSSL,
		Region: options.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &Storage{client: client}, nil
}

// PresignDocumentURL returns a signed GET URL for a stored PDF. The response
// headers steer browsers toward inline viewing instead of a download prompt.
func (s *Storage) PresignDocumentURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	bucket = strings.TrimSpace(bucket)
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if bucket == "" || path == "" {
		return "", fmt.Errorf("presign: bucket and path are required")
	}

	params := url.Values{}
	params.Set("response-content-disposition", "inline")
	params.Set("response-content-type", "application/pdf")

	u, err := s.client.PresignedGetObject(ctx, bucket, path, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign document object: %w", err)
	}
	return u.String(), nil
}
