// Package objectstore wraps the S3 figure bucket: uploading extracted
// raster images and resolving their public (optionally CDN-fronted) URL.
package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store uploads figure bytes to the configured bucket and builds the
// URL the pipeline persists alongside each figure row.
type Store struct {
	client    *s3.Client
	bucket    string
	cdnDomain string
}

// New builds an object store client from the default AWS config chain
// (environment, shared config, instance role), targeting the given
// bucket/region. cdnDomain may be empty, in which case URLs resolve to
// the bare object key.
func New(ctx context.Context, bucket, region, cdnDomain string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}
	return &Store{
		client:    s3.NewFromConfig(cfg),
		bucket:    bucket,
		cdnDomain: cdnDomain,
	}, nil
}

// Key returns the canonical object key for one paper's figure.
func Key(arxivID string, figureIndex int, ext string) string {
	return fmt.Sprintf("figures/%s/fig_%d.%s", arxivID, figureIndex, ext)
}

// Upload puts the figure bytes at key and returns the URL the pipeline
// should persist: CDN-fronted if a domain is configured, otherwise the
// bare key (matching the reference's fallback behavior).
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put object %s: %w", key, err)
	}

	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, key), nil
	}
	return key, nil
}
