package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/config"
)

var (
	ErrFileTooLarge           = errors.New("file exceeds the upload size ceiling")
	ErrUnsupportedContentType = errors.New("unsupported file content type")
)

// Proof uploads may be photos of a transfer receipt or a bank-generated PDF.
var allowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads payment-proof files to an S3 bucket and returns their
// public URL. Size and content-type limits are enforced here, before any
// network call.
type S3Store struct {
	client   s3API
	bucket   string
	region   string
	maxBytes int64
}

func NewS3Store(ctx context.Context, cfg config.UploadConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load AWS config: %w", err)
	}
	return &S3Store{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		maxBytes: cfg.MaxBytes,
	}, nil
}

func (s *S3Store) Store(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), s.maxBytes)
	}
	if !allowedContentTypes[contentType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("storage: failed to generate object key: %w", err)
	}
	key := fmt.Sprintf("payment-proofs/%s%s", id, filepath.Ext(filename))

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage: failed to upload proof object: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	log.Info().Str("key", key).Int("bytes", len(data)).Msg("storage: payment proof uploaded")
	return url, nil
}
