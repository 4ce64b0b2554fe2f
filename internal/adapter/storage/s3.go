package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"fieldnote/internal/domain"
	"fieldnote/internal/infra/config"
)

// maxListKeys is the page size for ListObjectsV2 (S3's maximum).
const maxListKeys = 1000

// s3API abstracts the S3 client methods used here, for testability.
type s3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// s3PresignAPI abstracts the presign client.
type s3PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error)
}

// presignAdapter narrows *s3.PresignClient to the URL we care about.
type presignAdapter struct {
	client *s3.PresignClient
}

func (p presignAdapter) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// S3Store implements domain.ObjectStore and domain.ObjectLister over one
// bucket. The write path's overwrite protection (head-then-put) lives here.
type S3Store struct {
	bucket  string
	client  s3API
	presign s3PresignAPI
	logger  *slog.Logger
}

// NewS3Store creates a store using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		bucket:  cfg.Bucket,
		client:  client,
		presign: presignAdapter{client: s3.NewPresignClient(client)},
		logger:  logger,
	}, nil
}

// newS3StoreWithClient creates an S3Store with injected clients (for testing).
func newS3StoreWithClient(bucket string, client s3API, presign s3PresignAPI, logger *slog.Logger) *S3Store {
	return &S3Store{bucket: bucket, client: client, presign: presign, logger: logger}
}

// Exists implements domain.ObjectStore.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", key, err)
	}
	return true, nil
}

// Upload implements domain.ObjectStore. When overwrite is false and the key
// is present, it fails with domain.ErrObjectExists — the duplicate-delivery
// guard the processing pipeline relies on.
func (s *S3Store) Upload(ctx context.Context, data []byte, key, contentType string, overwrite bool) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		if !overwrite {
			return "", fmt.Errorf("%w: %s", domain.ErrObjectExists, key)
		}
		s.logger.Info("overwriting existing object", "key", key)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Info("uploaded object", "key", key, "bytes", len(data))
	return key, nil
}

// Download implements domain.ObjectStore.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Delete implements domain.ObjectStore.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	s.logger.Info("deleted object", "key", key)
	return nil
}

// List implements domain.ObjectLister with S3-native pagination.
func (s *S3Store) List(ctx context.Context, prefix, continuationToken string) (*domain.ObjectPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(maxListKeys),
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("list objects %s: %w", prefix, err)
	}

	page := &domain.ObjectPage{
		Objects:   make([]domain.ObjectInfo, 0, len(out.Contents)),
		NextToken: aws.ToString(out.NextContinuationToken),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, domain.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			ETag:         aws.ToString(obj.ETag),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified).UTC(),
		})
	}

	s.logger.Debug("listed objects", "prefix", prefix, "count", len(page.Objects), "more", page.NextToken != "")
	return page, nil
}

// Presign implements domain.ObjectLister. The object must exist; a URL for
// a missing key would defer the 404 to the downloader.
func (s *S3Store) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	url, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return url, nil
}
