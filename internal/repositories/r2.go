package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/config"
)

// R2Store keeps files in an S3 compatible bucket. Object keys mirror the local
// layout (uploads/, signed/, temp/) and are used as the stored paths.
type R2Store struct {
	client *s3.Client
	bucket string
}

var _ FileStore = (*R2Store)(nil)

// NewR2Store initializes the client using static credentials and a custom endpoint.
func NewR2Store(cfg config.R2Config) (*R2Store, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if cfg.AccountID == "" {
			return nil, errors.New("r2: account id or endpoint required")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      cfg.Region,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return &R2Store{client: client, bucket: cfg.BucketName}, nil
}

func objectKey(area Area, name string) string {
	return path.Join(string(area), name)
}

func stagingKey() string {
	return path.Join(tempDir, uuid.NewString())
}

func (s *R2Store) Stage(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	key := stagingKey()
	if err := s.putObject(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *R2Store) Discard(ctx context.Context, staged string) error {
	return s.Remove(ctx, staged)
}

// Exists checks whether area/name is present in the bucket.
func (s *R2Store) Exists(ctx context.Context, area Area, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(area, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Promote copies the staged object into place and drops the staged copy.
func (s *R2Store) Promote(ctx context.Context, staged string, area Area, name string) (string, error) {
	key := objectKey(area, name)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(copySource(s.bucket, staged)),
		Key:        aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", staged, mapObjectErr(err))
	}
	if err := s.Remove(ctx, staged); err != nil {
		return "", err
	}
	return key, nil
}

func (s *R2Store) Put(ctx context.Context, area Area, name string, data []byte) (string, error) {
	key := objectKey(area, name)
	if err := s.putObject(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *R2Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, mapObjectErr(err))
	}
	return out.Body, nil
}

func (s *R2Store) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *R2Store) putObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

// mapObjectErr lets callers test for missing objects with fs.ErrNotExist.
func mapObjectErr(err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	}
	return err
}
