// Package s3blob is a small replicated blob store over an S3-compatible
// bucket (Cloudflare R2 in production). Writers carry the generation
// token (ETag) they read; a conditional put with a stale token fails
// with ErrGenerationConflict instead of clobbering a concurrent write.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// ErrNotFound marks a missing key.
var ErrNotFound = errors.New("blob not found")

// ErrGenerationConflict marks a conditional put that lost the race.
var ErrGenerationConflict = errors.New("blob generation conflict")

// Config holds the bucket coordinates and credentials.
type Config struct {
	AccountID       string // R2 account; builds the endpoint when Endpoint is empty
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string // explicit endpoint override, e.g. for tests
}

// Configured reports whether replication can be enabled.
func (c Config) Configured() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != "" &&
		(c.AccountID != "" || c.Endpoint != "")
}

// Store is one bucket with generation-checked reads and writes.
type Store struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// New builds a store for an S3-compatible bucket.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("blob store credentials incomplete")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load blob store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		log:    log.With().Str("service", "s3blob").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// Get fetches a blob and its generation token.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) || hasStatus(err, 404) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, "", fmt.Errorf("get blob %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read blob %s: %w", key, err)
	}
	return data, aws.ToString(out.ETag), nil
}

// Put writes a blob. With generation == "" the write only succeeds if
// the key does not exist yet; otherwise the write only succeeds if the
// stored generation still matches. Either failure is a conflict.
func (s *Store) Put(ctx context.Context, key string, data []byte, generation string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if generation == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(generation)
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		if hasStatus(err, 412) || hasStatus(err, 409) {
			s.log.Debug().Str("key", key).Msg("conditional put lost the generation race")
			return "", fmt.Errorf("%w: %s", ErrGenerationConflict, key)
		}
		return "", fmt.Errorf("put blob %s: %w", key, err)
	}
	return aws.ToString(out.ETag), nil
}

// Delete removes a blob. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// hasStatus checks the HTTP status carried by an S3 API error.
func hasStatus(err error, status int) bool {
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == status
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && status == 412 {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}
