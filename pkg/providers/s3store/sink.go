package s3store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"teledrive/pkg/integrity"
	"teledrive/pkg/models"
	"teledrive/pkg/transfer"
)

// API is the subset of *s3.Client the sink uses
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Sink stores items as objects under a key prefix in one bucket
type Sink struct {
	client API
	prefix string
	region string
	log    *slog.Logger
}

// NewSink creates an S3 sink. prefix is prepended to every object key.
func NewSink(client API, prefix, region string, log *slog.Logger) *Sink {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Sink{client: client, prefix: prefix, region: region, log: log}
}

// EnsureContainer checks that bucket exists and creates it if missing.
// The bucket name is the container id.
func (s *Sink) EnsureContainer(ctx context.Context, bucket string) (string, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return bucket, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("failed to check bucket %s: %w", bucket, mapError(err))
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit LocationConstraint
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return bucket, nil
		}
		return "", fmt.Errorf("failed to create bucket %s: %w", bucket, mapError(err))
	}
	s.log.Info("Created bucket", "bucket", bucket, "region", s.region)
	return bucket, nil
}

// ResolveUniqueName checks object keys until one is free
func (s *Sink) ResolveUniqueName(ctx context.Context, bucket, proposed string) (string, error) {
	return transfer.NextFreeName(proposed, func(name string) (bool, error) {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(s.key(name)),
		})
		if err == nil {
			return true, nil
		}
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object %s: %w", name, mapError(err))
	})
}

// Write uploads the spooled body with a single PutObject
func (s *Sink) Write(ctx context.Context, req transfer.WriteRequest) (transfer.WriteResult, error) {
	start := time.Now()
	key := s.key(req.Name)

	input := &s3.PutObjectInput{
		Bucket: aws.String(req.ContainerID),
		Key:    aws.String(key),
		Body:   req.Body,
		Metadata: map[string]string{
			"source":        "telegram",
			"original-name": sanitizeMetadataValue(req.Name),
			"uploaded-at":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	// Some S3-compatible stores reject Content-Length: 0, so empty objects omit it
	if req.Size > 0 {
		input.ContentLength = aws.Int64(req.Size)
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	// The body is a plain reader, so the payload is sent unsigned
	out, err := s.client.PutObject(ctx, input, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return transfer.WriteResult{}, fmt.Errorf("failed to upload %s to %s/%s: %w", req.Name, req.ContainerID, key, mapError(err))
	}
	if req.OnProgress != nil {
		req.OnProgress(req.Size, time.Since(start))
	}

	return transfer.WriteResult{
		ID:       req.ContainerID + "/" + key,
		Checksum: integrity.CleanETag(aws.ToString(out.ETag)),
		Size:     req.Size,
	}, nil
}

func (s *Sink) key(name string) string {
	return s.prefix + name
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nb *types.NoSuchBucket
	var nk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nb) || errors.As(err, &nk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	var re *smithyhttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// mapError translates S3 failures onto the retry taxonomy
func mapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ExpiredToken", "TokenRefreshRequired", "RequestExpired":
			return fmt.Errorf("%w: %w", models.ErrAuthExpired, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied":
			return fmt.Errorf("%w: %w", models.ErrAuthUnavailable, err)
		case "QuotaExceeded":
			return fmt.Errorf("%w: %w", models.ErrQuotaExceeded, err)
		case "BadDigest", "XAmzContentSHA256Mismatch":
			return fmt.Errorf("%w: %w", models.ErrChecksumMismatch, err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
		}
	}

	var re *smithyhttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
	}
	return err
}

// sanitizeMetadataValue keeps metadata to printable ASCII within the
// 1024-byte S3 limit; some S3-compatible stores reject anything else
func sanitizeMetadataValue(value string) string {
	if len(value) > 1024 {
		value = value[:1024]
	}

	var result strings.Builder
	for _, r := range value {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			result.WriteByte(' ')
		case r == 0:
		case r >= 32 && r <= 126:
			result.WriteRune(r)
		default:
			result.WriteByte('?')
		}
	}
	return strings.TrimSpace(result.String())
}
