package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3RangeReader reads ranges out of objects in a single bucket via
// anonymous GetObject calls, the way the archive's public mirror is
// normally accessed.
type S3RangeReader struct {
	client *s3.Client
	bucket string
}

// NewS3RangeReader builds an S3RangeReader for bucket using the
// region's default resolution (env vars, shared config, IMDS). When
// anonymous is true, request signing is disabled so the reader works
// against public buckets with no local credentials configured.
func NewS3RangeReader(ctx context.Context, bucket, region string, anonymous bool) (*S3RangeReader, error) {
	optFns := []func(*config.LoadOptions) error{}
	if region != "" {
		optFns = append(optFns, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if anonymous {
			o.Credentials = aws.AnonymousCredentials{}
		}
	})
	return &S3RangeReader{client: client, bucket: bucket}, nil
}

// ReadRange implements RangeReader.
func (r *S3RangeReader) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
		Range:  aws.String(rangeHeader(offset, length)),
	})
	if err != nil {
		return nil, classifyS3Error(key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// classifyS3Error turns the SDK's error taxonomy into a *StatusError
// carrying the nearest HTTP-equivalent status, so the retry layer can
// apply one classification table regardless of backend.
func classifyS3Error(key string, err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return &StatusError{Key: key, Status: 404, Err: err}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return &StatusError{Key: key, Status: 404, Err: err}
		case "InvalidRange":
			return &StatusError{Key: key, Status: 416, Err: err}
		case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError":
			return &StatusError{Key: key, Status: 503, Err: err}
		}
	}
	return &StatusError{Key: key, Status: 0, Err: err}
}
