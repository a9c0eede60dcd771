// Package s3 implements an Operator over Amazon S3.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
)

// DefaultRegion is used when neither the Config nor an explicit endpoint
// determines a region. Request signing requires one.
const DefaultRegion = "us-east-1"

type s3Operator struct {
	bucket    string
	versionID string
	client    *s3.S3
}

// New builds an S3 Operator from the Config. Static credentials are always
// used: the SDK's default credential chain is not consulted.
func New(cfg operator.Config) (operator.Operator, error) {
	var awsConfig = aws.NewConfig().
		WithCredentials(credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, cfg.SessionToken)).
		WithHTTPClient(cfg.HTTPClient).
		WithRegion(DefaultRegion).
		WithMaxRetries(0)

	if cfg.Region != "" {
		awsConfig.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsConfig.WithEndpoint(cfg.Endpoint)
		// We must force path style because bucket-named virtual hosts
		// are not compatible with explicit endpoints.
		awsConfig.WithS3ForcePathStyle(true)
	}

	awsSession, err := session.NewSessionWithOptions(session.Options{Config: *awsConfig})
	if err != nil {
		return nil, fmt.Errorf("constructing S3 session: %w", err)
	}

	log.WithFields(log.Fields{
		"bucket":   cfg.Bucket,
		"endpoint": cfg.Endpoint,
		"region":   aws.StringValue(awsSession.Config.Region),
		"keyID":    cfg.AccessKeyID,
	}).Debug("constructed new S3 operator")

	return &s3Operator{
		bucket:    cfg.Bucket,
		versionID: cfg.VersionID,
		client:    s3.New(awsSession),
	}, nil
}

func (o *s3Operator) List(ctx context.Context, prefix string) ([]operator.Entry, error) {
	var q = s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(prefix),
	}
	var out []operator.Entry

	var err = o.client.ListObjectsV2PagesWithContext(ctx, &q, func(objs *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range objs.Contents {
			var key = aws.StringValue(obj.Key)
			out = append(out, operator.Entry{
				Path: key,
				Metadata: operator.Metadata{
					ContentLength: aws.Int64Value(obj.Size),
					IsDir:         strings.HasSuffix(key, "/"),
				},
			})
		}
		return true // Continue to next page.
	})
	if err != nil {
		return nil, wrapError("list", prefix, err)
	}
	return out, nil
}

func (o *s3Operator) Stat(ctx context.Context, key string) (operator.Metadata, error) {
	if operator.IsDirKey(key) {
		return o.statDir(ctx, key)
	}
	var headObj = s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	}
	if o.versionID != "" {
		headObj.VersionId = aws.String(o.versionID)
	}
	resp, err := o.client.HeadObjectWithContext(ctx, &headObj)
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	}
	return operator.Metadata{ContentLength: aws.Int64Value(resp.ContentLength)}, nil
}

// statDir verifies that at least one object exists beneath the prefix.
func (o *s3Operator) statDir(ctx context.Context, key string) (operator.Metadata, error) {
	var q = s3.ListObjectsV2Input{
		Bucket:  aws.String(o.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int64(1),
	}
	resp, err := o.client.ListObjectsV2WithContext(ctx, &q)
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	} else if len(resp.Contents) == 0 && len(resp.CommonPrefixes) == 0 {
		return operator.Metadata{}, operator.NotFound("stat", key)
	}
	return operator.Metadata{IsDir: true}, nil
}

func (o *s3Operator) Read(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error) {
	var getObj = s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	}
	if o.versionID != "" {
		getObj.VersionId = aws.String(o.versionID)
	}
	if rng != nil {
		if rng.Length == 0 {
			// An empty range has no Range header form. Stat for existence instead.
			if _, err := o.Stat(ctx, key); err != nil {
				return nil, err
			}
			return io.NopCloser(strings.NewReader("")), nil
		}
		getObj.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End()-1))
	}
	resp, err := o.client.GetObjectWithContext(ctx, &getObj)
	if err != nil {
		return nil, wrapError("read", key, err)
	}
	return resp.Body, nil
}

// wrapError classifies an SDK error into an *operator.Error.
func wrapError(op, key string, err error) error {
	var wrapped = &operator.Error{Op: op, Key: key, Err: err}

	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		wrapped.StatusCode = reqErr.StatusCode()
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			wrapped.StatusCode = http.StatusNotFound
			wrapped.Err = fmt.Errorf("%w: %s", operator.ErrNotFound, awsErr.Message())
		case s3.ErrCodeNoSuchBucket:
			wrapped.StatusCode = http.StatusNotFound
		case s3ErrCodeAccessDenied:
			wrapped.StatusCode = http.StatusForbidden
		}
	}
	return wrapped
}

const (
	// AWS S3 error codes not defined as constants in the SDK
	s3ErrCodeAccessDenied = "AccessDenied"
)
