// Package gcs implements an Operator over Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type gcsOperator struct {
	bucket string
	client *storage.Client
}

// New builds a GCS Operator from the Config, authenticating with its
// JSON-encoded Credential. Token refresh uses the Config's HTTPClient as its
// base transport, so it observes the same request timeout. The Operator is
// read-only, so the Config's PredefinedACL (which applies to writes) and
// VersionID are not used.
func New(cfg operator.Config) (operator.Operator, error) {
	var ctx = context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.Credential), storage.ScopeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("parsing GCS credential: %w", err)
	}
	var hc = oauth2.NewClient(ctx, creds.TokenSource)
	if cfg.HTTPClient != nil {
		hc.Timeout = cfg.HTTPClient.Timeout
	}

	var opts = []option.ClientOption{option.WithHTTPClient(hc)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("constructing GCS client: %w", err)
	}
	client.SetRetry(storage.WithPolicy(storage.RetryNever))

	log.WithFields(log.Fields{
		"bucket":    cfg.Bucket,
		"projectID": creds.ProjectID,
	}).Debug("constructed new GCS operator")

	return &gcsOperator{
		bucket: cfg.Bucket,
		client: client,
	}, nil
}

func (o *gcsOperator) List(ctx context.Context, prefix string) ([]operator.Entry, error) {
	var (
		q   = storage.Query{Prefix: prefix}
		it  = o.client.Bucket(o.bucket).Objects(ctx, &q)
		out []operator.Entry
		obj *storage.ObjectAttrs
		err error
	)
	for obj, err = it.Next(); err == nil; obj, err = it.Next() {
		out = append(out, operator.Entry{
			Path: obj.Name,
			Metadata: operator.Metadata{
				ContentLength: obj.Size,
				IsDir:         strings.HasSuffix(obj.Name, "/"),
			},
		})
	}
	if err != iterator.Done {
		return nil, wrapError("list", prefix, err)
	}
	return out, nil
}

func (o *gcsOperator) Stat(ctx context.Context, key string) (operator.Metadata, error) {
	if operator.IsDirKey(key) {
		return o.statDir(ctx, key)
	}
	attrs, err := o.client.Bucket(o.bucket).Object(key).Attrs(ctx)
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	}
	return operator.Metadata{ContentLength: attrs.Size}, nil
}

// statDir verifies that at least one object exists beneath the prefix.
func (o *gcsOperator) statDir(ctx context.Context, key string) (operator.Metadata, error) {
	var it = o.client.Bucket(o.bucket).Objects(ctx, &storage.Query{Prefix: key})
	it.PageInfo().MaxSize = 1

	if _, err := it.Next(); err == iterator.Done {
		return operator.Metadata{}, operator.NotFound("stat", key)
	} else if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	}
	return operator.Metadata{IsDir: true}, nil
}

func (o *gcsOperator) Read(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error) {
	var offset, length int64 = 0, -1
	if rng != nil && rng.Length == 0 {
		// An empty range isn't requested. Stat for existence instead.
		if _, err := o.Stat(ctx, key); err != nil {
			return nil, err
		}
		return io.NopCloser(strings.NewReader("")), nil
	} else if rng != nil {
		offset, length = int64(rng.Start), int64(rng.Length)
	}
	rc, err := o.client.Bucket(o.bucket).Object(key).NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, wrapError("read", key, err)
	}
	return rc, nil
}

// wrapError classifies a GCS error into an *operator.Error.
func wrapError(op, key string, err error) error {
	var wrapped = &operator.Error{Op: op, Key: key, Err: err}

	if errors.Is(err, storage.ErrObjectNotExist) {
		wrapped.StatusCode = http.StatusNotFound
		wrapped.Err = fmt.Errorf("%w: %v", operator.ErrNotFound, err)
	} else if errors.Is(err, storage.ErrBucketNotExist) {
		wrapped.StatusCode = http.StatusNotFound
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		wrapped.StatusCode = gErr.Code
	}
	return wrapped
}
