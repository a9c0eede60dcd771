// Package compat implements an Operator over the S3-compatible APIs of
// Aliyun OSS, Huawei Cloud OBS and Tencent Cloud COS.
package compat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
)

// Provider describes an S3-compatible service.
type Provider struct {
	// Name of the provider, used in logs and errors.
	Name string
	// RegionalEndpoint returns the service endpoint of a region.
	RegionalEndpoint func(region string) string
}

var (
	// OSS is Aliyun Object Storage Service.
	OSS = Provider{
		Name:             "oss",
		RegionalEndpoint: func(r string) string { return "oss-" + r + ".aliyuncs.com" },
	}
	// OBS is Huawei Cloud Object Storage Service.
	OBS = Provider{
		Name:             "obs",
		RegionalEndpoint: func(r string) string { return "obs." + r + ".myhuaweicloud.com" },
	}
	// COS is Tencent Cloud Object Storage.
	COS = Provider{
		Name:             "cos",
		RegionalEndpoint: func(r string) string { return "cos." + r + ".myqcloud.com" },
	}
)

type compatOperator struct {
	provider  string
	bucket    string
	versionID string
	client    *minio.Client
}

// New builds an Operator of the Provider from the Config. The Endpoint may
// omit its scheme, in which case HTTPS is used. Without an Endpoint, one is
// derived from the Region.
func (p Provider) New(cfg operator.Config) (operator.Operator, error) {
	var endpoint = cfg.Endpoint
	if endpoint == "" && cfg.Region != "" {
		endpoint = p.RegionalEndpoint(cfg.Region)
	}
	host, secure, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing %s endpoint: %w", p.Name, err)
	}

	var opts = &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.AccessKeySecret, cfg.SessionToken),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupDNS,
	}
	if cfg.HTTPClient != nil {
		opts.Transport = clientTransport(*cfg.HTTPClient)
	}

	client, err := minio.New(host, opts)
	if err != nil {
		return nil, fmt.Errorf("constructing %s client: %w", p.Name, err)
	}

	log.WithFields(log.Fields{
		"provider": p.Name,
		"bucket":   cfg.Bucket,
		"endpoint": host,
		"secure":   secure,
	}).Debug("constructed new S3-compatible operator")

	return &compatOperator{
		provider:  p.Name,
		bucket:    cfg.Bucket,
		versionID: cfg.VersionID,
		client:    client,
	}, nil
}

func (o *compatOperator) List(ctx context.Context, prefix string) ([]operator.Entry, error) {
	var out []operator.Entry

	for obj := range o.client.ListObjects(ctx, o.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, wrapError("list", prefix, obj.Err)
		}
		out = append(out, operator.Entry{
			Path: obj.Key,
			Metadata: operator.Metadata{
				ContentLength: obj.Size,
				IsDir:         strings.HasSuffix(obj.Key, "/"),
			},
		})
	}
	return out, nil
}

func (o *compatOperator) Stat(ctx context.Context, key string) (operator.Metadata, error) {
	if operator.IsDirKey(key) {
		return o.statDir(ctx, key)
	}
	info, err := o.client.StatObject(ctx, o.bucket, key, minio.StatObjectOptions{VersionID: o.versionID})
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	}
	return operator.Metadata{ContentLength: info.Size}, nil
}

// statDir verifies that at least one object exists beneath the prefix.
func (o *compatOperator) statDir(ctx context.Context, key string) (operator.Metadata, error) {
	var ctx2, cancel = context.WithCancel(ctx)
	defer cancel()

	for obj := range o.client.ListObjects(ctx2, o.bucket, minio.ListObjectsOptions{
		Prefix:    key,
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return operator.Metadata{}, wrapError("stat", key, obj.Err)
		}
		return operator.Metadata{IsDir: true}, nil
	}
	return operator.Metadata{}, operator.NotFound("stat", key)
}

func (o *compatOperator) Read(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error) {
	var opts = minio.GetObjectOptions{VersionID: o.versionID}
	if rng != nil {
		if rng.Length == 0 {
			// An empty range has no Range header form. Stat for existence instead.
			if _, err := o.Stat(ctx, key); err != nil {
				return nil, err
			}
			return io.NopCloser(strings.NewReader("")), nil
		}
		if err := opts.SetRange(int64(rng.Start), int64(rng.End())-1); err != nil {
			return nil, wrapError("read", key, err)
		}
	}
	obj, err := o.client.GetObject(ctx, o.bucket, key, opts)
	if err != nil {
		return nil, wrapError("read", key, err)
	}
	// GetObject is lazy. Stat issues the request so failures surface here
	// rather than on the first Read.
	if _, err = obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, wrapError("read", key, err)
	}
	return obj, nil
}

// clientTransport issues requests through an http.Client, so that its
// Timeout and TLS configuration apply. Redirects are returned to minio
// rather than followed.
type clientTransport http.Client

func (t clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var c = http.Client(t)
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return c.Do(req)
}

// splitEndpoint returns the host of |endpoint| and whether it uses TLS.
func splitEndpoint(endpoint string) (host string, secure bool, err error) {
	if endpoint == "" {
		return "", false, errors.New("endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	} else if u.Host == "" {
		return "", false, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return u.Host, u.Scheme != "http", nil
}

// wrapError classifies a minio error into an *operator.Error.
func wrapError(op, key string, err error) error {
	var wrapped = &operator.Error{Op: op, Key: key, Err: err}
	var resp = minio.ToErrorResponse(err)

	if resp.StatusCode != 0 {
		wrapped.StatusCode = resp.StatusCode
	}
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		wrapped.StatusCode = http.StatusNotFound
		wrapped.Err = fmt.Errorf("%w: %v", operator.ErrNotFound, err)
	case "NoSuchBucket":
		wrapped.StatusCode = http.StatusNotFound
	case "AccessDenied":
		wrapped.StatusCode = http.StatusForbidden
	}
	return wrapped
}
