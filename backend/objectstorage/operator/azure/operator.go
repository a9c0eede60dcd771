// Package azure implements an Operator over Azure Blob Storage, using Shared
// Key authentication.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
)

// DefaultBlobDomain of storage accounts, used when no Endpoint is configured.
const DefaultBlobDomain = "blob.core.windows.net"

type azureOperator struct {
	storageAccount string // Storage accounts in Azure are the equivalent to a "bucket" in S3
	container      string // In azure, blobs are stored inside of containers, which live inside accounts
	versionID      string
	client         *container.Client
}

// New builds an Azure Blob Operator from the Config. AccessKeyID and
// AccessKeySecret are the storage account name and key, and Bucket is the
// container.
func New(cfg operator.Config) (operator.Operator, error) {
	sharedKey, err := service.NewSharedKeyCredential(cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("building shared key credential: %w", err)
	}

	var endpoint = cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.%s", cfg.AccessKeyID, DefaultBlobDomain)
	}
	var containerURL = strings.TrimSuffix(endpoint, "/") + "/" + url.PathEscape(cfg.Bucket)

	var opts = &container.ClientOptions{}
	// Retries are the responsibility of callers.
	opts.Retry = policy.RetryOptions{MaxRetries: -1}
	if cfg.HTTPClient != nil {
		opts.Transport = cfg.HTTPClient
	}

	client, err := container.NewClientWithSharedKeyCredential(containerURL, sharedKey, opts)
	if err != nil {
		return nil, fmt.Errorf("constructing Azure container client: %w", err)
	}

	log.WithFields(log.Fields{
		"storageAccount": cfg.AccessKeyID,
		"container":      cfg.Bucket,
		"containerURL":   containerURL,
	}).Debug("constructed new Azure Blob operator")

	return &azureOperator{
		storageAccount: cfg.AccessKeyID,
		container:      cfg.Bucket,
		versionID:      cfg.VersionID,
		client:         client,
	}, nil
}

func (o *azureOperator) List(ctx context.Context, prefix string) ([]operator.Entry, error) {
	var pager = o.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	var out []operator.Entry

	for pager.More() {
		var page, err = pager.NextPage(ctx)
		if err != nil {
			return nil, wrapError("list", prefix, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			out = append(out, operator.Entry{
				Path: *item.Name,
				Metadata: operator.Metadata{
					ContentLength: size,
					IsDir:         strings.HasSuffix(*item.Name, "/"),
				},
			})
		}
	}
	return out, nil
}

func (o *azureOperator) Stat(ctx context.Context, key string) (operator.Metadata, error) {
	if operator.IsDirKey(key) {
		return o.statDir(ctx, key)
	}
	bc, err := o.blobClient(key)
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	}
	props, err := bc.GetProperties(ctx, nil)
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	}
	var md operator.Metadata
	if props.ContentLength != nil {
		md.ContentLength = *props.ContentLength
	}
	return md, nil
}

// statDir verifies that at least one blob exists beneath the prefix.
func (o *azureOperator) statDir(ctx context.Context, key string) (operator.Metadata, error) {
	var maxResults int32 = 1
	var pager = o.client.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     &key,
		MaxResults: &maxResults,
	})
	if !pager.More() {
		return operator.Metadata{}, operator.NotFound("stat", key)
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return operator.Metadata{}, wrapError("stat", key, err)
	} else if page.Segment == nil || len(page.Segment.BlobItems) == 0 {
		return operator.Metadata{}, operator.NotFound("stat", key)
	}
	return operator.Metadata{IsDir: true}, nil
}

func (o *azureOperator) Read(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error) {
	bc, err := o.blobClient(key)
	if err != nil {
		return nil, wrapError("read", key, err)
	}
	var opts blob.DownloadStreamOptions
	if rng != nil {
		if rng.Length == 0 {
			// An empty range has no Range header form. Stat for existence instead.
			if _, err := o.Stat(ctx, key); err != nil {
				return nil, err
			}
			return io.NopCloser(strings.NewReader("")), nil
		}
		// A zero Count reads through the end of the blob.
		opts.Range = blob.HTTPRange{Offset: int64(rng.Start), Count: int64(rng.Length)}
	}
	resp, err := bc.DownloadStream(ctx, &opts)
	if err != nil {
		return nil, wrapError("read", key, err)
	}
	return resp.Body, nil
}

func (o *azureOperator) blobClient(key string) (*blob.Client, error) {
	var bc = o.client.NewBlobClient(key)
	if o.versionID == "" {
		return bc, nil
	}
	return bc.WithVersionID(o.versionID)
}

// wrapError classifies an Azure error into an *operator.Error.
func wrapError(op, key string, err error) error {
	var wrapped = &operator.Error{Op: op, Key: key, Err: err}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		wrapped.StatusCode = respErr.StatusCode
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		wrapped.StatusCode = http.StatusNotFound
		wrapped.Err = fmt.Errorf("%w: %v", operator.ErrNotFound, err)
	}
	return wrapped
}
