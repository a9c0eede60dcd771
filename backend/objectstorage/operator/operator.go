// Package operator provides an abstraction over the object-storage providers
// from which task content is fetched. An Operator is bound to a single bucket
// and is built per request, with its own HTTP transport.
package operator

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.pieceflow.dev/core/backend"
)

// Operator lists, stats and reads objects of a bucket.
type Operator interface {
	// List recursively enumerates all objects and directory markers under
	// the given prefix. Entry paths are full keys relative to the bucket.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Stat returns metadata of the exact key. A directory key (empty, or
	// ending in '/') stats successfully if any object exists beneath it.
	Stat(ctx context.Context, key string) (Metadata, error)

	// Read opens a stream of the object at key. If rng is non-nil, the
	// provider is asked for only that range of the object. Providers may
	// return more or fewer bytes than requested: callers narrow the stream
	// with backend.NarrowRange.
	Read(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error)
}

// Entry is an object or directory marker returned by List.
type Entry struct {
	// Path of the entry within the bucket, without a leading '/'.
	Path string
	// Metadata of the entry.
	Metadata
}

// Metadata of an object.
type Metadata struct {
	// ContentLength of the object in bytes. Zero for directories.
	ContentLength int64
	// IsDir is true if the object is a directory marker or prefix.
	IsDir bool
}

// Config is the provider-neutral configuration from which an Operator is
// constructed. Required fields have been validated before a Constructor is
// invoked; optional fields are empty if not provided.
type Config struct {
	// Bucket (or container) served by the Operator.
	Bucket string
	// AccessKeyID and AccessKeySecret of the caller.
	AccessKeyID     string
	AccessKeySecret string
	// SessionToken of temporary credentials.
	SessionToken string
	// Region of the bucket.
	Region string
	// Endpoint of the provider service.
	Endpoint string
	// Credential is a JSON-encoded credential blob.
	Credential string
	// PredefinedACL of the provider. Read-only Operators ignore it.
	PredefinedACL string
	// VersionID pins Stat and Read to a specific object version.
	VersionID string
	// HTTPClient used for all requests of the Operator. Its Timeout is the
	// request timeout.
	HTTPClient *http.Client
}

// Constructor builds an Operator from a Config. Constructors don't perform
// network I/O.
type Constructor func(Config) (Operator, error)

// IsDirKey returns true if |key| designates a directory.
func IsDirKey(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}
