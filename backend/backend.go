// Package backend defines the contract shared by every origin from which
// task content is fetched: HTTP(S) endpoints, cloud object stores, and
// extension origins loaded at runtime.
//
// A Backend is resolved from a URL scheme by the registry, and then serves
// two operations. Head retrieves metadata (and, for directory URLs, a
// recursive listing) without transferring object bodies. Get opens a lazy,
// forward-only stream over the object or a byte range of it.
package backend

import (
	"context"
	"crypto/x509"
	"io"
	"net/http"
	"strings"
	"time"
)

// NAME is the capability category of origins. Extension modules live under
// a sub-directory of this name within the plugin root.
const NAME = "backend"

// Builtin schemes which are always registered.
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeS3    = "s3"
	SchemeGCS   = "gcs"
	SchemeABS   = "abs"
	SchemeOSS   = "oss"
	SchemeOBS   = "obs"
	SchemeCOS   = "cos"
)

// BuiltinSchemes enumerates the schemes served by compiled-in origins.
var BuiltinSchemes = []string{
	SchemeHTTP,
	SchemeHTTPS,
	SchemeS3,
	SchemeGCS,
	SchemeABS,
	SchemeOSS,
	SchemeOBS,
	SchemeCOS,
}

// Backend is implemented by each origin. A single instance serves all
// concurrent requests for its scheme, and must be safe for concurrent use.
type Backend interface {
	// Scheme returns the scheme this instance serves. It's used for
	// diagnostics only: dispatch is by registry key.
	Scheme() string
	// Head retrieves metadata of the requested URL. It never transfers an
	// object body. If the URL designates a directory, the response Entries
	// hold a recursive listing of its descendants.
	Head(ctx context.Context, req HeadRequest) (*HeadResponse, error)
	// Get opens a stream over the content of the requested URL, narrowed to
	// the request Range if one is given.
	Get(ctx context.Context, req GetRequest) (*GetResponse, error)
}

// Range is a half-open byte range [Start, Start+Length).
type Range struct {
	Start  uint64
	Length uint64
}

// End returns the exclusive end offset of the Range.
func (r Range) End() uint64 { return r.Start + r.Length }

// ObjectStorage carries provider credentials and configuration of an
// object-storage request. All fields are optional here: each provider
// enforces its own minimum subset.
type ObjectStorage struct {
	// Access key ID. Interpreted as the account name by Azure Blob Storage,
	// and as the SecretId by Tencent COS.
	AccessKeyID string
	// Secret of the access key. Interpreted as the account key by Azure Blob Storage.
	AccessKeySecret string
	// Session (security) token of temporary credentials.
	SessionToken string
	// Region of the bucket.
	Region string
	// Endpoint of the provider service, overriding its default.
	Endpoint string
	// Credential is a JSON-encoded credential blob (GCS service accounts).
	Credential string
	// PredefinedACL of the provider (GCS). It applies only to writes, which
	// origins don't perform.
	PredefinedACL string
}

// HeadRequest is a metadata request of an origin.
type HeadRequest struct {
	// TaskID of the requesting download task.
	TaskID string
	// URL to be requested.
	URL string
	// Header to attach to the request, if the origin supports headers.
	Header http.Header
	// Timeout of the request. It's applied when the request transport is built.
	Timeout time.Duration
	// ClientCerts are additional trusted roots for verifying TLS peers.
	ClientCerts []*x509.Certificate
	// ObjectStorage credentials, or nil if none were provided.
	ObjectStorage *ObjectStorage
}

// HeadResponse is the metadata of an origin URL.
type HeadResponse struct {
	// Success is true if the origin reported success.
	Success bool
	// ContentLength of the resource, or -1 if unknown.
	ContentLength int64
	// Header of the origin response, if any.
	Header http.Header
	// StatusCode of the origin response, or zero if not applicable.
	StatusCode int
	// Entries of a directory URL, in listing order. Empty unless the
	// request designated a directory.
	Entries []DirEntry
	// ErrorMessage describing a failure. Empty if Success.
	ErrorMessage string
}

// GetRequest is a content request of an origin.
type GetRequest struct {
	// TaskID of the requesting download task.
	TaskID string
	// PieceID of the requested piece.
	PieceID string
	// URL to be requested.
	URL string
	// Range to fetch, or nil to fetch the entire resource.
	Range *Range
	// Header to attach to the request, if the origin supports headers.
	Header http.Header
	// Timeout of the request. It's applied when the request transport is built.
	Timeout time.Duration
	// ClientCerts are additional trusted roots for verifying TLS peers.
	ClientCerts []*x509.Certificate
	// ObjectStorage credentials, or nil if none were provided.
	ObjectStorage *ObjectStorage
}

// GetResponse is the content of an origin URL.
type GetResponse struct {
	// Success is true if the origin reported success.
	Success bool
	// Header of the origin response, if any.
	Header http.Header
	// StatusCode of the origin response, or zero if not applicable.
	StatusCode int
	// Body streams requested content. It's read at most once, isn't
	// seekable, and must be closed by the caller. Each Read may block on
	// network I/O.
	Body io.ReadCloser
	// ErrorMessage describing a failure. Empty if Success.
	ErrorMessage string
}

// Text reads the remainder of the response Body as a string, and closes it.
func (r *GetResponse) Text() (string, error) {
	defer r.Body.Close()

	var b strings.Builder
	if _, err := io.Copy(&b, r.Body); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DirEntry is a descendant of a listed directory URL.
type DirEntry struct {
	// URL of the entry, derived from the listed directory URL.
	URL string
	// ContentLength of the entry.
	ContentLength int64
	// IsDir is true if the entry is itself a directory.
	IsDir bool
}
