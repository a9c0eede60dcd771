package objectstorage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
	"go.pieceflow.dev/core/backend"
)

// Scheme of an object-storage provider.
type Scheme int

const (
	// S3 is Amazon Simple Storage Service.
	S3 Scheme = iota
	// GCS is Google Cloud Storage.
	GCS
	// ABS is Azure Blob Storage.
	ABS
	// OSS is Aliyun Object Storage Service.
	OSS
	// OBS is Huawei Cloud Object Storage Service.
	OBS
	// COS is Tencent Cloud Object Storage.
	COS
)

// Schemes enumerates all object-storage Schemes.
var Schemes = []Scheme{S3, GCS, ABS, OSS, OBS, COS}

// ParseScheme parses the canonical lowercase form of a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case backend.SchemeS3:
		return S3, nil
	case backend.SchemeGCS:
		return GCS, nil
	case backend.SchemeABS:
		return ABS, nil
	case backend.SchemeOSS:
		return OSS, nil
	case backend.SchemeOBS:
		return OBS, nil
	case backend.SchemeCOS:
		return COS, nil
	default:
		return 0, fmt.Errorf("invalid scheme: %s", s)
	}
}

// String returns the canonical lowercase form of the Scheme.
func (s Scheme) String() string {
	switch s {
	case S3:
		return backend.SchemeS3
	case GCS:
		return backend.SchemeGCS
	case ABS:
		return backend.SchemeABS
	case OSS:
		return backend.SchemeOSS
	case OBS:
		return backend.SchemeOBS
	case COS:
		return backend.SchemeCOS
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// QueryArgs are parsed from the query arguments of an object-storage URL.
// Unknown arguments are ignored.
type QueryArgs struct {
	// VersionID pins stat and read to a specific object version.
	VersionID string `schema:"versionId"`
}

// ParsedURL locates an object or directory of an object-storage provider.
// URLs take the form `scheme://<bucket>/<key>`, where a key with a trailing
// '/' designates a directory.
type ParsedURL struct {
	// URL as requested.
	URL *url.URL
	// Scheme of the provider.
	Scheme Scheme
	// Bucket is the URL host.
	Bucket string
	// Key is the percent-decoded URL path, without its leading '/'.
	Key string
	// Args of the URL query.
	Args QueryArgs
}

// ParseURL parses |rawURL| into a ParsedURL. Errors wrap backend.ErrInvalidURI.
func ParseURL(rawURL string) (*ParsedURL, error) {
	var u, err = url.Parse(rawURL)
	if err != nil {
		return nil, backend.InvalidURIError(rawURL)
	}
	return parseURL(u)
}

func parseURL(u *url.URL) (*ParsedURL, error) {
	// The bucket is the host name. A port, if any, is dropped.
	if u.Hostname() == "" {
		return nil, backend.InvalidURIError(u.String())
	}
	var scheme, err = ParseScheme(u.Scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.InvalidURIError(u.String()), err)
	}
	// url.URL.Path is already percent-decoded.
	if !strings.HasPrefix(u.EscapedPath(), "/") {
		return nil, backend.InvalidURIError(u.String())
	}

	var parsed = &ParsedURL{
		URL:    u,
		Scheme: scheme,
		Bucket: u.Hostname(),
		Key:    strings.TrimPrefix(u.Path, "/"),
	}
	if err = parseQueryArgs(u, &parsed.Args); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.InvalidURIError(u.String()), err)
	}
	return parsed, nil
}

// IsDir returns true if the requested URL path ends with a '/'. Escaped
// separators (%2F) don't count.
func (p *ParsedURL) IsDir() bool {
	return strings.HasSuffix(p.URL.EscapedPath(), "/")
}

// MakeURLByEntryPath returns the URL of a listed entry, by substituting
// |entryPath| for the path of the requested URL. The scheme, bucket and
// query are preserved.
func (p *ParsedURL) MakeURLByEntryPath(entryPath string) string {
	var u = *p.URL
	u.Path = "/" + strings.TrimPrefix(entryPath, "/")
	u.RawPath = ""
	return u.String()
}

func parseQueryArgs(u *url.URL, args *QueryArgs) error {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	if q, err := url.ParseQuery(u.RawQuery); err != nil {
		return err
	} else if err = decoder.Decode(args, q); err != nil {
		return fmt.Errorf("parsing URL arguments: %s", err)
	}
	return nil
}
