// Package objectstorage implements the origin of content held by cloud
// object-storage providers: S3, GCS, Azure Blob Storage, Aliyun OSS, Huawei
// Cloud OBS and Tencent Cloud COS.
//
// Each request is served by parsing its URL into a bucket and key, building
// a provider operator.Operator over a fresh HTTP transport bound to the
// request timeout, and then listing, stat-ing or reading through it. Provider
// failures are flattened into *backend.BackendError.
package objectstorage

import (
	"context"
	"crypto/x509"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
)

// ObjectStorage is the backend.Backend of a single provider Scheme.
type ObjectStorage struct {
	scheme    Scheme
	construct operator.Constructor
}

// New returns an ObjectStorage of the Scheme, using its default Constructor.
func New(scheme Scheme) *ObjectStorage {
	return NewWithConstructor(scheme, DefaultConstructors()[scheme])
}

// NewWithConstructor returns an ObjectStorage of the Scheme which builds
// operators with the given Constructor.
func NewWithConstructor(scheme Scheme, construct operator.Constructor) *ObjectStorage {
	return &ObjectStorage{scheme: scheme, construct: construct}
}

// Scheme returns the canonical scheme of the ObjectStorage.
func (s *ObjectStorage) Scheme() string { return s.scheme.String() }

// Head retrieves metadata of the requested object. If the URL designates a
// directory, its descendants are listed recursively. In either case the
// exact key is then stat-ed for the response ContentLength.
func (s *ObjectStorage) Head(ctx context.Context, req backend.HeadRequest) (*backend.HeadResponse, error) {
	var fields = log.Fields{
		"taskID": req.TaskID,
		"url":    req.URL,
	}
	log.WithFields(fields).WithField("header", req.Header).Debug("head request")

	var parsed, err = s.parse(req.URL)
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("failed to parse head request URL")
		return nil, err
	}
	op, client, err := s.operator(parsed, req.ObjectStorage, req.Timeout, req.ClientCerts)
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("failed to build operator")
		return nil, err
	}
	defer client.CloseIdleConnections()

	var entries []backend.DirEntry
	if parsed.IsDir() {
		listed, err := op.List(ctx, parsed.Key)
		if err != nil {
			log.WithFields(fields).WithField("err", err).Error("list request failed")
			return nil, wrapError(err)
		}
		entries = make([]backend.DirEntry, 0, len(listed))
		for _, entry := range listed {
			entries = append(entries, backend.DirEntry{
				URL:           parsed.MakeURLByEntryPath(entry.Path),
				ContentLength: entry.ContentLength,
				IsDir:         entry.IsDir,
			})
		}
	}

	md, err := op.Stat(ctx, parsed.Key)
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("stat request failed")
		return nil, wrapError(err)
	}

	log.WithFields(fields).WithFields(log.Fields{
		"contentLength": md.ContentLength,
		"entries":       len(entries),
	}).Debug("head response")

	return &backend.HeadResponse{
		Success:       true,
		ContentLength: md.ContentLength,
		Entries:       entries,
	}, nil
}

// Get opens a stream of the requested object, narrowed to the request Range.
func (s *ObjectStorage) Get(ctx context.Context, req backend.GetRequest) (*backend.GetResponse, error) {
	var fields = log.Fields{
		"taskID":  req.TaskID,
		"pieceID": req.PieceID,
		"url":     req.URL,
	}
	log.WithFields(fields).WithFields(log.Fields{
		"header": req.Header,
		"range":  req.Range,
	}).Debug("get request")

	var parsed, err = s.parse(req.URL)
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("failed to parse get request URL")
		return nil, err
	}
	if req.Range != nil {
		if err = req.Range.Validate(); err != nil {
			log.WithFields(fields).WithField("err", err).Error("invalid get request range")
			return nil, err
		}
	}
	op, client, err := s.operator(parsed, req.ObjectStorage, req.Timeout, req.ClientCerts)
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("failed to build operator")
		return nil, err
	}

	rc, err := op.Read(ctx, parsed.Key, req.Range)
	if err != nil {
		client.CloseIdleConnections()
		log.WithFields(fields).WithField("err", err).Error("get request failed")
		return nil, wrapError(err)
	}
	rc = backend.CloseIdleOnClose(rc, client)

	if req.Range != nil {
		rc = backend.NarrowRange(rc, int64(req.Range.Length))
	}

	return &backend.GetResponse{
		Success:    true,
		StatusCode: http.StatusOK,
		Body:       rc,
	}, nil
}

// parse the URL, and verify it's of this ObjectStorage's Scheme.
func (s *ObjectStorage) parse(rawURL string) (*ParsedURL, error) {
	var parsed, err = ParseURL(rawURL)
	if err != nil {
		return nil, err
	} else if parsed.Scheme != s.scheme {
		return nil, backend.InvalidURIError(rawURL)
	}
	return parsed, nil
}

// operator builds the operator.Operator of a request, and the client over
// which it issues requests. Missing credentials fail before the Constructor
// is invoked.
func (s *ObjectStorage) operator(parsed *ParsedURL, creds *backend.ObjectStorage, timeout time.Duration, roots []*x509.Certificate) (operator.Operator, *http.Client, error) {
	var cfg, err = s.scheme.operatorConfig(parsed, creds)
	if err != nil {
		return nil, nil, err
	} else if s.construct == nil {
		return nil, nil, &backend.BackendError{Message: "no operator of scheme " + s.scheme.String()}
	}
	cfg.HTTPClient = backend.NewHTTPClient(timeout, roots)

	op, err := s.construct(cfg)
	if err != nil {
		return nil, nil, wrapError(err)
	}
	return op, cfg.HTTPClient, nil
}

// wrapError flattens a provider failure into a *backend.BackendError.
func wrapError(err error) error {
	if be, ok := backend.IsBackendError(err); ok {
		return be
	}
	return &backend.BackendError{
		Message:    err.Error(),
		StatusCode: operator.StatusCode(err),
	}
}
