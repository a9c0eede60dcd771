// Package httpbackend implements the origin of content served by HTTP and
// HTTPS endpoints.
package httpbackend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
)

// HTTP is the backend.Backend of an "http" or "https" scheme.
type HTTP struct {
	scheme string
}

// New returns an HTTP origin serving |scheme|.
func New(scheme string) *HTTP { return &HTTP{scheme: scheme} }

// Scheme returns the scheme of the HTTP origin.
func (h *HTTP) Scheme() string { return h.scheme }

// Head issues a HEAD request of the URL. Responses other than 2xx are
// returned with Success false, rather than as an error.
func (h *HTTP) Head(ctx context.Context, req backend.HeadRequest) (*backend.HeadResponse, error) {
	var fields = log.Fields{
		"taskID": req.TaskID,
		"url":    req.URL,
	}
	log.WithFields(fields).WithField("header", req.Header).Debug("head request")

	request, err := h.newRequest(ctx, http.MethodHead, req.URL, req.Header)
	if err != nil {
		return nil, err
	}
	var client = backend.NewHTTPClient(req.Timeout, req.ClientCerts)
	defer client.CloseIdleConnections()

	response, err := client.Do(request)
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("head request failed")
		return nil, &backend.BackendError{Message: err.Error()}
	}
	_ = response.Body.Close()

	log.WithFields(fields).WithFields(log.Fields{
		"status":        response.StatusCode,
		"contentLength": response.ContentLength,
	}).Debug("head response")

	var out = &backend.HeadResponse{
		Success:       isSuccess(response.StatusCode),
		ContentLength: response.ContentLength,
		Header:        response.Header,
		StatusCode:    response.StatusCode,
	}
	if !out.Success {
		out.ErrorMessage = response.Status
	}
	return out, nil
}

// Get issues a GET request of the URL and its Range. If the server ignores
// the Range and responds with the entire resource, the body is sliced to it.
func (h *HTTP) Get(ctx context.Context, req backend.GetRequest) (*backend.GetResponse, error) {
	var fields = log.Fields{
		"taskID":  req.TaskID,
		"pieceID": req.PieceID,
		"url":     req.URL,
	}
	log.WithFields(fields).WithFields(log.Fields{
		"header": req.Header,
		"range":  req.Range,
	}).Debug("get request")

	if req.Range != nil {
		if err := req.Range.Validate(); err != nil {
			log.WithFields(fields).WithField("err", err).Error("invalid get request range")
			return nil, err
		}
	}
	request, err := h.newRequest(ctx, http.MethodGet, req.URL, req.Header)
	if err != nil {
		return nil, err
	}
	// An empty range has no Range header form. The resource is requested
	// whole, and its body is discarded once its status is known.
	if req.Range != nil && req.Range.Length != 0 {
		request.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", req.Range.Start, req.Range.End()-1))
	}

	var client = backend.NewHTTPClient(req.Timeout, req.ClientCerts)

	response, err := client.Do(request)
	if err != nil {
		client.CloseIdleConnections()
		log.WithFields(fields).WithField("err", err).Error("get request failed")
		return nil, &backend.BackendError{Message: err.Error()}
	}
	var body = backend.CloseIdleOnClose(response.Body, client)

	var out = &backend.GetResponse{
		Success:    isSuccess(response.StatusCode),
		Header:     response.Header,
		StatusCode: response.StatusCode,
		Body:       body,
	}
	switch {
	case !out.Success:
		out.ErrorMessage = response.Status
		log.WithFields(fields).WithField("status", response.Status).Warn("get request was not successful")
	case req.Range == nil:
	case req.Range.Length == 0:
		_ = body.Close()
		out.Body = io.NopCloser(strings.NewReader(""))
	case response.StatusCode == http.StatusPartialContent:
		out.Body = backend.NarrowRange(body, int64(req.Range.Length))
	default:
		if out.Body, err = backend.SliceRange(body, *req.Range); err != nil {
			_ = body.Close()
			return nil, &backend.BackendError{
				Message:    fmt.Sprintf("slicing response to range: %v", err),
				StatusCode: response.StatusCode,
				Header:     response.Header,
			}
		}
	}
	return out, nil
}

func (h *HTTP) newRequest(ctx context.Context, method, rawURL string, header http.Header) (*http.Request, error) {
	var u, err = url.Parse(rawURL)
	if err != nil || u.Host == "" || u.Scheme != h.scheme {
		return nil, backend.InvalidURIError(rawURL)
	}
	request, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, backend.InvalidURIError(rawURL)
	}
	for name, values := range header {
		for _, v := range values {
			request.Header.Add(name, v)
		}
	}
	return request, nil
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }
