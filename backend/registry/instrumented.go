package registry

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.pieceflow.dev/core/backend"
)

// instrumented wraps a registered Backend with operation metrics.
type instrumented struct {
	backend.Backend
	scheme string // Registry key, which may differ from Backend.Scheme().
	kind   string
}

func newInstrumented(scheme, kind string, b backend.Backend) *instrumented {
	return &instrumented{Backend: b, scheme: scheme, kind: kind}
}

// Head calls through to the wrapped Backend.
func (i *instrumented) Head(ctx context.Context, req backend.HeadRequest) (*backend.HeadResponse, error) {
	var started = time.Now()
	var resp, err = i.Backend.Head(ctx, req)
	if err == nil && resp == nil {
		err = i.nilResponse("head")
	}

	var status = "success"
	if err != nil {
		status = "error"
	} else if !resp.Success {
		status = "failure"
	}
	i.observe("head", status, started)

	return resp, err
}

// Get calls through to the wrapped Backend. Its duration covers the opening
// of the response Body, but not reads of it.
func (i *instrumented) Get(ctx context.Context, req backend.GetRequest) (*backend.GetResponse, error) {
	var started = time.Now()
	var resp, err = i.Backend.Get(ctx, req)
	if err == nil && resp == nil {
		err = i.nilResponse("get")
	}

	var status = "success"
	if err != nil {
		status = "error"
	} else if !resp.Success {
		status = "failure"
	}
	i.observe("get", status, started)

	return resp, err
}

func (i *instrumented) nilResponse(op string) error {
	log.WithFields(log.Fields{
		"scheme":    i.scheme,
		"operation": op,
	}).Error("backend returned neither a response nor an error")

	return &backend.BackendError{Message: fmt.Sprintf("%s of scheme %q returned no response", op, i.scheme)}
}

func (i *instrumented) observe(op, status string, started time.Time) {
	backendOperationTotal.WithLabelValues(i.scheme, op, status).Inc()
	backendOperationDuration.WithLabelValues(i.scheme, op, status).Observe(time.Since(started).Seconds())
}
