package operator

import (
	"context"
	"io"

	"go.pieceflow.dev/core/backend"
)

// CallbackOperator implements Operator for testing with customizable behavior.
// It allows tests to provide callback functions for each Operator method.
type CallbackOperator struct {
	ListFunc func(ctx context.Context, prefix string) ([]Entry, error)
	StatFunc func(ctx context.Context, key string) (Metadata, error)
	ReadFunc func(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error)
}

// List calls ListFunc if set, otherwise returns no entries.
func (c *CallbackOperator) List(ctx context.Context, prefix string) ([]Entry, error) {
	if c.ListFunc != nil {
		return c.ListFunc(ctx, prefix)
	}
	return nil, nil
}

// Stat calls StatFunc if set, otherwise returns zero Metadata.
func (c *CallbackOperator) Stat(ctx context.Context, key string) (Metadata, error) {
	if c.StatFunc != nil {
		return c.StatFunc(ctx, key)
	}
	return Metadata{}, nil
}

// Read calls ReadFunc if set, otherwise returns NotFound.
func (c *CallbackOperator) Read(ctx context.Context, key string, rng *backend.Range) (io.ReadCloser, error) {
	if c.ReadFunc != nil {
		return c.ReadFunc(ctx, key, rng)
	}
	return nil, NotFound("read", key)
}
