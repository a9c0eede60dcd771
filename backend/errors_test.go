package backend

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	var err = InvalidURIError("s3:///key")
	require.ErrorIs(t, err, ErrInvalidURI)
	require.Equal(t, "invalid URI: s3:///key", err.Error())

	var cause = errors.New("missing symbol NewBackend")
	err = fmt.Errorf("loading extensions: %w", &PluginError{Path: "/plugins/backend/libhdfs.so", Err: cause})
	require.ErrorIs(t, err, ErrPlugin)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "libhdfs.so")

	err = fmt.Errorf("wrapped: %w", &BackendError{Message: "not found", StatusCode: 404})
	be, ok := IsBackendError(err)
	require.True(t, ok)
	require.Equal(t, 404, be.StatusCode)
	require.Equal(t, "backend error: not found (status 404)", be.Error())
	require.Equal(t, "backend error: need credential", (&BackendError{Message: "need credential"}).Error())

	_, ok = IsBackendError(ErrInvalidParameter)
	require.False(t, ok)
}

func TestResponseText(t *testing.T) {
	var resp = GetResponse{Body: io.NopCloser(strings.NewReader("hello, world"))}
	var text, err = resp.Text()
	require.NoError(t, err)
	require.Equal(t, "hello, world", text)

	require.Equal(t, uint64(15), Range{Start: 10, Length: 5}.End())
}
