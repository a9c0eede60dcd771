package backend

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCloseIdleOnClose(t *testing.T) {
	var transport = &idleTracker{}
	var client = &http.Client{Transport: transport}

	var rc = CloseIdleOnClose(io.NopCloser(strings.NewReader("abc")), client)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "abc", string(b))
	require.Equal(t, 0, transport.closed)

	require.NoError(t, rc.Close())
	require.Equal(t, 1, transport.closed)
}

func TestNewHTTPClient(t *testing.T) {
	var a, b = NewHTTPClient(0, nil), NewHTTPClient(5, nil)
	require.NotSame(t, a.Transport, b.Transport)
	require.EqualValues(t, 5, b.Timeout)
}

// idleTracker counts calls of CloseIdleConnections.
type idleTracker struct{ closed int }

func (t *idleTracker) RoundTrip(*http.Request) (*http.Response, error) { return nil, io.EOF }
func (t *idleTracker) CloseIdleConnections()                          { t.closed++ }
