package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"plugin"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.pieceflow.dev/core/backend"
)

func TestBuiltinsResolve(t *testing.T) {
	var f, err = New("")
	require.NoError(t, err)

	for _, scheme := range backend.BuiltinSchemes {
		var b, err = f.Resolve(scheme + "://bucket/path/to/key")
		require.NoError(t, err, scheme)
		require.Equal(t, scheme, b.Scheme())
		require.Equal(t, KindBuiltin, f.Kind(scheme))

		// The same instance serves every URL of the scheme.
		b2, err := f.Resolve(scheme + "://other/key")
		require.NoError(t, err)
		require.Same(t, b, b2)
	}
	require.Equal(t, []string{"abs", "cos", "gcs", "http", "https", "obs", "oss", "s3"}, f.Schemes())
}

func TestResolveErrors(t *testing.T) {
	var f, err = New("")
	require.NoError(t, err)

	for _, u := range []string{"hdfs://host/key", "://bucket/key", "bucket/key", "%zz://host"} {
		var _, err = f.Resolve(u)
		require.True(t, errors.Is(err, backend.ErrInvalidParameter), u)
	}
	require.Equal(t, "", f.Kind("hdfs"))
}

func TestMissingExtensionDirIsSkipped(t *testing.T) {
	var fs = afero.NewMemMapFs()
	var f, err = New("/plugins", WithFs(fs), WithOpener(neverOpen(t)))
	require.NoError(t, err)
	require.Len(t, f.Schemes(), len(backend.BuiltinSchemes))

	// The plugin root exists, but its backend directory does not.
	require.NoError(t, fs.MkdirAll("/plugins/other", 0755))
	f, err = New("/plugins", WithFs(fs), WithOpener(neverOpen(t)))
	require.NoError(t, err)
	require.Len(t, f.Schemes(), len(backend.BuiltinSchemes))
}

func TestExtensionsAreLoaded(t *testing.T) {
	var fs = afero.NewMemMapFs()
	writeModules(t, fs, "libhdfs.so", "libfile.so")
	require.NoError(t, fs.MkdirAll("/plugins/backend/subdir.so", 0755))

	var f, err = New("/plugins", WithFs(fs), WithOpener(fakeOpener{
		"/plugins/backend/libhdfs.so": goodModule("hdfs"),
		"/plugins/backend/libfile.so": goodModule("file"),
	}.open))
	require.NoError(t, err)

	require.Equal(t, []string{"abs", "cos", "file", "gcs", "hdfs", "http", "https", "obs", "oss", "s3"}, f.Schemes())
	require.Equal(t, KindPlugin, f.Kind("hdfs"))

	b, err := f.Resolve("hdfs://namenode/path")
	require.NoError(t, err)
	require.Equal(t, "hdfs", b.Scheme())
}

func TestExtensionOverridesBuiltin(t *testing.T) {
	var hook = logtest.NewGlobal()
	defer hook.Reset()

	var fs = afero.NewMemMapFs()
	writeModules(t, fs, "libs3.so")

	var f, err = New("/plugins", WithFs(fs), WithOpener(fakeOpener{
		"/plugins/backend/libs3.so": goodModule("custom-s3"),
	}.open))
	require.NoError(t, err)
	require.Equal(t, KindPlugin, f.Kind("s3"))

	b, err := f.Resolve("s3://bucket/key")
	require.NoError(t, err)
	require.Equal(t, "custom-s3", b.Scheme())

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel && entry.Data["scheme"] == "s3" {
			require.Equal(t, "backend registration overrides an existing scheme", entry.Message)
			require.Equal(t, KindBuiltin, entry.Data["previous"])
			require.Equal(t, KindPlugin, entry.Data["next"])
			warned = true
		}
	}
	require.True(t, warned)
}

func TestInvalidExtensionFailsConstruction(t *testing.T) {
	var tests = []struct {
		name   string
		file   string
		lib    Library
		errMsg string
	}{
		{
			name:   "missing symbol",
			file:   "libbad.so",
			lib:    fakeLibrary{},
			errMsg: "looking up NewBackend: symbol not found",
		},
		{
			name:   "symbol of wrong type",
			file:   "libbad.so",
			lib:    fakeLibrary{SymbolName: func() string { return "nope" }},
			errMsg: "symbol NewBackend is a func() string, not a func() backend.Backend",
		},
		{
			name:   "nil backend",
			file:   "libbad.so",
			lib:    fakeLibrary{SymbolName: func() backend.Backend { return nil }},
			errMsg: "NewBackend returned a nil Backend",
		},
		{
			name:   "open failure",
			file:   "libbad.so",
			lib:    nil,
			errMsg: "opening module: invalid ELF header",
		},
		{
			name:   "file name without prefix",
			file:   "bad.so",
			lib:    fakeLibrary{},
			errMsg: `module file name "bad.so" must begin with "lib"`,
		},
		{
			name:   "empty scheme",
			file:   "lib.so",
			lib:    fakeLibrary{},
			errMsg: `module file name "lib.so" has an empty scheme`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var fs = afero.NewMemMapFs()
			writeModules(t, fs, "libgood.so", tc.file)

			var open = fakeOpener{
				"/plugins/backend/libgood.so": goodModule("good"),
				"/plugins/backend/" + tc.file: tc.lib,
			}
			var f, err = New("/plugins", WithFs(fs), WithOpener(open.open))
			require.Nil(t, f)
			require.True(t, errors.Is(err, backend.ErrPlugin))

			var pe *backend.PluginError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, "/plugins/backend/"+tc.file, pe.Path)
			require.EqualError(t, pe.Err, tc.errMsg)
		})
	}
}

func TestOperationMetrics(t *testing.T) {
	var stub = &stubBackend{scheme: "stub"}
	var f, err = New("", WithBuiltins(func() map[string]backend.Backend {
		return map[string]backend.Backend{"stub": stub}
	}))
	require.NoError(t, err)
	require.Equal(t, float64(1), gaugeVal(backendsRegistered.WithLabelValues(KindBuiltin)))
	require.Equal(t, float64(0), gaugeVal(backendsRegistered.WithLabelValues(KindPlugin)))

	var (
		success = backendOperationTotal.WithLabelValues("stub", "head", "success")
		failure = backendOperationTotal.WithLabelValues("stub", "head", "failure")
		errored = backendOperationTotal.WithLabelValues("stub", "get", "error")
		before  = []float64{counterVal(success), counterVal(failure), counterVal(errored)}
	)

	b, err := f.Resolve("stub://host/key")
	require.NoError(t, err)

	_, err = b.Head(context.Background(), backend.HeadRequest{URL: "stub://host/key"})
	require.NoError(t, err)
	stub.headFails = true
	_, err = b.Head(context.Background(), backend.HeadRequest{URL: "stub://host/key"})
	require.NoError(t, err)
	_, err = b.Get(context.Background(), backend.GetRequest{URL: "stub://host/key"})
	require.Error(t, err)

	require.Equal(t, before[0]+1, counterVal(success))
	require.Equal(t, before[1]+1, counterVal(failure))
	require.Equal(t, before[2]+1, counterVal(errored))
}

func TestNilResponseIsBackendError(t *testing.T) {
	var stub = &stubBackend{scheme: "stub", nilResponses: true}
	var f, err = New("", WithBuiltins(func() map[string]backend.Backend {
		return map[string]backend.Backend{"stub": stub}
	}))
	require.NoError(t, err)

	var headErrors = backendOperationTotal.WithLabelValues("stub", "head", "error")
	var before = counterVal(headErrors)

	b, err := f.Resolve("stub://host/key")
	require.NoError(t, err)

	resp, err := b.Head(context.Background(), backend.HeadRequest{URL: "stub://host/key"})
	require.Nil(t, resp)
	be, ok := backend.IsBackendError(err)
	require.True(t, ok)
	require.Equal(t, `head of scheme "stub" returned no response`, be.Message)
	require.Equal(t, before+1, counterVal(headErrors))

	getResp, err := b.Get(context.Background(), backend.GetRequest{URL: "stub://host/key"})
	require.Nil(t, getResp)
	_, ok = backend.IsBackendError(err)
	require.True(t, ok)
}

type stubBackend struct {
	scheme       string
	headFails    bool
	nilResponses bool
}

func (s *stubBackend) Scheme() string { return s.scheme }

func (s *stubBackend) Head(_ context.Context, req backend.HeadRequest) (*backend.HeadResponse, error) {
	if s.nilResponses {
		return nil, nil
	} else if s.headFails {
		return &backend.HeadResponse{StatusCode: 500, ErrorMessage: "failed", ContentLength: -1}, nil
	}
	return &backend.HeadResponse{Success: true, ContentLength: 3}, nil
}

func (s *stubBackend) Get(_ context.Context, req backend.GetRequest) (*backend.GetResponse, error) {
	if s.nilResponses {
		return nil, nil
	} else if req.Range != nil {
		return &backend.GetResponse{Success: true, Body: io.NopCloser(strings.NewReader("abc"))}, nil
	}
	return nil, &backend.BackendError{Message: "unavailable"}
}

// fakeLibrary is a Library of fixed symbols.
type fakeLibrary map[string]plugin.Symbol

func (l fakeLibrary) Lookup(name string) (plugin.Symbol, error) {
	if sym, ok := l[name]; ok {
		return sym, nil
	}
	return nil, errors.New("symbol not found")
}

// fakeOpener opens Libraries by path. A nil Library fails to open.
type fakeOpener map[string]Library

func (o fakeOpener) open(path string) (Library, error) {
	if lib := o[path]; lib != nil {
		return lib, nil
	}
	return nil, errors.New("invalid ELF header")
}

func goodModule(scheme string) Library {
	return fakeLibrary{SymbolName: func() backend.Backend { return &stubBackend{scheme: scheme} }}
}

func neverOpen(t *testing.T) Opener {
	return func(path string) (Library, error) {
		require.FailNow(t, fmt.Sprintf("unexpected open of %s", path))
		return nil, nil
	}
}

func writeModules(t *testing.T, fs afero.Fs, names ...string) {
	for _, name := range names {
		require.NoError(t, afero.WriteFile(fs, "/plugins/backend/"+name, []byte("\x7fELF"), 0644))
	}
}

func counterVal(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		panic(err)
	}
	return *out.Counter.Value
}

func gaugeVal(g prometheus.Gauge) float64 {
	var out dto.Metric
	if err := g.Write(&out); err != nil {
		panic(err)
	}
	return *out.Gauge.Value
}
