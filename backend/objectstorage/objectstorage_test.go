package objectstorage

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
)

var testCreds = &backend.ObjectStorage{
	AccessKeyID:     "id",
	AccessKeySecret: "secret",
	Credential:      `{"type":"service_account"}`,
	Region:          "region",
	Endpoint:        "https://endpoint",
	SessionToken:    "token",
	PredefinedACL:   "publicRead",
}

// constructorOf returns a Constructor returning |op|, which records the
// Config it was invoked with.
func constructorOf(op operator.Operator, cfg *operator.Config) operator.Constructor {
	return func(c operator.Config) (operator.Operator, error) {
		*cfg = c
		return op, nil
	}
}

func TestMissingCredentialsFailBeforeConstruction(t *testing.T) {
	var neverInvoked = func(operator.Config) (operator.Operator, error) {
		require.FailNow(t, "operator constructor must not be invoked")
		return nil, nil
	}
	var tests = []struct {
		scheme Scheme
		creds  *backend.ObjectStorage
		msg    string
	}{
		{S3, nil, msgNeedAccessKey},
		{S3, &backend.ObjectStorage{AccessKeyID: "id"}, msgNeedAccessKey},
		{GCS, nil, msgNeedCredential},
		{GCS, &backend.ObjectStorage{AccessKeyID: "id", AccessKeySecret: "secret"}, msgNeedCredential},
		{ABS, &backend.ObjectStorage{AccessKeySecret: "secret"}, msgNeedAccessKey},
		{OSS, nil, msgNeedEndpointAccessKey},
		{OBS, &backend.ObjectStorage{Endpoint: "endpoint"}, msgNeedEndpointAccessKey},
		{COS, &backend.ObjectStorage{}, msgNeedEndpointAccessKey},
	}
	for _, tc := range tests {
		var origin = NewWithConstructor(tc.scheme, neverInvoked)
		var url = tc.scheme.String() + "://bucket/key"

		var _, err = origin.Head(context.Background(), backend.HeadRequest{URL: url, ObjectStorage: tc.creds})
		be, ok := backend.IsBackendError(err)
		require.True(t, ok, url)
		require.Equal(t, tc.msg, be.Message)
		require.Zero(t, be.StatusCode)

		_, err = origin.Get(context.Background(), backend.GetRequest{URL: url, ObjectStorage: tc.creds})
		be, ok = backend.IsBackendError(err)
		require.True(t, ok, url)
		require.Equal(t, tc.msg, be.Message)
	}
}

func TestOperatorConfigMapping(t *testing.T) {
	var tests = []struct {
		scheme Scheme
		url    string
		expect operator.Config
	}{
		{S3, "s3://bucket/key?versionId=v1", operator.Config{
			Bucket: "bucket", AccessKeyID: "id", AccessKeySecret: "secret",
			SessionToken: "token", Region: "region", Endpoint: "https://endpoint", VersionID: "v1",
		}},
		{GCS, "gcs://bucket/key?versionId=v1", operator.Config{
			Bucket: "bucket", Credential: `{"type":"service_account"}`,
			PredefinedACL: "publicRead", Endpoint: "https://endpoint",
		}},
		{ABS, "abs://container/key", operator.Config{
			Bucket: "container", AccessKeyID: "id", AccessKeySecret: "secret", Endpoint: "https://endpoint",
		}},
		{COS, "cos://bucket/key", operator.Config{
			Bucket: "bucket", AccessKeyID: "id", AccessKeySecret: "secret",
			SessionToken: "token", Region: "region", Endpoint: "https://endpoint",
		}},
	}
	for _, tc := range tests {
		var cfg operator.Config
		var op = operator.NewMemoryOperator()
		op.Put("key", []byte("content"))

		var origin = NewWithConstructor(tc.scheme, constructorOf(op, &cfg))
		var resp, err = origin.Head(context.Background(), backend.HeadRequest{
			URL:           tc.url,
			Timeout:       7 * time.Second,
			ObjectStorage: testCreds,
		})
		require.NoError(t, err)
		require.Equal(t, int64(7), resp.ContentLength)

		require.NotNil(t, cfg.HTTPClient)
		require.Equal(t, 7*time.Second, cfg.HTTPClient.Timeout)
		cfg.HTTPClient = nil
		require.Equal(t, tc.expect, cfg)
	}
}

func TestEachRequestBuildsItsOwnTransport(t *testing.T) {
	var clients []*http.Client
	var origin = NewWithConstructor(S3, func(c operator.Config) (operator.Operator, error) {
		clients = append(clients, c.HTTPClient)
		return &operator.CallbackOperator{}, nil
	})
	for i := 0; i != 2; i++ {
		var _, err = origin.Head(context.Background(), backend.HeadRequest{URL: "s3://bucket/key", ObjectStorage: testCreds})
		require.NoError(t, err)
	}
	require.Len(t, clients, 2)
	require.NotSame(t, clients[0], clients[1])
	require.NotSame(t, clients[0].Transport, clients[1].Transport)
}

func TestHeadOfDirectory(t *testing.T) {
	var listed, statted []string
	var op = &operator.CallbackOperator{
		ListFunc: func(_ context.Context, prefix string) ([]operator.Entry, error) {
			listed = append(listed, prefix)
			return []operator.Entry{
				{Path: "dir/a", Metadata: operator.Metadata{ContentLength: 1}},
				{Path: "dir/sub/", Metadata: operator.Metadata{IsDir: true}},
				{Path: "dir/sub/b", Metadata: operator.Metadata{ContentLength: 2}},
			}, nil
		},
		StatFunc: func(_ context.Context, key string) (operator.Metadata, error) {
			statted = append(statted, key)
			return operator.Metadata{ContentLength: 42, IsDir: true}, nil
		},
	}
	var cfg operator.Config
	var origin = NewWithConstructor(S3, constructorOf(op, &cfg))

	var resp, err = origin.Head(context.Background(), backend.HeadRequest{
		TaskID:        "task",
		URL:           "s3://bucket/dir/",
		ObjectStorage: testCreds,
	})
	require.NoError(t, err)
	require.Equal(t, &backend.HeadResponse{
		Success:       true,
		ContentLength: 42,
		Entries: []backend.DirEntry{
			{URL: "s3://bucket/dir/a", ContentLength: 1},
			{URL: "s3://bucket/dir/sub/", IsDir: true},
			{URL: "s3://bucket/dir/sub/b", ContentLength: 2},
		},
	}, resp)
	require.Equal(t, []string{"dir/"}, listed)
	require.Equal(t, []string{"dir/"}, statted)

	// A non-directory URL is stat-ed, but not listed.
	resp, err = origin.Head(context.Background(), backend.HeadRequest{URL: "s3://bucket/dir", ObjectStorage: testCreds})
	require.NoError(t, err)
	require.Empty(t, resp.Entries)
	require.Equal(t, []string{"dir/"}, listed)
	require.Equal(t, []string{"dir/", "dir"}, statted)
}

func TestHeadFailures(t *testing.T) {
	var listErr, statErr error
	var op = &operator.CallbackOperator{
		ListFunc: func(context.Context, string) ([]operator.Entry, error) {
			return []operator.Entry{{Path: "dir/a"}}, listErr
		},
		StatFunc: func(_ context.Context, key string) (operator.Metadata, error) {
			return operator.Metadata{}, statErr
		},
	}
	var cfg operator.Config
	var origin = NewWithConstructor(OSS, constructorOf(op, &cfg))
	var req = backend.HeadRequest{URL: "oss://bucket/dir/", ObjectStorage: testCreds}

	// A failed listing aborts, and no partial listing is returned.
	listErr = &operator.Error{Op: "list", Key: "dir/", StatusCode: http.StatusForbidden, Err: errors.New("denied")}
	var resp, err = origin.Head(context.Background(), req)
	require.Nil(t, resp)
	require.EqualError(t, err, `backend error: list "dir/": denied (status 403)`)

	listErr, statErr = nil, operator.NotFound("stat", "dir/")
	_, err = origin.Head(context.Background(), req)
	be, ok := backend.IsBackendError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, be.StatusCode)

	// A URL of another scheme is rejected.
	_, err = origin.Head(context.Background(), backend.HeadRequest{URL: "s3://bucket/key", ObjectStorage: testCreds})
	require.True(t, errors.Is(err, backend.ErrInvalidURI))

	// As is a URL without a bucket.
	_, err = origin.Head(context.Background(), backend.HeadRequest{URL: "oss:///key", ObjectStorage: testCreds})
	require.True(t, errors.Is(err, backend.ErrInvalidURI))
}

func TestGetRange(t *testing.T) {
	var cfg operator.Config
	var op = operator.NewMemoryOperator()
	op.Put("obj", []byte("0123456789abcdefghij"))

	var origin = NewWithConstructor(GCS, constructorOf(op, &cfg))
	var ctx = context.Background()

	resp, err := origin.Get(ctx, backend.GetRequest{
		TaskID:        "task",
		PieceID:       "piece",
		URL:           "gcs://bucket/obj",
		Range:         &backend.Range{Start: 10, Length: 5},
		ObjectStorage: testCreds,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	text, err := resp.Text()
	require.NoError(t, err)
	require.Equal(t, "abcde", text)

	// Without a range, the entire object is read.
	resp, err = origin.Get(ctx, backend.GetRequest{URL: "gcs://bucket/obj", ObjectStorage: testCreds})
	require.NoError(t, err)
	text, err = resp.Text()
	require.NoError(t, err)
	require.Equal(t, "0123456789abcdefghij", text)

	// A range beyond the object is a short read.
	resp, err = origin.Get(ctx, backend.GetRequest{
		URL:           "gcs://bucket/obj",
		Range:         &backend.Range{Start: 18, Length: 5},
		ObjectStorage: testCreds,
	})
	require.NoError(t, err)
	_, err = resp.Text()
	require.Equal(t, io.ErrUnexpectedEOF, err)

	// Read failures are flattened.
	_, err = origin.Get(ctx, backend.GetRequest{URL: "gcs://bucket/missing", ObjectStorage: testCreds})
	be, ok := backend.IsBackendError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, be.StatusCode)
	require.Equal(t, `read "missing": object not found`, be.Message)
}

func TestGetRejectsRangesBeyondMaxOffset(t *testing.T) {
	var origin = NewWithConstructor(S3, func(operator.Config) (operator.Operator, error) {
		return &operator.CallbackOperator{
			ReadFunc: func(context.Context, string, *backend.Range) (io.ReadCloser, error) {
				panic("an invalid range must not be read")
			},
		}, nil
	})

	for _, rng := range []backend.Range{
		{Start: 10, Length: 1 << 63},
		{Start: 1 << 63, Length: 5},
		{Start: math.MaxInt64, Length: 1},
	} {
		var resp, err = origin.Get(context.Background(), backend.GetRequest{
			URL:           "s3://bucket/obj",
			Range:         &rng,
			ObjectStorage: testCreds,
		})
		require.Nil(t, resp)
		require.True(t, errors.Is(err, backend.ErrInvalidParameter), "%+v", rng)
	}
}

func TestGetOfEmptyRange(t *testing.T) {
	var cfg operator.Config
	var op = operator.NewMemoryOperator()
	op.Put("obj", []byte("0123456789"))
	var origin = NewWithConstructor(S3, constructorOf(op, &cfg))

	resp, err := origin.Get(context.Background(), backend.GetRequest{
		URL:           "s3://bucket/obj",
		Range:         &backend.Range{Start: 4, Length: 0},
		ObjectStorage: testCreds,
	})
	require.NoError(t, err)
	text, err := resp.Text()
	require.NoError(t, err)
	require.Equal(t, "", text)

	// The object must still exist.
	_, err = origin.Get(context.Background(), backend.GetRequest{
		URL:           "s3://bucket/missing",
		Range:         &backend.Range{Start: 0, Length: 0},
		ObjectStorage: testCreds,
	})
	be, ok := backend.IsBackendError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, be.StatusCode)
}

func TestConstructorFailureIsBackendError(t *testing.T) {
	var origin = NewWithConstructor(OSS, func(operator.Config) (operator.Operator, error) {
		return nil, errors.New("parsing oss endpoint: endpoint is required")
	})
	var _, err = origin.Head(context.Background(), backend.HeadRequest{
		URL:           "oss://bucket/key",
		ObjectStorage: &backend.ObjectStorage{AccessKeyID: "id", AccessKeySecret: "secret"},
	})
	require.EqualError(t, err, "backend error: parsing oss endpoint: endpoint is required")
}

func TestDefaultConstructors(t *testing.T) {
	var ctors = DefaultConstructors()
	for _, s := range Schemes {
		require.NotNil(t, ctors[s], s.String())
		require.Equal(t, s.String(), New(s).Scheme())
	}
}
