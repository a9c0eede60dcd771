package azure

import (
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/require"
	"go.pieceflow.dev/core/backend/objectstorage/operator"
)

// TestAzureWrapError tests classification of Azure errors.
func TestAzureWrapError(t *testing.T) {
	var tests = []struct {
		name       string
		err        error
		statusCode int
		notFound   bool
	}{
		{
			name:       "BlobNotFound is not found",
			err:        &azcore.ResponseError{ErrorCode: "BlobNotFound", StatusCode: http.StatusNotFound},
			statusCode: http.StatusNotFound,
			notFound:   true,
		},
		{
			name:       "ContainerNotFound is a 404",
			err:        &azcore.ResponseError{ErrorCode: "ContainerNotFound", StatusCode: http.StatusNotFound},
			statusCode: http.StatusNotFound,
		},
		{
			name:       "403 Forbidden",
			err:        &azcore.ResponseError{ErrorCode: "AuthorizationFailure", StatusCode: http.StatusForbidden},
			statusCode: http.StatusForbidden,
		},
		{
			name: "Generic error has no status",
			err:  errors.New("timeout"),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var err = wrapError("stat", "key", test.err)
			require.Equal(t, test.statusCode, operator.StatusCode(err))
			require.Equal(t, test.notFound, errors.Is(err, operator.ErrNotFound))
		})
	}
}

func TestAzureNewOperator(t *testing.T) {
	var key = base64.StdEncoding.EncodeToString([]byte("account-key"))

	op, err := New(operator.Config{
		Bucket:          "container",
		AccessKeyID:     "account",
		AccessKeySecret: key,
		HTTPClient:      http.DefaultClient,
	})
	require.NoError(t, err)

	var ao = op.(*azureOperator)
	require.Equal(t, "https://account.blob.core.windows.net/container", ao.client.URL())
	require.Equal(t, "container", ao.container)

	// Account keys must be base64.
	_, err = New(operator.Config{Bucket: "container", AccessKeyID: "account", AccessKeySecret: "%%%"})
	require.ErrorContains(t, err, "building shared key credential")
}
