package blobclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name       string
		connStr    string
		want       ConnectionParams
		serviceURL string
	}{
		{
			name:    "account key",
			connStr: "DefaultEndpointsProtocol=https;AccountName=acme;AccountKey=c2VjcmV0;EndpointSuffix=core.windows.net",
			want: ConnectionParams{
				Protocol:       "https",
				AccountName:    "acme",
				AccountKey:     "c2VjcmV0",
				EndpointSuffix: "core.windows.net",
			},
			serviceURL: "https://acme.blob.core.windows.net/",
		},
		{
			name:    "keys are case insensitive and padding is ignored",
			connStr: " accountname = acme ; ACCOUNTKEY=c2VjcmV0==;; ",
			want: ConnectionParams{
				AccountName: "acme",
				AccountKey:  "c2VjcmV0==",
			},
			serviceURL: "https://acme.blob.core.windows.net/",
		},
		{
			name:    "shared access signature with explicit endpoint",
			connStr: "BlobEndpoint=https://acme.blob.core.chinacloudapi.cn;SharedAccessSignature=?sv=2022-11-02&sig=abc",
			want: ConnectionParams{
				BlobEndpoint:          "https://acme.blob.core.chinacloudapi.cn",
				SharedAccessSignature: "sv=2022-11-02&sig=abc",
			},
			serviceURL: "https://acme.blob.core.chinacloudapi.cn/",
		},
		{
			name:    "managed identity",
			connStr: "AccountName=acme;EndpointSuffix=core.usgovcloudapi.net",
			want: ConnectionParams{
				AccountName:    "acme",
				EndpointSuffix: "core.usgovcloudapi.net",
			},
			serviceURL: "https://acme.blob.core.usgovcloudapi.net/",
		},
		{
			name:    "development storage",
			connStr: "UseDevelopmentStorage=true",
			want: ConnectionParams{
				AccountName:  devStoreAccountName,
				AccountKey:   devStoreAccountKey,
				BlobEndpoint: devStoreBlobURL,
			},
			serviceURL: "http://127.0.0.1:10000/devstoreaccount1/",
		},
		{
			name:    "unknown keys are ignored",
			connStr: "AccountName=acme;QueueEndpoint=https://acme.queue.core.windows.net/",
			want: ConnectionParams{
				AccountName: "acme",
			},
			serviceURL: "https://acme.blob.core.windows.net/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := ParseConnectionString(tt.connStr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, params)
			assert.Equal(t, tt.serviceURL, params.ServiceURL())
		})
	}
}

func TestParseConnectionString_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		connStr string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"segment without separator", "AccountName=acme;AccountKey"},
		{"empty key", "=value"},
		{"no account or endpoint", "AccountKey=c2VjcmV0"},
		{"bad protocol", "DefaultEndpointsProtocol=ftp;AccountName=acme"},
		{"relative endpoint", "BlobEndpoint=acme.blob.core.windows.net"},
		{"bad development flag", "UseDevelopmentStorage=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConnectionString(tt.connStr)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrorCodeConfiguration))
		})
	}
}

func TestParseConnectionString_RedactsSecrets(t *testing.T) {
	_, err := ParseConnectionString("AccountName=acme;AccountKeyc2VjcmV0c2VjcmV0c2VjcmV0")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "c2VjcmV0c2VjcmV0c2VjcmV0")
}
