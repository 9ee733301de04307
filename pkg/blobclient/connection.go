package blobclient

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

// Azurite (local emulator) well-known account.
const (
	devStoreAccountName = "devstoreaccount1"
	devStoreAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	devStoreBlobURL     = "http://127.0.0.1:10000/devstoreaccount1"

	defaultEndpointSuffix = "core.windows.net"
)

// ConnectionParams holds the endpoint and credential for a storage account.
// With neither AccountKey nor SharedAccessSignature set, the managed
// identity of the environment is used.
type ConnectionParams struct {
	Protocol              string
	AccountName           string
	AccountKey            string
	SharedAccessSignature string
	BlobEndpoint          string
	EndpointSuffix        string
}

// ParseConnectionString parses an Azure storage connection string of
// ';'-separated Key=Value pairs. Unrecognized keys are ignored.
func ParseConnectionString(connStr string) (ConnectionParams, error) {
	var params ConnectionParams

	if strings.TrimSpace(connStr) == "" {
		return params, errors.NewConfigurationError("connection string is empty")
	}

	for _, segment := range strings.Split(connStr, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		key, value, ok := strings.Cut(segment, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return ConnectionParams{}, errors.NewConfigurationError(
				fmt.Sprintf("malformed connection string segment %q", redactSegment(segment)))
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "defaultendpointsprotocol":
			params.Protocol = strings.ToLower(value)
		case "accountname":
			params.AccountName = value
		case "accountkey":
			params.AccountKey = value
		case "sharedaccesssignature":
			params.SharedAccessSignature = strings.TrimPrefix(value, "?")
		case "blobendpoint":
			params.BlobEndpoint = value
		case "endpointsuffix":
			params.EndpointSuffix = value
		case "usedevelopmentstorage":
			dev, err := strconv.ParseBool(value)
			if err != nil {
				return ConnectionParams{}, errors.NewConfigurationError("UseDevelopmentStorage must be true or false")
			}
			if dev {
				params.AccountName = devStoreAccountName
				params.AccountKey = devStoreAccountKey
				params.BlobEndpoint = devStoreBlobURL
			}
		}
	}

	if err := params.Validate(); err != nil {
		return ConnectionParams{}, err
	}
	return params, nil
}

// Validate checks that the parameters describe a reachable blob endpoint.
func (p ConnectionParams) Validate() error {
	switch p.Protocol {
	case "", "http", "https":
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unsupported protocol %q", p.Protocol))
	}

	if p.BlobEndpoint != "" {
		u, err := url.Parse(p.BlobEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.NewConfigurationError(fmt.Sprintf("invalid blob endpoint %q", p.BlobEndpoint))
		}
	} else if p.AccountName == "" {
		return errors.NewConfigurationError("account name or blob endpoint is required")
	}

	if p.AccountKey != "" && p.AccountName == "" {
		return errors.NewConfigurationError("account key requires an account name")
	}
	return nil
}

// ServiceURL returns the blob service endpoint, always ending in '/'.
func (p ConnectionParams) ServiceURL() string {
	if p.BlobEndpoint != "" {
		return strings.TrimSuffix(p.BlobEndpoint, "/") + "/"
	}

	protocol := p.Protocol
	if protocol == "" {
		protocol = "https"
	}
	suffix := p.EndpointSuffix
	if suffix == "" {
		suffix = defaultEndpointSuffix
	}
	return fmt.Sprintf("%s://%s.blob.%s/", protocol, p.AccountName, suffix)
}

// redactSegment keeps secrets out of error messages.
func redactSegment(segment string) string {
	if len(segment) > 12 {
		return segment[:12] + "..."
	}
	return segment
}
