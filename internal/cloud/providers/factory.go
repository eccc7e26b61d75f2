// Package providers creates a cloud.Saver for an export destination string.
package providers

import (
	"context"
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers/azure"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers/local"
	"github.com/ocrdesk/ocrdesk/internal/cloud/providers/s3"
)

// Environment variables read when building remote savers.
const (
	EnvS3Endpoint     = "OCRDESK_S3_ENDPOINT"
	EnvAzureEndpoint  = "OCRDESK_AZBLOB_ENDPOINT"
	EnvAzureSASToken  = "AZURE_STORAGE_SAS_TOKEN"
	EnvAzureAccessKey = "AZURE_STORAGE_KEY"
)

// NewSaver parses destination and returns the matching saver. httpClient
// carries the proxy settings and may be nil.
func NewSaver(ctx context.Context, destination string, httpClient *nethttp.Client) (cloud.Saver, error) {
	dest, err := cloud.ParseDestination(destination)
	if err != nil {
		return nil, err
	}

	switch dest.Scheme {
	case cloud.SchemeLocal:
		return local.NewSaver(dest.Path)
	case cloud.SchemeS3:
		return s3.NewSaver(ctx, dest, s3.Options{
			Endpoint:   os.Getenv(EnvS3Endpoint),
			HTTPClient: httpClient,
		})
	case cloud.SchemeAzure:
		return azure.NewSaver(dest, azure.Options{
			SASToken:   os.Getenv(EnvAzureSASToken),
			AccountKey: os.Getenv(EnvAzureAccessKey),
			Endpoint:   os.Getenv(EnvAzureEndpoint),
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("unsupported destination scheme: %s", dest.Scheme)
	}
}
