// Package azure saves exported result files into an Azure Blob container.
package azure

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/ocrdesk/ocrdesk/internal/cloud"
)

// Options configure authentication. A SAS token wins over an account key;
// with neither, the service URL is used anonymously.
type Options struct {
	SASToken   string
	AccountKey string
	Endpoint   string // overrides https://{account}.blob.core.windows.net (Azurite)

	HTTPClient *nethttp.Client
}

// Saver uploads blobs under a container prefix.
type Saver struct {
	client *azblob.Client
	dest   cloud.Destination
}

// NewSaver builds a blob client for dest.
func NewSaver(dest cloud.Destination, opts Options) (*Saver, error) {
	if dest.Scheme != cloud.SchemeAzure || dest.Account == "" || dest.Container == "" {
		return nil, fmt.Errorf("%w: %s is not an azblob destination", cloud.ErrInvalidDestination, dest)
	}

	serviceURL := ServiceURL(dest.Account, opts.Endpoint)
	clientOpts := &azblob.ClientOptions{}
	if opts.HTTPClient != nil {
		clientOpts.ClientOptions = azcore.ClientOptions{Transport: opts.HTTPClient}
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case opts.SASToken != "":
		client, err = azblob.NewClientWithNoCredential(serviceURL+"?"+strings.TrimPrefix(opts.SASToken, "?"), clientOpts)
	case opts.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(dest.Account, opts.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("invalid Azure account key: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, clientOpts)
	default:
		client, err = azblob.NewClientWithNoCredential(serviceURL, clientOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Saver{client: client, dest: dest}, nil
}

// ServiceURL returns the blob service URL for account, honouring a custom
// endpoint. Emulator endpoints carry the account as the first path segment.
func ServiceURL(account, endpoint string) string {
	if endpoint == "" {
		return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}
	return strings.TrimSuffix(endpoint, "/") + "/"
}

// Location returns the azblob:// URL of the destination.
func (s *Saver) Location() string {
	return s.dest.String()
}

// Save uploads data as a block blob.
func (s *Saver) Save(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	blobName, err := s.dest.ObjectKey(key)
	if err != nil {
		return "", err
	}

	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}

	if _, err := s.client.UploadBuffer(ctx, s.dest.Container, blobName, data, opts); err != nil {
		return "", fmt.Errorf("failed to upload azblob://%s/%s/%s: %w", s.dest.Account, s.dest.Container, blobName, err)
	}
	return fmt.Sprintf("azblob://%s/%s/%s", s.dest.Account, s.dest.Container, blobName), nil
}

var _ cloud.Saver = (*Saver)(nil)
