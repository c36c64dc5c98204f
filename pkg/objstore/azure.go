package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureOption configures the Azure store.
type AzureOption func(*AzureConfig)

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	Account    string
	Container  string
	AccountKey string
	Endpoint   string
}

// WithAccountKey switches authentication to a shared key.
func WithAccountKey(key string) AzureOption {
	return func(c *AzureConfig) {
		c.AccountKey = key
	}
}

// WithEndpoint overrides the service URL (for Azurite).
func WithEndpoint(url string) AzureOption {
	return func(c *AzureConfig) {
		c.Endpoint = url
	}
}

// AzureStore reads blobs from one container.
type AzureStore struct {
	client    *azblob.Client
	account   string
	container string
}

// NewAzureStore builds a client with the default credential chain
// (env, workload identity, managed identity, az cli) unless a key is given.
func NewAzureStore(account, container string, opts ...AzureOption) (*AzureStore, error) {
	cfg := &AzureConfig{Account: account, Container: container}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Account == "" || cfg.Container == "" {
		return nil, errors.New("objstore: azure account and container are required")
	}
	url := cfg.Endpoint
	if url == "" {
		url = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.Account)
	}

	var (
		client *azblob.Client
		err    error
	)
	if cfg.AccountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("objstore: shared key: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("objstore: default credential: %w", credErr)
		}
		client, err = azblob.NewClient(url, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("objstore: azure client: %w", err)
	}

	return &AzureStore{client: client, account: cfg.Account, container: cfg.Container}, nil
}

func (s *AzureStore) Location() string {
	return fmt.Sprintf("az://%s/%s", s.account, s.container)
}

func (s *AzureStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	pager := s.client.NewListBlobsFlatPager(s.container, opts)

	var out []ObjectInfo
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("objstore: list %s: %w", prefix, err)
		}
		if resp.Segment == nil {
			continue
		}
		for _, item := range resp.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := ObjectInfo{Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.LastModified != nil {
					info.LastModified = p.LastModified.UTC()
				}
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("objstore: download %s: %w", key, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("objstore: read %s: %w", key, err)
	}
	return b, nil
}
