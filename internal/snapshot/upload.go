package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Uploader pushes a named blob to remote storage.
type Uploader interface {
	Upload(ctx context.Context, name string, body io.Reader) error
}

// Push uploads the archive at archivePath through up, naming the blob
// after the file.
func Push(ctx context.Context, archivePath string, up Uploader) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if err := up.Upload(ctx, filepath.Base(archivePath), f); err != nil {
		return fmt.Errorf("uploading %s: %w", filepath.Base(archivePath), err)
	}
	return nil
}

// AzureUploader stores snapshots in an Azure Blob Storage container
// using the ambient credential chain (environment, workload identity,
// managed identity, CLI).
type AzureUploader struct {
	client    *azblob.Client
	container string
}

// NewAzureUploader builds an uploader for the given storage account and
// container.
func NewAzureUploader(account, container string) (*AzureUploader, error) {
	if account == "" || container == "" {
		return nil, fmt.Errorf("snapshot upload needs both a storage account and a container")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := azblob.NewClient(serviceURL, cred, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: 3},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building blob client: %w", err)
	}

	return &AzureUploader{client: client, container: container}, nil
}

// Upload streams body into the configured container.
func (u *AzureUploader) Upload(ctx context.Context, name string, body io.Reader) error {
	_, err := u.client.UploadStream(ctx, u.container, name, body, nil)
	return err
}

var _ Uploader = (*AzureUploader)(nil)
