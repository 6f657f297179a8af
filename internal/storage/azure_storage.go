package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "github.com/kevinb28-21/CropView-sub001/internal/errors"
)

// AzureStore persists objects in a single Azure Blob Storage container
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore creates a blob store over the named container
func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	if accountName == "" || accountKey == "" || container == "" {
		return nil, apperrors.NewValidationError("azure storage requires account name, key and container", nil)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, apperrors.NewStorageError("invalid azure credentials", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, apperrors.NewStorageError("unable to create azure client", err)
	}

	return &AzureStore{client: client, container: container}, nil
}

// Put uploads an object under the given key
func (s *AzureStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.UploadStream(ctx, s.container, key, bytes.NewReader(data), nil)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("unable to upload blob %s", key), err)
	}
	return nil
}

// Get downloads the object stored under the given key
func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("unable to download blob %s", key), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("unable to read blob %s", key), err)
	}
	return data, nil
}

// Backend names the storage backend for logs and metrics
func (s *AzureStore) Backend() string {
	return "azure"
}
