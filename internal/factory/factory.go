package factory

import (
	"fmt"

	"github.com/kevinb28-21/CropView-sub001/internal/config"
	"github.com/kevinb28-21/CropView-sub001/internal/storage"
)

// StorageFactory creates storage backends from configuration
type StorageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) *StorageFactory {
	return &StorageFactory{cfg: cfg}
}

// CreateObjectStore builds the configured object store for originals and
// overlays
func (f *StorageFactory) CreateObjectStore() (storage.ObjectStore, error) {
	switch f.cfg.StorageBackend {
	case config.BackendLocal:
		return storage.NewLocalStore(f.cfg.LocalStoragePath)
	case config.BackendAzure:
		return storage.NewAzureStore(f.cfg.AzureAccountName, f.cfg.AzureAccountKey, f.cfg.AzureContainer)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", f.cfg.StorageBackend)
	}
}

// CreateURLFetcher builds the fetcher for remote captures
func (f *StorageFactory) CreateURLFetcher() storage.ImageFetcher {
	return storage.NewHTTPImageFetcher(f.cfg.ImageFetchTimeout)
}

// CreateKeyFetcher adapts an object store into a fetcher for stored
// captures
func (f *StorageFactory) CreateKeyFetcher(store storage.ObjectStore) storage.ImageFetcher {
	return storage.NewStoreFetcher(store)
}
