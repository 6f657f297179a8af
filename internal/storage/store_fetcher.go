package storage

import "context"

// StoreFetcher adapts an ObjectStore into an ImageFetcher whose image
// references are storage keys rather than URLs. The worker uses it to read
// back captures the upload endpoint stored.
type StoreFetcher struct {
	store ObjectStore
}

// NewStoreFetcher creates a fetcher backed by an object store
func NewStoreFetcher(store ObjectStore) ImageFetcher {
	return &StoreFetcher{store: store}
}

// FetchImage reads the object stored under the given key
func (f *StoreFetcher) FetchImage(ctx context.Context, ref string) ([]byte, error) {
	return f.store.Get(ctx, ref)
}
