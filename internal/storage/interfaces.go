package storage

import "context"

// ImageFetcher pulls field captures from remote URLs. The raw bytes are
// returned undecoded; the analysis pipeline owns format handling.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// ObjectStore persists uploaded captures and rendered overlays by key
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Backend() string
}
