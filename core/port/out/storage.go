package out

import "context"

// BlobStore is the durable object store for attachment content.
// Keys are content-addressed under the owning message's identifier, so
// a re-upload of identical bytes is a no-op.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
