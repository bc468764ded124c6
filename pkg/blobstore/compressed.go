package blobstore

import (
	"context"
	"fmt"

	"github.com/golang/snappy"
)

type compressed struct {
	Store
}

// Compressed wraps store so values are snappy-compressed at rest.
func Compressed(store Store) Store {
	return &compressed{Store: store}
}

func (c *compressed) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress blob: %w", err)
	}
	return decoded, nil
}

func (c *compressed) Put(ctx context.Context, key string, data []byte) error {
	return c.Store.Put(ctx, key, snappy.Encode(nil, data))
}
