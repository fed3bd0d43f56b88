// Package kv is a namespaced key/value repository over the local SQLite
// database. Each namespace ("config", "uploaded") behaves as an independent
// store sharing the kv table.
package kv

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Count(ctx context.Context) (int, error)
}
