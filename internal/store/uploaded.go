package store

import (
	"context"

	"github.com/dmitrijs2005/gyazemon/internal/repositories/kv"
)

var markerTrue = []byte("true")

// UploadedSet is the monotonic set of content hashes already uploaded.
// Entries are never pruned.
type UploadedSet struct {
	repo kv.Repository
}

func (u *UploadedSet) Has(ctx context.Context, hash string) (bool, error) {
	b, err := u.repo.Get(ctx, hash)
	if err != nil {
		return false, err
	}
	return string(b) == "true", nil
}

func (u *UploadedSet) Mark(ctx context.Context, hash string) error {
	return u.repo.Set(ctx, hash, markerTrue)
}

func (u *UploadedSet) Len(ctx context.Context) (int, error) {
	return u.repo.Count(ctx)
}
