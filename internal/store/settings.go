package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gyazemon/internal/dbx"
	"github.com/dmitrijs2005/gyazemon/internal/repositories/kv"
	"github.com/dmitrijs2005/gyazemon/internal/watchlist"
)

const (
	KeyAccessToken = "gyazoAccessToken"
	KeyWatchlist   = "watchlist"
)

// Settings reads and writes the user settings in the config namespace.
// Values are stored as JSON.
type Settings struct {
	db   *sql.DB
	repo kv.Repository
}

// AccessToken returns "" when no token was saved.
func (s *Settings) AccessToken(ctx context.Context) (string, error) {
	b, err := s.repo.Get(ctx, KeyAccessToken)
	if err != nil || b == nil {
		return "", err
	}
	var token string
	if err := json.Unmarshal(b, &token); err != nil {
		return "", fmt.Errorf("decode %s: %w", KeyAccessToken, err)
	}
	return token, nil
}

func (s *Settings) SetAccessToken(ctx context.Context, token string) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, KeyAccessToken, b)
}

// Watchlist returns the saved entries, upgrading legacy items.
func (s *Settings) Watchlist(ctx context.Context) ([]watchlist.Entry, error) {
	return readWatchlist(ctx, s.repo)
}

func (s *Settings) SetWatchlist(ctx context.Context, entries []watchlist.Entry) error {
	return writeWatchlist(ctx, s.repo, entries)
}

// UpdateWatchlist applies fn to the saved watchlist inside one transaction.
func (s *Settings) UpdateWatchlist(ctx context.Context, fn func([]watchlist.Entry) ([]watchlist.Entry, error)) ([]watchlist.Entry, error) {
	var result []watchlist.Entry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := kv.NewSQLiteRepository(tx, NamespaceConfig)
		entries, err := readWatchlist(ctx, repo)
		if err != nil {
			return err
		}
		entries, err = fn(entries)
		if err != nil {
			return err
		}
		result = entries
		return writeWatchlist(ctx, repo, entries)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func readWatchlist(ctx context.Context, repo kv.Repository) ([]watchlist.Entry, error) {
	b, err := repo.Get(ctx, KeyWatchlist)
	if err != nil {
		return nil, err
	}
	entries, err := watchlist.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyWatchlist, err)
	}
	return entries, nil
}

func writeWatchlist(ctx context.Context, repo kv.Repository, entries []watchlist.Entry) error {
	b, err := watchlist.Encode(entries)
	if err != nil {
		return err
	}
	return repo.Set(ctx, KeyWatchlist, b)
}
