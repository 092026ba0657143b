package sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sig-0/fxcache/storage"
)

const (
	getItemQuery = `SELECT value::text FROM kv_items WHERE namespace = $1 AND key = $2`

	setItemsQuery = `
INSERT INTO kv_items (namespace, key, value, updated_at)
SELECT $1, k, v::jsonb, now()
FROM unnest($2::text[], $3::text[]) AS t(k, v)
ON CONFLICT (namespace, key) DO UPDATE
    SET value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at`
)

// DBTX is the subset of the pgx connection API the adapter relies on.
// Both *pgx.Conn and *pgxpool.Pool satisfy it
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage is a PostgreSQL backed key-value store
type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) Get(
	ctx context.Context,
	ns storage.Namespace,
	keys ...string,
) (map[string][]byte, error) {
	if err := storage.ValidateNamespace(ns); err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(keys))

	for _, k := range keys {
		var value string

		err := s.db.QueryRow(ctx, getItemQuery, ns.String(), k).Scan(&value)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // valid case
			}

			return nil, fmt.Errorf("unable to fetch %s/%s: %w", ns, k, err)
		}

		out[k] = []byte(value)
	}

	return out, nil
}

func (s *Storage) Set(
	ctx context.Context,
	ns storage.Namespace,
	items map[string][]byte,
) error {
	if err := storage.ValidateNamespace(ns); err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	var (
		keys   = make([]string, 0, len(items))
		values = make([]string, 0, len(items))
	)

	for k, v := range items {
		keys = append(keys, k)
		values = append(values, string(v))
	}

	// Single statement, so either all items land or none do
	if _, err := s.db.Exec(ctx, setItemsQuery, ns.String(), keys, values); err != nil {
		return fmt.Errorf("unable to save %d %s items: %w", len(items), ns, err)
	}

	return nil
}
