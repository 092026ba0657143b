package mock

import (
	"context"

	"github.com/sig-0/fxcache/storage"
)

type (
	GetDelegate func(context.Context, storage.Namespace, ...string) (map[string][]byte, error)
	SetDelegate func(context.Context, storage.Namespace, map[string][]byte) error
)

type Storage struct {
	GetFn GetDelegate
	SetFn SetDelegate
}

func (m *Storage) Get(
	ctx context.Context,
	ns storage.Namespace,
	keys ...string,
) (map[string][]byte, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, ns, keys...)
	}

	return nil, nil
}

func (m *Storage) Set(ctx context.Context, ns storage.Namespace, items map[string][]byte) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, ns, items)
	}

	return nil
}
