package memory

import (
	"context"
	"sync"

	"github.com/sig-0/fxcache/storage"
)

type key struct {
	ns  storage.Namespace
	key string
}

// Storage is a volatile key-value store.
// Data lives as long as the process does
type Storage struct {
	data map[key][]byte

	mu sync.RWMutex
}

func NewStorage() *Storage {
	return &Storage{
		data: make(map[key][]byte),
	}
}

func (s *Storage) Get(
	_ context.Context,
	ns storage.Namespace,
	keys ...string,
) (map[string][]byte, error) {
	if err := storage.ValidateNamespace(ns); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(keys))

	for _, k := range keys {
		v, ok := s.data[key{ns: ns, key: k}]
		if !ok {
			continue
		}

		out[k] = append([]byte(nil), v...)
	}

	return out, nil
}

func (s *Storage) Set(
	_ context.Context,
	ns storage.Namespace,
	items map[string][]byte,
) error {
	if err := storage.ValidateNamespace(ns); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range items {
		s.data[key{ns: ns, key: k}] = append([]byte(nil), v...)
	}

	return nil
}
