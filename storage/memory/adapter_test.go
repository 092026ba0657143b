package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sig-0/fxcache/storage"
)

func TestStorage_GetSet(t *testing.T) {
	t.Parallel()

	t.Run("absent keys are omitted", func(t *testing.T) {
		t.Parallel()

		s := NewStorage()

		items, err := s.Get(context.Background(), storage.NamespaceSync, storage.KeyBaseCurrency)
		require.NoError(t, err)

		assert.Empty(t, items)
	})

	t.Run("namespaces are independent", func(t *testing.T) {
		t.Parallel()

		s := NewStorage()

		require.NoError(t, s.Set(
			context.Background(),
			storage.NamespaceSync,
			map[string][]byte{storage.KeyBaseCurrency: []byte(`"hkd"`)},
		))

		items, err := s.Get(context.Background(), storage.NamespaceLocal, storage.KeyBaseCurrency)
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = s.Get(context.Background(), storage.NamespaceSync, storage.KeyBaseCurrency)
		require.NoError(t, err)
		assert.Equal(t, []byte(`"hkd"`), items[storage.KeyBaseCurrency])
	})

	t.Run("stored values are copied", func(t *testing.T) {
		t.Parallel()

		var (
			s     = NewStorage()
			value = []byte(`"hkd"`)
		)

		require.NoError(t, s.Set(
			context.Background(),
			storage.NamespaceSync,
			map[string][]byte{storage.KeyBaseCurrency: value},
		))

		value[1] = 'x'

		items, err := s.Get(context.Background(), storage.NamespaceSync, storage.KeyBaseCurrency)
		require.NoError(t, err)
		assert.Equal(t, []byte(`"hkd"`), items[storage.KeyBaseCurrency])
	})

	t.Run("invalid namespace", func(t *testing.T) {
		t.Parallel()

		s := NewStorage()

		_, err := s.Get(context.Background(), "remote", storage.KeyBaseCurrency)
		assert.ErrorIs(t, err, storage.ErrInvalidNamespace)

		assert.ErrorIs(
			t,
			s.Set(context.Background(), "remote", map[string][]byte{"k": nil}),
			storage.ErrInvalidNamespace,
		)
	})
}
