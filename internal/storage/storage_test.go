package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("sqlite")
	require.NoError(t, err)
	assert.Equal(t, KindSQLite, kind)

	kind, err = ParseKind(" Bolt ")
	require.NoError(t, err)
	assert.Equal(t, KindBolt, kind)

	_, err = ParseKind("postgres")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestBackends(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		folder func(t *testing.T) string
	}{
		{"memory", KindMemory, func(t *testing.T) string { return "" }},
		{"sqlite in memory", KindSQLite, func(t *testing.T) string { return "" }},
		{"sqlite on disk", KindSQLite, func(t *testing.T) string { return t.TempDir() }},
		{"bolt", KindBolt, func(t *testing.T) string { return filepath.Join(t.TempDir(), "nested") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			backend, err := Open(tc.kind, tc.folder(t))
			require.NoError(t, err)
			defer backend.Close()

			_, ok, err := backend.Get(ctx, "doc", "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, backend.Set(ctx, "doc", "key", "first"))
			require.NoError(t, backend.Set(ctx, "doc", "key", "second"))
			require.NoError(t, backend.Set(ctx, "other", "key", "elsewhere"))

			value, ok, err := backend.Get(ctx, "doc", "key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "second", value)

			value, ok, err = backend.Get(ctx, "other", "key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "elsewhere", value)

			assert.ErrorIs(t, backend.Set(ctx, "doc", "", "value"), ErrEmptyKey)
			_, ok, err = backend.Get(ctx, "doc", "")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDiskBackendsPersist(t *testing.T) {
	for _, kind := range []Kind{KindSQLite, KindBolt} {
		t.Run(kind.String(), func(t *testing.T) {
			ctx := context.Background()
			folder := t.TempDir()

			backend, err := Open(kind, folder)
			require.NoError(t, err)
			require.NoError(t, backend.Set(ctx, "doc", "key", "kept"))
			require.NoError(t, backend.Close())

			backend, err = Open(kind, folder)
			require.NoError(t, err)
			defer backend.Close()

			value, ok, err := backend.Get(ctx, "doc", "key")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "kept", value)
		})
	}
}

func TestOpenBoltRequiresFolder(t *testing.T) {
	_, err := Open(KindBolt, "")
	assert.Error(t, err)
}

func TestOpenCreatesFolder(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "a", "b")
	backend, err := Open(KindSQLite, folder)
	require.NoError(t, err)
	defer backend.Close()

	_, err = os.Stat(filepath.Join(folder, sqliteFileName))
	assert.NoError(t, err)
}

func TestOpenUnknownKind(t *testing.T) {
	_, err := Open(Kind("redis"), "")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}
