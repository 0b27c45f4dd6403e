package collection_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/collection"
	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/mlconfig"
)

func TestHandle_Open_MemoryOnlyRequiresNoDataDir(t *testing.T) {
	t.Parallel()

	h, err := collection.Open(context.Background(), mlconfig.Config{MemoryOnly: true})
	require.NoError(t, err)
	require.NoError(t, h.Close(context.Background()))
}

func TestHandle_Open_DiskBackedRequiresDataDir(t *testing.T) {
	t.Parallel()

	_, err := collection.Open(context.Background(), mlconfig.Config{})
	require.Error(t, err)
}

func TestHandle_Open_PersistsAcrossHandles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	cfg := mlconfig.Config{DataDir: filepath.Join(dir, "data"), CacheSize: 16}

	h1, err := collection.Open(ctx, cfg)
	require.NoError(t, err)

	c1, err := collection.Open[account](ctx, h1, "accounts", docid.NewTextRegistry(), accountCodec{})
	require.NoError(t, err)

	saved, err := c1.Repository().Save(ctx, account{Region: "apac"})
	require.NoError(t, err)
	require.NoError(t, h1.Close(ctx))

	h2, err := collection.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h2.Close(ctx) })

	c2, err := collection.Open[account](ctx, h2, "accounts", docid.NewTextRegistry(), accountCodec{})
	require.NoError(t, err)

	got, ok, err := c2.Repository().FindByID(ctx, mustParseText(t, saved.ID))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "apac", got.Region)
}

func TestHandle_Close_IsIdempotent(t *testing.T) {
	t.Parallel()

	h := openMemoryHandle(t)

	require.NoError(t, h.Close(context.Background()))
	require.NoError(t, h.Close(context.Background()))
}
