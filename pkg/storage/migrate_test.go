package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/storage"
)

func TestMigrate_CopiesAllDocumentsInBatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := storage.NewMemEngine()
	dst := storage.NewMemEngine()

	for _, s := range []string{"1", "2", "3", "4", "5"} {
		doc := document.New()
		doc.Set("id", document.Text(s))
		require.NoError(t, src.Upsert(ctx, newTextID(s), doc))
	}

	require.NoError(t, storage.Migrate(ctx, src, dst, 2))

	n, err := dst.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got, ok, err := dst.FindByID(ctx, newTextID("3"))
	require.NoError(t, err)
	require.True(t, ok)

	v, _ := got.Get("id")
	require.Equal(t, document.Text("3"), v)
}
