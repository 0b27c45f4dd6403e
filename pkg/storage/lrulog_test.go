package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/fs"
	"github.com/minileaf/minileaf/pkg/storage"
)

func newLRULogEngine(t *testing.T, dir string) *storage.LRULogEngine {
	t.Helper()

	e, err := storage.OpenLRULogEngine(context.Background(), storage.LRULogConfig{
		FS:          fs.NewReal(),
		DataPath:    filepath.Join(dir, "coll.data"),
		Variant:     docid.VariantText,
		CacheSize:   2,
		SyncOnWrite: true,
	})
	require.NoError(t, err)

	return e
}

func TestLRULogEngine_UpsertFindDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	e := newLRULogEngine(t, dir)
	defer e.Close(ctx)

	id := newTextID("1")
	doc := document.New()
	doc.Set("name", document.Text("carol"))

	require.NoError(t, e.Upsert(ctx, id, doc))

	got, ok, err := e.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	name, _ := got.Get("name")
	require.Equal(t, document.Text("carol"), name)

	_, ok, err = e.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = e.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLRULogEngine_RebuildsIndexOnReopenAfterDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	e1 := newLRULogEngine(t, dir)

	for _, s := range []string{"1", "2", "3", "4", "5"} {
		require.NoError(t, e1.Upsert(ctx, newTextID(s), document.New()))
	}

	_, _, err := e1.Delete(ctx, newTextID("2"))
	require.NoError(t, err)
	_, _, err = e1.Delete(ctx, newTextID("4"))
	require.NoError(t, err)

	require.NoError(t, e1.Close(ctx))

	e2 := newLRULogEngine(t, dir)
	defer e2.Close(ctx)

	for _, tc := range []struct {
		id     string
		exists bool
	}{
		{"1", true}, {"2", false}, {"3", true}, {"4", false}, {"5", true},
	} {
		_, ok, err := e2.FindByID(ctx, newTextID(tc.id))
		require.NoError(t, err)
		require.Equal(t, tc.exists, ok, "id %s", tc.id)
	}
}

func TestLRULogEngine_ResurrectAfterDeleteThenReinsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	e1 := newLRULogEngine(t, dir)

	id := newTextID("1")
	require.NoError(t, e1.Upsert(ctx, id, document.New()))
	_, _, err := e1.Delete(ctx, id)
	require.NoError(t, err)

	doc := document.New()
	doc.Set("resurrected", document.Bool(true))
	require.NoError(t, e1.Upsert(ctx, id, doc))
	require.NoError(t, e1.Close(ctx))

	e2 := newLRULogEngine(t, dir)
	defer e2.Close(ctx)

	got, ok, err := e2.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	v, _ := got.Get("resurrected")
	require.Equal(t, document.Bool(true), v)
}

func TestLRULogEngine_CompactDropsDeletionMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	e := newLRULogEngine(t, dir)
	defer e.Close(ctx)

	require.NoError(t, e.Upsert(ctx, newTextID("1"), document.New()))
	require.NoError(t, e.Upsert(ctx, newTextID("2"), document.New()))
	_, _, err := e.Delete(ctx, newTextID("1"))
	require.NoError(t, err)

	require.NoError(t, e.Compact(ctx))

	_, ok, err := e.FindByID(ctx, newTextID("1"))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = e.FindByID(ctx, newTextID("2"))
	require.NoError(t, err)
	require.True(t, ok)

	n, err := e.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestLRULogEngine_CacheEvictionStillReturnsCorrectBytes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	e := newLRULogEngine(t, dir) // cache size 2
	defer e.Close(ctx)

	for _, s := range []string{"1", "2", "3"} {
		doc := document.New()
		doc.Set("id", document.Text(s))
		require.NoError(t, e.Upsert(ctx, newTextID(s), doc))
	}

	// Reading "1" after cache pressure from "2","3" must still return its
	// last-written bytes (evicted, not lost).
	got, ok, err := e.FindByID(ctx, newTextID("1"))
	require.NoError(t, err)
	require.True(t, ok)

	v, _ := got.Get("id")
	require.Equal(t, document.Text("1"), v)
}
