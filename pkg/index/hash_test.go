package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/index"
)

func TestHashIndex_EqualityLookup(t *testing.T) {
	t.Parallel()

	h := index.NewHashIndex("status_1", "status", false)

	id1 := newTextID(t, "1")
	id2 := newTextID(t, "2")

	require.NoError(t, h.OnInsert(id1, docWithField("status", document.Text("open"))))
	require.NoError(t, h.OnInsert(id2, docWithField("status", document.Text("closed"))))

	ids := h.FindEquals(document.Text("open"))
	require.Len(t, ids, 1)
	require.Equal(t, id1.String(), ids[0].String())

	require.Empty(t, h.FindEquals(document.Text("archived")))
}

func TestHashIndex_UniqueRejectsSecondDistinctID(t *testing.T) {
	t.Parallel()

	h := index.NewHashIndex("email_1", "email", true)

	id1 := newTextID(t, "1")
	id2 := newTextID(t, "2")

	require.NoError(t, h.OnInsert(id1, docWithField("email", document.Text("a@x.com"))))
	err := h.OnInsert(id2, docWithField("email", document.Text("a@x.com")))
	require.Error(t, err)
}

func TestHashIndex_UniqueAllowsReinsertOfSameID(t *testing.T) {
	t.Parallel()

	h := index.NewHashIndex("email_1", "email", true)
	id := newTextID(t, "1")

	require.NoError(t, h.OnInsert(id, docWithField("email", document.Text("a@x.com"))))
	require.NoError(t, h.OnInsert(id, docWithField("email", document.Text("a@x.com"))))
}

func TestHashIndex_UpdateMovesKeyAndDropsEmptyBucket(t *testing.T) {
	t.Parallel()

	h := index.NewHashIndex("status_1", "status", false)
	id := newTextID(t, "1")

	old := docWithField("status", document.Text("open"))
	newDoc := docWithField("status", document.Text("closed"))

	require.NoError(t, h.OnInsert(id, old))
	require.NoError(t, h.OnUpdate(id, old, newDoc))

	require.Empty(t, h.FindEquals(document.Text("open")))
	ids := h.FindEquals(document.Text("closed"))
	require.Len(t, ids, 1)
}

func TestHashIndex_MissingFieldIsSparse(t *testing.T) {
	t.Parallel()

	h := index.NewHashIndex("status_1", "status", false)
	id := newTextID(t, "1")

	require.NoError(t, h.OnInsert(id, document.New()))
	require.Empty(t, h.FindEquals(document.Text("")))
}
