package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/index"
)

func newTextID(t *testing.T, s string) docid.ID {
	t.Helper()

	id, err := docid.Parse(docid.VariantText, s)
	require.NoError(t, err)

	return id
}

func docWithField(field string, v document.Value) *document.Document {
	doc := document.New()
	document.SetPath(doc, field, v)

	return doc
}

func TestManager_AddIndexRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	m := index.NewManager()
	require.NoError(t, m.AddIndex(index.NewPrimaryIndex()))
	require.Error(t, m.AddIndex(index.NewPrimaryIndex()))
}

func TestManager_DropIndexRejectsUnknownName(t *testing.T) {
	t.Parallel()

	m := index.NewManager()
	require.Error(t, m.DropIndex("nope"))
}

func TestManager_OnInsertFailureLeavesExistingEntryIntact(t *testing.T) {
	t.Parallel()

	m := index.NewManager()
	unique := index.NewHashIndex("email_1", "email", true)

	require.NoError(t, m.AddIndex(unique))

	id1 := newTextID(t, "1")
	id2 := newTextID(t, "2")

	doc1 := docWithField("email", document.Text("a@example.com"))
	doc2 := docWithField("email", document.Text("a@example.com"))

	require.NoError(t, m.OnInsert(id1, doc1))
	err := m.OnInsert(id2, doc2)
	require.Error(t, err)

	// The first document's entry must still be intact; the duplicate must
	// not have been left behind by the failed insert.
	ids := unique.FindEquals(document.Text("a@example.com"))
	require.Len(t, ids, 1)
	require.Equal(t, id1.String(), ids[0].String())
}

func TestManager_OnDeleteIsBestEffortAcrossAllIndexes(t *testing.T) {
	t.Parallel()

	m := index.NewManager()
	h1 := index.NewHashIndex("a_1", "a", false)
	h2 := index.NewHashIndex("b_1", "b", false)

	require.NoError(t, m.AddIndex(h1))
	require.NoError(t, m.AddIndex(h2))

	id := newTextID(t, "1")
	doc := document.New()
	doc.Set("a", document.Text("x"))
	doc.Set("b", document.Text("y"))

	require.NoError(t, m.OnInsert(id, doc))
	require.NoError(t, m.OnDelete(id, doc))

	require.Empty(t, h1.FindEquals(document.Text("x")))
	require.Empty(t, h2.FindEquals(document.Text("y")))
}

func TestPrimaryIndex_ReinsertingSameIDIsNoop(t *testing.T) {
	t.Parallel()

	p := index.NewPrimaryIndex()
	id := newTextID(t, "1")

	require.NoError(t, p.OnInsert(id, nil))
	require.NoError(t, p.OnInsert(id, nil))
	require.True(t, p.Contains(id))
	require.Equal(t, 1, p.Len())
}

func TestPrimaryIndex_DropIsRejected(t *testing.T) {
	t.Parallel()

	p := index.NewPrimaryIndex()
	// The primary index cannot be dropped: Drop() always returns an error.
	require.Error(t, p.Drop())
}
