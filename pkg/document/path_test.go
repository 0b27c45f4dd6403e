package document_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/document"
)

func TestSetPath_AutoVivifiesIntermediates(t *testing.T) {
	t.Parallel()

	doc := document.New()
	document.SetPath(doc, "a.b.c", document.Text("hello"))

	v, ok := document.GetPath(doc, "a.b.c")
	require.True(t, ok)
	require.Equal(t, document.Text("hello"), v)
}

func TestSetPath_OverwritesNonObjectIntermediate(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("a", document.Text("not an object"))

	document.SetPath(doc, "a.b", document.Int(1))

	v, ok := document.GetPath(doc, "a.b")
	require.True(t, ok)
	require.Equal(t, document.Int(1), v)
}

func TestGetPath_ArrayIndex(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("items", document.Array{document.Int(10), document.Int(20), document.Int(30)})

	v, ok := document.GetPath(doc, "items.1")
	require.True(t, ok)
	require.Equal(t, document.Int(20), v)

	_, ok = document.GetPath(doc, "items.9")
	require.False(t, ok)
}

func TestGetPath_NestedArrayOfObjects(t *testing.T) {
	t.Parallel()

	inner := document.New()
	inner.Set("name", document.Text("bob"))

	doc := document.New()
	doc.Set("people", document.Array{document.NewObject(inner)})

	v, ok := document.GetPath(doc, "people.0.name")
	require.True(t, ok)
	require.Equal(t, document.Text("bob"), v)
}

func TestUnsetPath_LeavesIntermediatesIntact(t *testing.T) {
	t.Parallel()

	doc := document.New()
	document.SetPath(doc, "a.b.c", document.Text("x"))
	document.SetPath(doc, "a.b.d", document.Text("y"))

	document.UnsetPath(doc, "a.b.c")

	_, ok := document.GetPath(doc, "a.b.c")
	require.False(t, ok)

	v, ok := document.GetPath(doc, "a.b.d")
	require.True(t, ok)
	require.Equal(t, document.Text("y"), v)
}

func TestSetPath_NullIsExplicit(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("m", document.Text("x"))

	document.SetPath(doc, "m", document.Null{})

	v, ok := doc.Get("m")
	require.True(t, ok)
	require.Equal(t, document.Null{}, v)
}
