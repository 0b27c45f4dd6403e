package update_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/update"
)

func TestApply_SetCreatesIntermediates(t *testing.T) {
	t.Parallel()

	doc := document.New()

	err := update.Apply(doc, update.Operations{
		Set: map[string]document.Value{"a.b.c": document.Text("x")},
	})
	require.NoError(t, err)

	v, ok := document.GetPath(doc, "a.b.c")
	require.True(t, ok)
	require.Equal(t, document.Text("x"), v)
}

func TestApply_SetNullIsExplicit(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("m", document.Text("x"))

	err := update.Apply(doc, update.Operations{
		Set: map[string]document.Value{"m": document.Null{}},
	})
	require.NoError(t, err)

	v, ok := doc.Get("m")
	require.True(t, ok)
	require.Equal(t, document.Null{}, v)
}

func TestApply_UnsetLeavesIntermediatesIntact(t *testing.T) {
	t.Parallel()

	doc := document.New()
	document.SetPath(doc, "a.b.c", document.Text("x"))
	document.SetPath(doc, "a.b.d", document.Text("y"))

	err := update.Apply(doc, update.Operations{
		Unset: map[string]document.Value{"a.b.c": document.Null{}},
	})
	require.NoError(t, err)

	_, ok := document.GetPath(doc, "a.b.c")
	require.False(t, ok)

	_, ok = document.GetPath(doc, "a.b")
	require.True(t, ok)
}

func TestApply_IncAbsentFieldTreatedAsZero(t *testing.T) {
	t.Parallel()

	doc := document.New()

	err := update.Apply(doc, update.Operations{
		Inc: map[string]document.Value{"count": document.Int(5)},
	})
	require.NoError(t, err)

	v, ok := doc.Get("count")
	require.True(t, ok)
	require.Equal(t, document.Int(5), v)
}

func TestApply_IncFloatWidensIntToFloat(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("count", document.Int(3))

	err := update.Apply(doc, update.Operations{
		Inc: map[string]document.Value{"count": document.Float(0.5)},
	})
	require.NoError(t, err)

	v, ok := doc.Get("count")
	require.True(t, ok)
	require.Equal(t, document.Float(3.5), v)
}

func TestApply_IncIntOnExistingFloatStaysFloat(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("count", document.Float(2.5))

	err := update.Apply(doc, update.Operations{
		Inc: map[string]document.Value{"count": document.Int(1)},
	})
	require.NoError(t, err)

	v, ok := doc.Get("count")
	require.True(t, ok)
	require.Equal(t, document.Float(3.5), v)
}

func TestApply_IncNonNumericLeafOverwrittenFromZero(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("count", document.Text("not a number"))

	err := update.Apply(doc, update.Operations{
		Inc: map[string]document.Value{"count": document.Int(7)},
	})
	require.NoError(t, err)

	v, ok := doc.Get("count")
	require.True(t, ok)
	require.Equal(t, document.Int(7), v)
}

func TestApply_OrderIsSetThenUnsetThenInc(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("a", document.Int(1))

	err := update.Apply(doc, update.Operations{
		Set:   map[string]document.Value{"a": document.Int(10)},
		Inc:   map[string]document.Value{"a": document.Int(5)},
		Unset: map[string]document.Value{"b": document.Null{}},
	})
	require.NoError(t, err)

	v, ok := doc.Get("a")
	require.True(t, ok)
	require.Equal(t, document.Int(15), v)
}
