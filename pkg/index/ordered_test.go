package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/index"
)

func TestOrderedIndex_SingleFieldRange(t *testing.T) {
	t.Parallel()

	o := index.NewOrderedIndex("age_1", []string{"age"}, false)

	ids := []struct {
		id  string
		age int64
	}{
		{"1", 10}, {"2", 20}, {"3", 30}, {"4", 40},
	}

	for _, e := range ids {
		id := newTextID(t, e.id)
		require.NoError(t, o.OnInsert(id, docWithField("age", document.Int(e.age))))
	}

	got := o.FindRange(nil, document.Int(20), document.Int(30), true, true)
	require.Len(t, got, 2)

	got = o.FindRange(nil, document.Int(20), document.Int(30), false, true)
	require.Len(t, got, 1)

	got = o.FindRange(nil, nil, document.Int(20), true, true)
	require.Len(t, got, 2)
}

func TestOrderedIndex_CompoundPrefixEqualityThenRange(t *testing.T) {
	t.Parallel()

	o := index.NewOrderedIndex("tenant_age_1", []string{"tenant", "age"}, false)

	insert := func(idStr, tenant string, age int64) {
		doc := document.New()
		doc.Set("tenant", document.Text(tenant))
		doc.Set("age", document.Int(age))
		require.NoError(t, o.OnInsert(newTextID(t, idStr), doc))
	}

	insert("1", "acme", 10)
	insert("2", "acme", 20)
	insert("3", "other", 5)

	got := o.FindRange([]document.Value{document.Text("acme")}, document.Int(15), nil, true, true)
	require.Len(t, got, 1)
	require.Equal(t, "2", got[0].String())

	eq := o.FindEquals([]document.Value{document.Text("acme"), document.Int(10)})
	require.Len(t, eq, 1)
	require.Equal(t, "1", eq[0].String())
}

func TestOrderedIndex_UniqueRejectsDuplicateKey(t *testing.T) {
	t.Parallel()

	o := index.NewOrderedIndex("sku_1", []string{"sku"}, true)

	require.NoError(t, o.OnInsert(newTextID(t, "1"), docWithField("sku", document.Text("X1"))))
	err := o.OnInsert(newTextID(t, "2"), docWithField("sku", document.Text("X1")))
	require.Error(t, err)
}

func TestOrderedIndex_DeleteRemovesKeyEntirely(t *testing.T) {
	t.Parallel()

	o := index.NewOrderedIndex("age_1", []string{"age"}, false)
	id := newTextID(t, "1")
	doc := docWithField("age", document.Int(5))

	require.NoError(t, o.OnInsert(id, doc))
	require.NoError(t, o.OnDelete(id, doc))

	require.Empty(t, o.FindEquals([]document.Value{document.Int(5)}))
}
