package docid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
)

func TestObjectIDRegistry_GenerateParseRoundTrip(t *testing.T) {
	t.Parallel()

	reg, err := docid.NewObjectIDRegistry()
	require.NoError(t, err)

	id, err := reg.Generate()
	require.NoError(t, err)
	require.Equal(t, docid.VariantObjectID, id.Variant())
	require.Len(t, id.String(), 24)

	parsed, err := reg.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, 0, id.Compare(parsed))
}

func TestObjectIDRegistry_MonotonicCounter(t *testing.T) {
	t.Parallel()

	reg, err := docid.NewObjectIDRegistry()
	require.NoError(t, err)

	a, err := reg.Generate()
	require.NoError(t, err)
	b, err := reg.Generate()
	require.NoError(t, err)

	require.NotEqual(t, a.String(), b.String())
}

func TestUUIDRegistry_GenerateParseRoundTrip(t *testing.T) {
	t.Parallel()

	reg := docid.NewUUIDRegistry()

	id, err := reg.Generate()
	require.NoError(t, err)
	require.Equal(t, docid.VariantUUID, id.Variant())

	parsed, err := reg.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, 0, id.Compare(parsed))
}

func TestInt64Registry_StrictlyIncreasing(t *testing.T) {
	t.Parallel()

	reg := docid.NewInt64Registry(0)

	a, err := reg.Generate()
	require.NoError(t, err)
	b, err := reg.Generate()
	require.NoError(t, err)

	require.Equal(t, -1, a.Compare(b))
}

func TestInt64Registry_SeedResumesAfterMax(t *testing.T) {
	t.Parallel()

	reg := docid.NewInt64Registry(0)
	reg.Seed(100)

	id, err := reg.Generate()
	require.NoError(t, err)
	require.Equal(t, "101", id.String())
}

func TestInt64Registry_SeedIgnoresLowerValue(t *testing.T) {
	t.Parallel()

	reg := docid.NewInt64Registry(50)
	reg.Seed(10)

	id, err := reg.Generate()
	require.NoError(t, err)
	require.Equal(t, "51", id.String())
}

func TestExtractFrom_PrefersCanonicalFieldOverLegacy(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("_id", document.Text("1"))
	doc.Set("id", document.Text("2"))

	id, ok := docid.ExtractFrom(docid.VariantInt64, doc)
	require.True(t, ok)
	require.Equal(t, "1", id.String())
}

func TestExtractFrom_FallsBackToLegacyField(t *testing.T) {
	t.Parallel()

	doc := document.New()
	doc.Set("id", document.Text("42"))

	id, ok := docid.ExtractFrom(docid.VariantInt64, doc)
	require.True(t, ok)
	require.Equal(t, "42", id.String())
}

func TestWriteInto_WritesCanonicalField(t *testing.T) {
	t.Parallel()

	doc := document.New()
	reg := docid.NewInt64Registry(0)

	id, err := reg.Generate()
	require.NoError(t, err)

	docid.WriteInto(doc, id)

	v, ok := doc.Get("_id")
	require.True(t, ok)
	require.Equal(t, document.Text(id.String()), v)
}
