package document_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/document"
)

func TestCompare_NumericNormalization(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, document.Compare(document.Int(3), document.Float(3.0)))
	require.Equal(t, -1, document.Compare(document.Int(2), document.Float(3.0)))
	require.Equal(t, 1, document.Compare(document.Float(3.5), document.Int(3)))
}

func TestCompare_Timestamps(t *testing.T) {
	t.Parallel()

	t1 := document.Timestamp(time.Unix(1000, 0))
	t2 := document.Timestamp(time.Unix(2000, 0))

	require.Less(t, document.Compare(t1, t2), 0)
	require.Greater(t, document.Compare(t2, t1), 0)
	require.Equal(t, 0, document.Compare(t1, t1))
}

func TestCompare_DifferentKindsRankConsistently(t *testing.T) {
	t.Parallel()

	require.Less(t, document.Compare(document.Null{}, document.Bool(false)), 0)
	require.Less(t, document.Compare(document.Bool(true), document.Int(1)), 0)
}

func TestEqual_MissingComparesOnlyToNull(t *testing.T) {
	t.Parallel()

	require.True(t, document.Equal(nil, document.Null{}))
	require.False(t, document.Equal(nil, document.Int(0)))
}

func TestIsObjectIDLike(t *testing.T) {
	t.Parallel()

	require.True(t, document.IsObjectIDLike("0123456789abcdef01234567"))
	require.False(t, document.IsObjectIDLike("0123456789ABCDEF01234567"))
	require.False(t, document.IsObjectIDLike("too-short"))
}
