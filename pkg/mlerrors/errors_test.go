package mlerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/mlerrors"
)

func TestNew_IsSentinel(t *testing.T) {
	t.Parallel()

	err := mlerrors.New(mlerrors.KindDuplicateKey, "_id already exists", mlerrors.WithCollection("users"), mlerrors.WithDocumentID("42"))

	require.True(t, errors.Is(err, mlerrors.ErrDuplicateKey))
	require.False(t, errors.Is(err, mlerrors.ErrIndexNotFound))

	var mlErr *mlerrors.Error
	require.True(t, errors.As(err, &mlErr))
	require.Equal(t, mlerrors.KindDuplicateKey, mlErr.Kind)
	require.Equal(t, "users", mlErr.Collection)
	require.Equal(t, "42", mlErr.DocumentID)
	require.Contains(t, err.Error(), "collection=users")
	require.Contains(t, err.Error(), "doc_id=42")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()

	require.NoError(t, mlerrors.Wrap(nil))
}

func TestWrap_InheritsAndMergesContext(t *testing.T) {
	t.Parallel()

	inner := mlerrors.New(mlerrors.KindIndexNotFound, "no such index", mlerrors.WithIndex("by_age"))
	outer := mlerrors.Wrap(inner, mlerrors.WithCollection("users"))

	var mlErr *mlerrors.Error
	require.True(t, errors.As(outer, &mlErr))
	require.Equal(t, "by_age", mlErr.Index)
	require.Equal(t, "users", mlErr.Collection)
	require.True(t, errors.Is(outer, mlerrors.ErrIndexNotFound))
}

func TestWrap_PlainErrorGetsNoSentinelKind(t *testing.T) {
	t.Parallel()

	err := mlerrors.Wrap(errors.New("boom"), mlerrors.WithCollection("users"))

	var mlErr *mlerrors.Error
	require.True(t, errors.As(err, &mlErr))
	require.Equal(t, mlerrors.KindUnknown, mlErr.Kind)
	require.Contains(t, err.Error(), "boom")
	require.Contains(t, err.Error(), "collection=users")
}
