package index_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/docid"
	"github.com/minileaf/minileaf/pkg/document"
	"github.com/minileaf/minileaf/pkg/index"
)

func TestTTLIndex_ExpiresPastDocuments(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var expired []string

	ttl := index.NewTTLIndex("expireAt_1", "expireAt", 0, func(id docid.ID) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, id.String())
	})
	defer ttl.Drop()

	id := newTextID(t, "1")
	doc := docWithField("expireAt", document.Timestamp(time.Now().Add(-time.Hour)))
	require.NoError(t, ttl.OnInsert(id, doc))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(expired) == 1 && expired[0] == "1"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestTTLIndex_DeleteCancelsPendingExpiry(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var expired []string

	ttl := index.NewTTLIndex("expireAt_1", "expireAt", 0, func(id docid.ID) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, id.String())
	})
	defer ttl.Drop()

	id := newTextID(t, "1")
	doc := docWithField("expireAt", document.Timestamp(time.Now().Add(time.Hour)))
	require.NoError(t, ttl.OnInsert(id, doc))
	require.NoError(t, ttl.OnDelete(id, doc))

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, expired)
}

func TestTTLIndex_DropStopsSweeper(t *testing.T) {
	t.Parallel()

	ttl := index.NewTTLIndex("expireAt_1", "expireAt", 0, func(docid.ID) {})
	require.NoError(t, ttl.Drop())
}
