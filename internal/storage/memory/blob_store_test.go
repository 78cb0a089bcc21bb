package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"kind":"beacon"}` + "\n")
	uri, err := store.PutObject(context.Background(), "dt=2026-03-14/a.ndjson", "application/x-ndjson", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://dt=2026-03-14/a.ndjson", uri)

	payload[0] = 'X'
	stored, ok := store.Object("dt=2026-03-14/a.ndjson")
	require.True(t, ok)
	require.Equal(t, byte('{'), stored[0])

	stored[0] = 'Y'
	again, _ := store.Object("dt=2026-03-14/a.ndjson")
	require.Equal(t, byte('{'), again[0])
	require.Equal(t, "application/x-ndjson", store.ContentType("dt=2026-03-14/a.ndjson"))
	require.Equal(t, []string{"dt=2026-03-14/a.ndjson"}, store.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)
}
