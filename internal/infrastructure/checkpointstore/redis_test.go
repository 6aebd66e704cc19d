package checkpointstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"PaperDigest/internal/checkpoint"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, nil), mr
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	cp := checkpoint.New("2026-08-29")
	cp.DocumentsFound = 5
	cp.TotalCostUSD = 0.42
	cp.LastDocumentKey = "2508.01234"

	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "2026-08-29")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, cp, loaded)
}

func TestLoadAbsentCheckpoint(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	loaded, err := store.Load(context.Background(), "2026-08-29")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestSaveSetsRetentionTTL(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, checkpoint.New("2026-08-29")))

	ttl := mr.TTL(checkpoint.Key("2026-08-29"))
	require.Equal(t, checkpoint.Retention, ttl)

	// After the retention window the record is allowed to vanish.
	mr.FastForward(checkpoint.Retention + time.Minute)
	loaded, err := store.Load(ctx, "2026-08-29")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadUnknownSchemaVersionFailsClosed(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	mr.Set(checkpoint.Key("2026-08-29"), `{"schemaVersion":99,"date":"2026-08-29","completed":true}`)

	loaded, err := store.Load(context.Background(), "2026-08-29")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadCorruptPayloadTreatedAsAbsent(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	mr.Set(checkpoint.Key("2026-08-29"), "{not json")

	loaded, err := store.Load(context.Background(), "2026-08-29")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestLoadConnectionFailure(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Load(context.Background(), "2026-08-29")
	require.Error(t, err)
}
