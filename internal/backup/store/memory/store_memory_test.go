package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/backup"
	"warden/pkg/platform/sentinel"
)

func snap(id string, at time.Time) *backup.Snapshot {
	payload := []byte(`{"prefix":"!"}`)
	return &backup.Snapshot{ID: id, GuildID: "g1", TakenAt: at, Payload: payload, Checksum: backup.Checksum(payload)}
}

func TestSnapshotStore(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := NewInMemorySnapshotStore()

	_, err := store.Latest(ctx, "g1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, snap(id, t0.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, store.Save(ctx, snap("b", t0)), "save is idempotent per id")

	latest, err := store.Latest(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	list, err := store.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})

	t.Run("returned snapshots are copies", func(t *testing.T) {
		got, err := store.Get(ctx, "g1", "a")
		require.NoError(t, err)
		got.Payload[0] = 'X'
		again, err := store.Get(ctx, "g1", "a")
		require.NoError(t, err)
		assert.True(t, again.Verify())
	})

	t.Run("prune keeps newest", func(t *testing.T) {
		n, err := store.Prune(ctx, "g1", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = store.Get(ctx, "g1", "a")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		n, _ = store.Prune(ctx, "g1", 5)
		assert.Zero(t, n)
	})
}

func TestConfigStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryConfigStore()

	_, err := store.Read(ctx, "g1")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Write(ctx, "g1", backup.GuildConfig{Version: 3, Payload: []byte(`{}`)}))
	cfg, err := store.Read(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cfg.Version)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.Write(canceled, "g2", backup.GuildConfig{}), context.Canceled)

	guilds, _ := store.Guilds(ctx)
	assert.Equal(t, []string{"g1"}, guilds)
}
