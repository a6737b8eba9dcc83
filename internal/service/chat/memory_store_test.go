package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendRequiresSession(t *testing.T) {
	store := NewMemoryStore(0)
	err := store.Append(context.Background(), "missing", "User: hi")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreCreateOrResetReplacesTranscript(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	_, err := store.CreateOrReset(ctx, "c", "Zoro", "prime-1")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "c", "User: hi"))

	session, err := store.CreateOrReset(ctx, "c", "Sanji", "prime-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"prime-2"}, session.Transcript)

	got, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "Sanji", got.CharacterName)
	assert.Equal(t, "prime-2", got.PrimingLine())
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_, err := store.CreateOrReset(ctx, "c", "Zoro", "prime")
	require.NoError(t, err)

	got, err := store.Get(ctx, "c")
	require.NoError(t, err)
	got.Transcript[0] = "tampered"

	again, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "prime", again.Transcript[0])
}

func TestMemoryStoreRejectsEmptyInput(t *testing.T) {
	store := NewMemoryStore(0)
	_, err := store.CreateOrReset(context.Background(), "", "Zoro", "prime")
	assert.Error(t, err)
	_, err = store.CreateOrReset(context.Background(), "c", "Zoro", "")
	assert.Error(t, err)
}

func TestMemoryStoreExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.CreateOrReset(ctx, "old", "Zoro", "prime")
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = store.CreateOrReset(ctx, "fresh", "Nami", "prime")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "old", "User: still here"))
	assert.Equal(t, 2, store.Len())

	now = now.Add(61 * time.Second)
	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Append(ctx, "fresh", "User: late"), ErrSessionNotFound)
	assert.Equal(t, 0, store.Len())

	assert.Equal(t, 2, store.Sweep(now))
	assert.Equal(t, 0, store.Sweep(now))
}

func TestMemoryStoreWithoutTTLNeverSweeps(t *testing.T) {
	store := NewMemoryStore(0)
	_, err := store.CreateOrReset(context.Background(), "c", "Zoro", "prime")
	require.NoError(t, err)

	assert.Equal(t, 0, store.Sweep(time.Now().Add(1000*time.Hour)))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- store.Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
