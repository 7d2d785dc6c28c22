package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izahid19/ekart/internal/domain"
	"github.com/izahid19/ekart/internal/guestcart"
	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/logger"
)

func setupTestRedis(t *testing.T) (*Backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, 24*time.Hour), mr
}

// ---------------------------------------------------------------------------
// Raw backend
// ---------------------------------------------------------------------------

func TestBackend_Get_NotFound(t *testing.T) {
	b, _ := setupTestRedis(t)

	_, err := b.Get(context.Background(), "guestcart:missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestBackend_Set_AppliesTTL(t *testing.T) {
	b, mr := setupTestRedis(t)

	require.NoError(t, b.Set(context.Background(), "guestcart:s1", []byte(`[]`)))

	assert.True(t, mr.Exists("guestcart:s1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("guestcart:s1"))
}

func TestBackend_Set_RefreshesTTL(t *testing.T) {
	b, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "guestcart:s1", []byte(`[]`)))
	mr.FastForward(20 * time.Hour)
	require.NoError(t, b.Set(ctx, "guestcart:s1", []byte(`[]`)))

	assert.Equal(t, 24*time.Hour, mr.TTL("guestcart:s1"))
}

func TestBackend_ExpiredKeyIsAbsent(t *testing.T) {
	b, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "guestcart:s1", []byte(`[]`)))
	mr.FastForward(25 * time.Hour)

	_, err := b.Get(ctx, "guestcart:s1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestBackend_Delete(t *testing.T) {
	b, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("guestcart:s1", "[]"))

	require.NoError(t, b.Delete(ctx, "guestcart:s1"))

	assert.False(t, mr.Exists("guestcart:s1"))
}

func TestBackend_ConnectionError(t *testing.T) {
	b, mr := setupTestRedis(t)
	mr.Close()

	_, err := b.Get(context.Background(), "guestcart:s1")

	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Error(t, b.Ping(context.Background()))
}

// ---------------------------------------------------------------------------
// Through guestcart.Store
// ---------------------------------------------------------------------------

func TestStoreOnRedis_RoundTripAndCorruption(t *testing.T) {
	b, mr := setupTestRedis(t)
	ctx := context.Background()
	store := guestcart.NewStore(b, guestcart.SessionKey("s1"), logger.Discard())

	require.NoError(t, store.Save(ctx, []domain.LineItem{{ProductID: "A", Quantity: 2}}))
	items, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	require.NoError(t, mr.Set("guestcart:s1", "}}corrupt{{"))
	items, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
