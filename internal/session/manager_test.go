package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/izahid19/ekart/internal/cartsync"
	"github.com/izahid19/ekart/internal/domain"
	"github.com/izahid19/ekart/internal/guestcart"
	"github.com/izahid19/ekart/internal/guestcart/memory"
	"github.com/izahid19/ekart/pkg/logger"
)

func newTestManager(t *testing.T, idle time.Duration) (*Manager, *atomic.Int32) {
	t.Helper()
	backend := memory.New()
	var built atomic.Int32
	factory := func(id string) *cartsync.Controller {
		built.Add(1)
		return cartsync.New(id, cartsync.Deps{
			Guest:  guestcart.NewStore(backend, guestcart.SessionKey(id), logger.Discard()),
			Logger: logger.Discard(),
		})
	}
	return NewManager(factory, idle, logger.Discard()), &built
}

func TestNewID_IsUUID(t *testing.T) {
	_, err := uuid.Parse(NewID())
	assert.NoError(t, err)
	assert.NotEqual(t, NewID(), NewID())
}

func TestGet_ReusesController(t *testing.T) {
	m, built := newTestManager(t, time.Minute)

	a := m.Get("s1")
	b := m.Get("s1")
	c := m.Get("s2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "s1", a.SessionID())
	assert.Equal(t, int32(2), built.Load())
	assert.Equal(t, 2, m.Len())
}

func TestLookup_DoesNotCreate(t *testing.T) {
	m, built := newTestManager(t, time.Minute)

	_, ok := m.Lookup("s1")
	assert.False(t, ok)
	assert.Zero(t, built.Load())

	m.Get("s1")
	ctrl, ok := m.Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", ctrl.SessionID())
}

func TestEvictIdle(t *testing.T) {
	m, _ := newTestManager(t, 10*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }

	m.Get("old")
	now = now.Add(8 * time.Minute)
	m.Get("fresh")
	now = now.Add(5 * time.Minute)

	assert.Equal(t, 1, m.evictIdle())
	_, ok := m.Lookup("old")
	assert.False(t, ok)
	_, ok = m.Lookup("fresh")
	assert.True(t, ok)
}

func TestRotate_MovesSessionToNewID(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)
	ctx := context.Background()

	_, err := m.Get("s1").AddItem(ctx, domain.Product{ID: "A", Name: "Kettle", Price: decimal.NewFromInt(20)})
	require.NoError(t, err)

	newID, next, err := m.Rotate(ctx, "s1")
	require.NoError(t, err)

	assert.NotEqual(t, "s1", newID)
	assert.Equal(t, newID, next.SessionID())
	require.Len(t, next.View().Cart.Items, 1)

	_, ok := m.Lookup("s1")
	assert.False(t, ok, "old session id should be forgotten")
	got, ok := m.Lookup(newID)
	require.True(t, ok)
	assert.Same(t, next, got)

	v, err := next.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Cart.Items, 1, "guest lines should be stored under the new id")

	v, err = m.Get("s1").Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.Cart.Items, "reusing the old id should start from an empty cart")
}

func TestRotate_FailureKeepsOldSession(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)
	old := m.Get("s1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := m.Rotate(ctx, "s1")

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Len())
	got, ok := m.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, old, got)
}

func TestGet_RefreshesLastSeen(t *testing.T) {
	m, _ := newTestManager(t, 10*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return now }

	m.Get("s1")
	now = now.Add(9 * time.Minute)
	m.Get("s1")
	now = now.Add(9 * time.Minute)

	assert.Zero(t, m.evictIdle())
	assert.Equal(t, 1, m.Len())
}

func TestRun_StopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t, 10*time.Millisecond)
	m.Get("s1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestGet_Concurrent(t *testing.T) {
	m, built := newTestManager(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Get("shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
}
