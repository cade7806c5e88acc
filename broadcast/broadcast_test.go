package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func TestHubSkipsSender(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Join(0)
	b := hub.Join(0)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	var ra, rb recorder
	_, err := a.Subscribe(ra.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(rb.handle)
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), Message{Kind: KindLogout, Reason: "user"}))

	require.Eventually(t, func() bool { return len(rb.snapshot()) == 1 }, time.Second, time.Millisecond)
	got := rb.snapshot()[0]
	require.Equal(t, KindLogout, got.Kind)
	require.Equal(t, a.ID(), got.Origin)

	time.Sleep(10 * time.Millisecond)
	require.Empty(t, ra.snapshot())
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Join(0)
	b := hub.Join(0)
	require.Equal(t, 2, hub.Peers())

	var rb recorder
	unsub, err := b.Subscribe(rb.handle)
	require.NoError(t, err)
	unsub()
	unsub()

	require.NoError(t, a.Publish(context.Background(), Message{Kind: KindDataUpdated, Topic: "agents"}))
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, rb.snapshot())

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	require.Equal(t, 1, hub.Peers())
	require.ErrorIs(t, b.Publish(context.Background(), Message{}), ErrClosed)
	_, err = b.Subscribe(rb.handle)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, a.Close())
}

func TestHubHandlerPanicDoesNotStopDelivery(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Join(0)
	b := hub.Join(0)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	var rb recorder
	_, _ = b.Subscribe(func(Message) { panic("boom") })
	_, _ = b.Subscribe(rb.handle)

	require.NoError(t, a.Publish(context.Background(), Message{Kind: KindSessionExpired}))
	require.Eventually(t, func() bool { return len(rb.snapshot()) == 1 }, time.Second, time.Millisecond)
}

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBroadcasterRelaysBetweenPeers(t *testing.T) {
	client := newRedis(t)
	ctx := context.Background()

	a, err := NewRedisBroadcaster(ctx, client, "", nil)
	require.NoError(t, err)
	b, err := NewRedisBroadcaster(ctx, client, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	require.Equal(t, DefaultChannel, a.Channel())

	var ra, rb recorder
	_, err = a.Subscribe(ra.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(rb.handle)
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, Message{Kind: KindDataUpdated, Topic: "kb", At: 42}))

	require.Eventually(t, func() bool { return len(rb.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	got := rb.snapshot()[0]
	require.Equal(t, "kb", got.Topic)
	require.Equal(t, int64(42), got.At)
	require.Equal(t, a.ID(), got.Origin)
	require.Empty(t, ra.snapshot())
}

func TestRedisBroadcasterClose(t *testing.T) {
	client := newRedis(t)
	b, err := NewRedisBroadcaster(context.Background(), client, "sync-test", nil)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Publish(context.Background(), Message{}), ErrClosed)
}
