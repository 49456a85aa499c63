package websocket

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-relay/internal/domain"
	"secure-relay/internal/presence"
)

const testRoom = "secure_channel"

// fakeConn records payloads; capacity bounds how many it accepts.
type fakeConn struct {
	id       string
	capacity int

	mu         sync.Mutex
	received   [][]byte
	terminated bool
}

func newFakeConn(id string, capacity int) *fakeConn {
	return &fakeConn{id: id, capacity: capacity}
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated || len(f.received) >= f.capacity {
		return false
	}
	f.received = append(f.received, p)
	return true
}

func (f *fakeConn) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
}

func (f *fakeConn) payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, p := range f.received {
		out = append(out, string(p))
	}
	return out
}

func (f *fakeConn) isTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

func startHub(t *testing.T, registry *presence.Registry) *Hub {
	t.Helper()
	hub := NewHub(registry, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func register(r *presence.Registry, c *fakeConn, identity string, replayedThrough int64) {
	r.Add(presence.Entry{ConnID: c.id, Identity: identity, Room: testRoom, Conn: c, ReplayedThrough: replayedThrough})
}

func TestHub_InclusiveAndExclusiveDelivery(t *testing.T) {
	registry := presence.NewRegistry()
	alice := newFakeConn("a", 10)
	bob := newFakeConn("b", 10)
	register(registry, alice, "alice", 0)
	register(registry, bob, "bob", 0)
	hub := startHub(t, registry)

	require.True(t, hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("chat"), Mode: domain.DeliverInclusive, SenderConn: "a"}))
	require.True(t, hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("ping"), Mode: domain.DeliverExcludeSender, SenderConn: "a"}))

	assert.Eventually(t, func() bool { return len(bob.payloads()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"chat", "ping"}, bob.payloads())
	assert.Equal(t, []string{"chat"}, alice.payloads())
}

func TestHub_PreservesPublishOrder(t *testing.T) {
	registry := presence.NewRegistry()
	conns := []*fakeConn{newFakeConn("a", 1000), newFakeConn("b", 1000), newFakeConn("c", 1000)}
	for i, c := range conns {
		register(registry, c, fmt.Sprintf("u%d", i), 0)
	}
	hub := startHub(t, registry)

	want := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		p := fmt.Sprintf("m%d", i)
		want = append(want, p)
		require.True(t, hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte(p), MessageID: int64(i + 1)}))
	}

	for _, c := range conns {
		c := c
		assert.Eventually(t, func() bool { return len(c.payloads()) == 200 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, want, c.payloads())
	}
}

func TestHub_SkipsMessagesAlreadyReplayed(t *testing.T) {
	registry := presence.NewRegistry()
	joiner := newFakeConn("j", 10)
	register(registry, joiner, "bob", 5)
	hub := startHub(t, registry)

	hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("m5"), MessageID: 5})
	hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("m6"), MessageID: 6})
	hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("presence")})

	assert.Eventually(t, func() bool { return len(joiner.payloads()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m6", "presence"}, joiner.payloads())
}

func TestHub_SlowConsumerIsSeveredAlone(t *testing.T) {
	registry := presence.NewRegistry()
	slow := newFakeConn("slow", 1)
	healthy := newFakeConn("ok", 10)
	register(registry, slow, "alice", 0)
	register(registry, healthy, "bob", 0)
	hub := startHub(t, registry)

	hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("1")})
	hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("2")})

	assert.Eventually(t, func() bool { return len(healthy.payloads()) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, slow.isTerminated())
	assert.False(t, healthy.isTerminated())
	assert.Equal(t, []string{"1"}, slow.payloads())
}

func TestHub_ExplicitTargetsWithTerminate(t *testing.T) {
	registry := presence.NewRegistry()
	a := newFakeConn("a", 10)
	b := newFakeConn("b", 10)
	bystander := newFakeConn("c", 10)
	register(registry, bystander, "carol", 0)
	hub := startHub(t, registry)

	hub.Publish(domain.Delivery{
		Room:      testRoom,
		Payload:   []byte("force_disconnect"),
		Targets:   []domain.Connection{a, b},
		Terminate: true,
	})

	assert.Eventually(t, func() bool { return a.isTerminated() && b.isTerminated() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"force_disconnect"}, a.payloads())
	assert.Equal(t, []string{"force_disconnect"}, b.payloads())
	assert.Empty(t, bystander.payloads())
}

func TestHub_ShutdownTerminatesConnections(t *testing.T) {
	registry := presence.NewRegistry()
	c := newFakeConn("a", 10)
	register(registry, c, "alice", 0)

	hub := NewHub(registry, 4)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	assert.True(t, c.isTerminated())
	assert.Equal(t, 0, registry.Len())
	assert.False(t, hub.Publish(domain.Delivery{Room: testRoom, Payload: []byte("late")}))
}
