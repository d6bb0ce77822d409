package catchup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records every message the broadcaster sends.
type fakeConn struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (f *fakeConn) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

func (f *fakeConn) connectReply(t *testing.T) ConnectReply {
	t.Helper()
	for _, m := range f.messages() {
		if r, ok := m.(ConnectReply); ok {
			return r
		}
	}
	t.Fatal("no connect reply received")
	return ConnectReply{}
}

func (f *fakeConn) updates() [][]string {
	var out [][]string
	for _, m := range f.messages() {
		if u, ok := m.(Update); ok {
			out = append(out, u.Update)
		}
	}
	return out
}

func TestFirstTimeIdentityReceivesGlobalSet(t *testing.T) {
	b := New()
	b.NotifyChanged([]string{"A", "B"})

	c1 := &fakeConn{}
	b.OnConnect(c1)
	b.Handshake(c1, "c1")

	assert.ElementsMatch(t, []string{"A", "B"}, c1.connectReply(t).Catchup)
}

func TestLiveClientReceivesImmediateUpdateAndGlobalGrows(t *testing.T) {
	b := New()
	b.NotifyChanged([]string{"A", "B"})

	c1 := &fakeConn{}
	b.OnConnect(c1)
	b.Handshake(c1, "c1")

	b.NotifyChanged([]string{"C"})

	updates := c1.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"C"}, updates[0])

	// A later first-time connector sees the grown global set.
	c2 := &fakeConn{}
	b.OnConnect(c2)
	b.Handshake(c2, "c2")
	assert.ElementsMatch(t, []string{"A", "B", "C"}, c2.connectReply(t).Catchup)
}

// Once an identity disconnected it is tracked independently: on reconnect
// it receives exactly the union of changes made while it was away, each at
// most once, and never falls back to the global set again.
func TestReconnectReplaysExactlyTheMissedUnion(t *testing.T) {
	b := New()
	b.NotifyChanged([]string{"A", "B"})

	c1 := &fakeConn{}
	b.OnConnect(c1)
	b.Handshake(c1, "x")
	b.OnDisconnect(c1)

	b.NotifyChanged([]string{"C"})
	b.NotifyChanged([]string{"D", "C"}) // duplicates collapse

	again := &fakeConn{}
	b.OnConnect(again)
	b.Handshake(again, "x")
	assert.ElementsMatch(t, []string{"C", "D"}, again.connectReply(t).Catchup)

	// The set was drained: an immediate reconnect starts clean.
	b.OnDisconnect(again)
	third := &fakeConn{}
	b.OnConnect(third)
	b.Handshake(third, "x")
	assert.Empty(t, third.connectReply(t).Catchup)
}

func TestTrackedIdentityStartsCleanAfterDisconnect(t *testing.T) {
	b := New()
	b.NotifyChanged([]string{"A"})

	c1 := &fakeConn{}
	b.OnConnect(c1)
	b.Handshake(c1, "x")
	b.OnDisconnect(c1)

	b.NotifyChanged([]string{"D"})

	// Property 8: only "D", not the already-drained global history.
	c2 := &fakeConn{}
	b.OnConnect(c2)
	b.Handshake(c2, "x")
	assert.Equal(t, []string{"D"}, c2.connectReply(t).Catchup)
}

func TestDuplicateHandshakeIgnored(t *testing.T) {
	b := New()
	b.NotifyChanged([]string{"A"})

	c1 := &fakeConn{}
	b.OnConnect(c1)
	b.Handshake(c1, "x")
	b.Handshake(c1, "y") // ignored: identity already bound

	replies := 0
	for _, m := range c1.messages() {
		if _, ok := m.(ConnectReply); ok {
			replies++
		}
	}
	assert.Equal(t, 1, replies)

	// "y" never became tracked; it still gets the global set on first contact.
	c2 := &fakeConn{}
	b.OnConnect(c2)
	b.Handshake(c2, "y")
	assert.Equal(t, []string{"A"}, c2.connectReply(t).Catchup)
}

func TestUnboundConnectionGetsNoCatchupOrHeartbeat(t *testing.T) {
	b := New(WithHeartbeatInterval(10 * time.Millisecond))
	c := &fakeConn{}
	b.OnConnect(c)
	b.Handshake(c, "") // empty identity: ignored

	time.Sleep(40 * time.Millisecond)
	for _, m := range c.messages() {
		_, isPing := m.(Ping)
		_, isReply := m.(ConnectReply)
		assert.False(t, isPing || isReply, "inert connection received %T", m)
	}
}

func TestHeartbeatPingsBoundConnection(t *testing.T) {
	b := New(WithHeartbeatInterval(5 * time.Millisecond))
	c := &fakeConn{}
	b.OnConnect(c)
	b.Handshake(c, "x")

	require.Eventually(t, func() bool {
		for _, m := range c.messages() {
			if _, ok := m.(Ping); ok {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// Heartbeat stops on disconnect.
	b.OnDisconnect(c)
	before := len(c.messages())
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, len(c.messages()), before+1)
}

func TestNotifyChangedToleratesEmptyAndPartialLists(t *testing.T) {
	b := New()
	c := &fakeConn{}
	b.OnConnect(c)
	b.Handshake(c, "x")

	b.NotifyChanged(nil)
	b.NotifyChanged([]string{})
	b.NotifyChanged([]string{"", ""})
	assert.Empty(t, c.updates())

	b.NotifyChanged([]string{"", "A"})
	updates := c.updates()
	require.Len(t, updates, 1)
	assert.Equal(t, []string{"A"}, updates[0])
}

func TestShutdownClosesConnections(t *testing.T) {
	b := New()
	c := &fakeConn{}
	b.OnConnect(c)
	b.Handshake(c, "x")
	b.Shutdown()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.closed)
}
