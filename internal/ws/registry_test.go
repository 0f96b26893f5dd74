package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   []PushMessage
	failed bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg PushMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return errors.New("connection reset")
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []PushMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PushMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestRegistryFreshConnectionMatchesNothing(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))

	// All attribute sets are empty wildcards, but no channel has been
	// subscribed, so nothing matches.
	assert.False(t, r.Matches("a", ChannelState, "binance", "BTC-USDT-PERP"))
	assert.False(t, r.Matches("a", ChannelAlerts, "", ""))
	assert.False(t, r.Matches("a", ChannelHealth, "", ""))
}

func TestRegistryWildcardFilters(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))
	require.True(t, r.Update("a", []string{"state"}, []string{}, []string{}))

	assert.True(t, r.Matches("a", ChannelState, "binance", "BTC-USDT-PERP"))
	assert.True(t, r.Matches("a", ChannelState, "okx", "ETH-USDT-PERP"))
	assert.False(t, r.Matches("a", ChannelAlerts, "", ""))
}

func TestRegistryExplicitFilters(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))
	r.Update("a", []string{"state", "alerts"}, []string{"binance"}, []string{"BTC-USDT-PERP"})

	assert.True(t, r.Matches("a", ChannelState, "binance", "BTC-USDT-PERP"))
	assert.False(t, r.Matches("a", ChannelState, "okx", "BTC-USDT-PERP"))
	assert.False(t, r.Matches("a", ChannelState, "binance", "ETH-USDT-PERP"))
	// Channel-only matches ignore unset attributes.
	assert.True(t, r.Matches("a", ChannelAlerts, "", ""))
}

func TestRegistryUpdateReplacesNotMerges(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))
	r.Update("a", []string{"state", "alerts"}, []string{"binance"}, []string{"BTC-USDT-PERP"})
	r.Update("a", []string{"health"}, []string{"okx"}, []string{})

	assert.False(t, r.Matches("a", ChannelState, "binance", "BTC-USDT-PERP"))
	assert.False(t, r.Matches("a", ChannelAlerts, "", ""))
	assert.True(t, r.Matches("a", ChannelHealth, "okx", ""))
	assert.False(t, r.Matches("a", ChannelHealth, "binance", ""))
}

func TestRegistryDropsUnknownChannels(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))
	r.Update("a", []string{"state", "bogus"}, nil, nil)

	assert.True(t, r.Matches("a", ChannelState, "", ""))
	assert.False(t, r.Matches("a", Channel("bogus"), "", ""))
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))
	r.Update("a", []string{"state"}, nil, nil)
	require.Equal(t, 1, r.Len())

	r.Unregister("a")
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Matches("a", ChannelState, "", ""))
	assert.False(t, r.Update("a", []string{"state"}, nil, nil))

	// Idempotent.
	r.Unregister("a")
	assert.Equal(t, 0, r.Len())
}

func TestRegistryReregisterResetsFilters(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn("a")
	r.Register(c)
	r.Update("a", []string{"state"}, nil, nil)

	r.Register(c)
	assert.False(t, r.Matches("a", ChannelState, "", ""))
}

func TestRegistrySnapshotIsStableCopy(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakeConn("a"))
	r.Update("a", []string{"state"}, []string{"binance"}, nil)

	entries := r.Snapshot()
	require.Len(t, entries, 1)

	// Later mutations must not leak into the copy.
	r.Update("a", []string{"health"}, nil, nil)
	_, hasState := entries[0].Sub.Channels[ChannelState]
	assert.True(t, hasState)
	assert.Contains(t, entries[0].Sub.Exchanges, "binance")
}
