package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/logging"
)

func newTestClient(t *testing.T, r *Registry) *Client {
	t.Helper()
	c := NewClient(nil, r, Defaults{
		Channels:    []string{"state"},
		Exchanges:   []string{"binance", "okx"},
		Instruments: []string{"BTC-USDT-PERP"},
	}, logging.NewNop(), nil)
	r.Register(c)
	return c
}

func drainReply(t *testing.T, c *Client) Reply {
	t.Helper()
	select {
	case data := <-c.send:
		var r Reply
		require.NoError(t, json.Unmarshal(data, &r))
		return r
	default:
		t.Fatal("no reply queued")
		return Reply{}
	}
}

func TestClientInvalidJSON(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t, r)

	c.handleCommand([]byte("{not json"))

	reply := drainReply(t, c)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "Invalid JSON", reply.Message)
	// The connection stays registered.
	assert.Equal(t, 1, r.Len())
}

func TestClientPing(t *testing.T) {
	c := newTestClient(t, NewRegistry())

	c.handleCommand([]byte(`{"action":"ping"}`))

	assert.Equal(t, "pong", drainReply(t, c).Type)
}

func TestClientUnknownAction(t *testing.T) {
	c := newTestClient(t, NewRegistry())

	c.handleCommand([]byte(`{"action":"shrug"}`))

	assert.Equal(t, "error", drainReply(t, c).Type)
}

func TestClientSubscribeDefaults(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t, r)

	c.handleCommand([]byte(`{"action":"subscribe"}`))

	reply := drainReply(t, c)
	assert.Equal(t, "subscribed", reply.Type)
	require.NotNil(t, reply.Channels)
	assert.Equal(t, []string{"state"}, *reply.Channels)
	require.NotNil(t, reply.Exchanges)
	assert.Equal(t, []string{"binance", "okx"}, *reply.Exchanges)
	require.NotNil(t, reply.Instruments)
	assert.Equal(t, []string{"BTC-USDT-PERP"}, *reply.Instruments)

	assert.True(t, r.Matches(c.ID(), ChannelState, "binance", "BTC-USDT-PERP"))
	assert.False(t, r.Matches(c.ID(), ChannelState, "bybit", "BTC-USDT-PERP"))
}

func TestClientSubscribeExplicitEmptyIsWildcard(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t, r)

	c.handleCommand([]byte(`{"action":"subscribe","channels":["state"],"exchanges":[],"instruments":[]}`))

	reply := drainReply(t, c)
	assert.Equal(t, "subscribed", reply.Type)
	require.NotNil(t, reply.Exchanges)
	assert.Empty(t, *reply.Exchanges)

	// Empty filter sets match any exchange and instrument.
	assert.True(t, r.Matches(c.ID(), ChannelState, "bybit", "DOGE-USDT-PERP"))
}

func TestClientSubscribeReplaces(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(t, r)

	c.handleCommand([]byte(`{"action":"subscribe","channels":["state","alerts"],"exchanges":["binance"],"instruments":["BTC-USDT-PERP"]}`))
	drainReply(t, c)
	c.handleCommand([]byte(`{"action":"subscribe","channels":["health"],"exchanges":[],"instruments":[]}`))
	drainReply(t, c)

	assert.False(t, r.Matches(c.ID(), ChannelState, "binance", "BTC-USDT-PERP"))
	assert.True(t, r.Matches(c.ID(), ChannelHealth, "", ""))
}
