package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func level(price, qty string) PriceLevel {
	return PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeriveReferenceBook(t *testing.T) {
	snap := &OrderBookSnapshot{
		Exchange:   "binance",
		Instrument: "BTC-USDT-PERP",
		Bids:       []PriceLevel{level("100", "1"), level("99", "2")},
		Asks:       []PriceLevel{level("101", "1"), level("102", "3")},
	}

	m := Derive(snap, nil)

	require.NotNil(t, m.MidPrice)
	assert.True(t, m.MidPrice.Equal(dec("100.5")), "mid = %s", m.MidPrice)

	require.NotNil(t, m.SpreadBps)
	assert.True(t, m.SpreadBps.Round(2).Equal(dec("99.50")), "spread = %s", m.SpreadBps)

	// The 5 bps bid floor is 100.5 * 0.9995 = 100.44975; the best bid
	// at 100 sits below it, so the band holds nothing on either side.
	band := m.Depth[5]
	require.NotNil(t, band)
	assert.True(t, band.Bid.IsZero(), "depth_5bps_bid = %s", band.Bid)
	assert.True(t, band.Ask.IsZero(), "depth_5bps_ask = %s", band.Ask)
	assert.True(t, band.Total.IsZero())

	// Bid notional 298, ask notional 407.
	require.NotNil(t, m.Imbalance)
	assert.True(t, m.Imbalance.Equal(dec("-109").Div(dec("705"))), "imbalance = %s", m.Imbalance)
}

func TestDeriveEmptySide(t *testing.T) {
	for name, snap := range map[string]*OrderBookSnapshot{
		"no bids":  {Asks: []PriceLevel{level("101", "1")}},
		"no asks":  {Bids: []PriceLevel{level("100", "1")}},
		"no sides": {},
	} {
		t.Run(name, func(t *testing.T) {
			m := Derive(snap, nil)
			assert.Nil(t, m.BestBid)
			assert.Nil(t, m.BestAsk)
			assert.Nil(t, m.MidPrice)
			assert.Nil(t, m.SpreadBps)
			assert.Nil(t, m.Imbalance)
			assert.Empty(t, m.Depth)
		})
	}
}

func TestDeriveNilSnapshot(t *testing.T) {
	m := Derive(nil, nil)
	assert.Nil(t, m.MidPrice)
	assert.Empty(t, m.Depth)
}

func TestDepthBandInclusiveEdge(t *testing.T) {
	// Mid is 100; at 100 bps the bid floor is exactly 99 and the ask
	// ceiling exactly 101, both of which must be included.
	snap := &OrderBookSnapshot{
		Bids: []PriceLevel{level("99", "2"), level("98.99", "5")},
		Asks: []PriceLevel{level("101", "3"), level("101.01", "5")},
	}

	m := Derive(snap, []int64{100})
	band := m.Depth[100]
	require.NotNil(t, band)
	assert.True(t, band.Bid.Equal(dec("198")), "bid depth = %s", band.Bid)
	assert.True(t, band.Ask.Equal(dec("303")), "ask depth = %s", band.Ask)
	assert.True(t, band.Total.Equal(dec("501")))
}

func TestDepthMonotonicAcrossLevels(t *testing.T) {
	snap := &OrderBookSnapshot{
		Bids: []PriceLevel{
			level("100", "1"),
			level("99.95", "2"),
			level("99.90", "4"),
			level("99.80", "8"),
		},
		Asks: []PriceLevel{
			level("100.05", "1"),
			level("100.10", "2"),
			level("100.20", "4"),
			level("100.40", "8"),
		},
	}

	m := Derive(snap, nil)
	prev := dec("0")
	prevBid, prevAsk := dec("0"), dec("0")
	for _, lvl := range []int64{5, 10, 25} {
		band := m.Depth[lvl]
		require.NotNil(t, band)
		assert.True(t, band.Total.Equal(band.Bid.Add(band.Ask)), "total = bid + ask at %d bps", lvl)
		assert.True(t, band.Bid.GreaterThanOrEqual(prevBid), "bid depth shrank at %d bps", lvl)
		assert.True(t, band.Ask.GreaterThanOrEqual(prevAsk), "ask depth shrank at %d bps", lvl)
		assert.True(t, band.Total.GreaterThanOrEqual(prev), "total depth shrank at %d bps", lvl)
		prev, prevBid, prevAsk = band.Total, band.Bid, band.Ask
	}
}

func TestImbalanceBounds(t *testing.T) {
	t.Run("balanced book is exactly zero", func(t *testing.T) {
		snap := &OrderBookSnapshot{
			Bids: []PriceLevel{level("100", "2")},
			Asks: []PriceLevel{level("200", "1")},
		}
		m := Derive(snap, nil)
		require.NotNil(t, m.Imbalance)
		assert.True(t, m.Imbalance.IsZero(), "imbalance = %s", m.Imbalance)
	})

	t.Run("always within [-1, 1]", func(t *testing.T) {
		snap := &OrderBookSnapshot{
			Bids: []PriceLevel{level("100", "1000")},
			Asks: []PriceLevel{level("100.01", "0.001")},
		}
		m := Derive(snap, nil)
		require.NotNil(t, m.Imbalance)
		assert.True(t, m.Imbalance.LessThanOrEqual(dec("1")))
		assert.True(t, m.Imbalance.GreaterThanOrEqual(dec("-1")))
	})

	t.Run("zero notional on both sides is undefined", func(t *testing.T) {
		snap := &OrderBookSnapshot{
			Bids: []PriceLevel{level("100", "0")},
			Asks: []PriceLevel{level("101", "0")},
		}
		m := Derive(snap, nil)
		require.NotNil(t, m.MidPrice)
		assert.Nil(t, m.Imbalance)
	})
}
