package market

import "github.com/shopspring/decimal"

// DefaultDepthLevels are the depth bands, in basis points, computed for
// every snapshot.
var DefaultDepthLevels = []int64{5, 10, 25}

var (
	two         = decimal.NewFromInt(2)
	tenThousand = decimal.NewFromInt(10000)
)

// Derive computes spread, mid price, banded depth and imbalance from a
// snapshot. It is a total function: an empty book side yields absent
// fields, never an error. Results are computed fresh on every call and
// never cached.
func Derive(snap *OrderBookSnapshot, levels []int64) DerivedMetrics {
	var m DerivedMetrics
	if snap == nil {
		return m
	}
	if len(levels) == 0 {
		levels = DefaultDepthLevels
	}

	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return m
	}

	bestBid := snap.Bids[0].Price
	bestAsk := snap.Asks[0].Price
	mid := bestBid.Add(bestAsk).Div(two)
	spread := bestAsk.Sub(bestBid).Div(mid).Mul(tenThousand)

	m.BestBid = &bestBid
	m.BestAsk = &bestAsk
	m.MidPrice = &mid
	m.SpreadBps = &spread

	m.Depth = make(map[int64]*DepthBand, len(levels))
	for _, lvl := range levels {
		band := depthAt(snap, mid, lvl)
		m.Depth[lvl] = &band
	}

	if imb, ok := imbalance(snap); ok {
		m.Imbalance = &imb
	}
	return m
}

// depthAt sums notional within a one-sided band of lvl basis points
// around mid. The band edge is inclusive on both sides. Each level is
// computed independently over the full book, so wider bands always
// contain narrower ones.
func depthAt(snap *OrderBookSnapshot, mid decimal.Decimal, lvl int64) DepthBand {
	frac := decimal.NewFromInt(lvl).Div(tenThousand)
	bidFloor := mid.Mul(decimal.NewFromInt(1).Sub(frac))
	askCeil := mid.Mul(decimal.NewFromInt(1).Add(frac))

	var bid, ask decimal.Decimal
	for _, l := range snap.Bids {
		if l.Price.GreaterThanOrEqual(bidFloor) {
			bid = bid.Add(l.Price.Mul(l.Quantity))
		}
	}
	for _, l := range snap.Asks {
		if l.Price.LessThanOrEqual(askCeil) {
			ask = ask.Add(l.Price.Mul(l.Quantity))
		}
	}
	return DepthBand{Bid: bid, Ask: ask, Total: bid.Add(ask)}
}

// imbalance is (bid notional − ask notional) / (bid notional + ask
// notional) over all levels of each side. Undefined when both sides sum
// to zero notional.
func imbalance(snap *OrderBookSnapshot) (decimal.Decimal, bool) {
	var bid, ask decimal.Decimal
	for _, l := range snap.Bids {
		bid = bid.Add(l.Price.Mul(l.Quantity))
	}
	for _, l := range snap.Asks {
		ask = ask.Add(l.Price.Mul(l.Quantity))
	}
	total := bid.Add(ask)
	if total.IsZero() {
		return decimal.Decimal{}, false
	}
	return bid.Sub(ask).Div(total), true
}
