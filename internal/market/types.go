package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel represents a single resting level of an order book side.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookSnapshot represents the current state of an order book as
// written by the upstream ingestion pipeline. Bids are sorted by price
// descending, asks ascending. The dashboard never mutates snapshots.
type OrderBookSnapshot struct {
	Exchange   string       `json:"exchange"`
	Instrument string       `json:"instrument"`
	Timestamp  time.Time    `json:"timestamp"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
}

// DepthBand holds the notional resting within one band around mid price.
type DepthBand struct {
	Bid   decimal.Decimal `json:"bid"`
	Ask   decimal.Decimal `json:"ask"`
	Total decimal.Decimal `json:"total"`
}

// DerivedMetrics holds the per-snapshot derived values. All fields are
// pointers: a nil field means the value is undefined for this snapshot
// (empty book side, zero notional) rather than an error.
type DerivedMetrics struct {
	BestBid   *decimal.Decimal     `json:"best_bid,omitempty"`
	BestAsk   *decimal.Decimal     `json:"best_ask,omitempty"`
	MidPrice  *decimal.Decimal     `json:"mid_price,omitempty"`
	SpreadBps *decimal.Decimal     `json:"spread_bps,omitempty"`
	Depth     map[int64]*DepthBand `json:"depth,omitempty"`
	Imbalance *decimal.Decimal     `json:"imbalance,omitempty"`
}

// WarmupStatus reports whether a rolling sample window has accumulated
// enough samples for a meaningful z-score. ZScore is a decimal string
// rounded to two places; it stays nil while warming up or when the
// window's standard deviation is at or below the variance floor.
type WarmupStatus struct {
	IsWarmedUp  bool    `json:"is_warmed_up"`
	SampleCount int     `json:"sample_count"`
	MinSamples  int     `json:"min_samples"`
	ZScore      *string `json:"zscore,omitempty"`
}

// AlertPriority is the operator-facing triage level of an alert.
type AlertPriority string

const (
	PriorityP1 AlertPriority = "P1"
	PriorityP2 AlertPriority = "P2"
	PriorityP3 AlertPriority = "P3"
)

// Alert is a surveillance alert produced by the upstream alert engine.
// Read-only here; DurationSeconds for unresolved alerts is computed at
// read time and never persisted.
type Alert struct {
	AlertID          string          `json:"alert_id"`
	AlertType        string          `json:"alert_type"`
	Priority         AlertPriority   `json:"priority"`
	Severity         string          `json:"severity"`
	Exchange         string          `json:"exchange"`
	Instrument       string          `json:"instrument"`
	TriggerMetric    string          `json:"trigger_metric"`
	TriggerValue     decimal.Decimal `json:"trigger_value"`
	TriggerThreshold decimal.Decimal `json:"trigger_threshold"`
	ZScoreValue      *string         `json:"zscore_value,omitempty"`
	ZScoreThreshold  *string         `json:"zscore_threshold,omitempty"`
	TriggeredAt      time.Time       `json:"triggered_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	DurationSeconds  float64         `json:"duration_seconds"`
}

// AlertCounts is the per-priority rollup attached to alert pushes.
type AlertCounts struct {
	P1    int `json:"P1"`
	P2    int `json:"P2"`
	P3    int `json:"P3"`
	Total int `json:"total"`
}

// CountAlerts rolls up a list of alerts by priority.
func CountAlerts(alerts []Alert) AlertCounts {
	var c AlertCounts
	for _, a := range alerts {
		switch a.Priority {
		case PriorityP1:
			c.P1++
		case PriorityP2:
			c.P2++
		case PriorityP3:
			c.P3++
		}
		c.Total++
	}
	return c
}

// HealthRecord describes the ingestion pipeline's view of one exchange feed.
type HealthRecord struct {
	Exchange         string    `json:"exchange"`
	Status           string    `json:"status"`
	LastMessageAt    time.Time `json:"last_message_at"`
	MessagesReceived int64     `json:"messages_received"`
	Reconnects       int       `json:"reconnects"`
	LagMs            int64     `json:"lag_ms"`
	UpdatedAt        time.Time `json:"updated_at"`
}
