package ws

import (
	"time"

	"vigil/internal/market"
)

// Channel identifies one push stream a client can subscribe to.
type Channel string

const (
	ChannelState  Channel = "state"
	ChannelAlerts Channel = "alerts"
	ChannelHealth Channel = "health"
)

// ParseChannel validates a client-supplied channel name.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelState, ChannelAlerts, ChannelHealth:
		return Channel(s), true
	}
	return "", false
}

// Command is a client-to-server message. Nil slices mean the field was
// omitted and defaults apply; empty non-nil slices are an explicit
// wildcard.
type Command struct {
	Action      string   `json:"action"`
	Channels    []string `json:"channels"`
	Exchanges   []string `json:"exchanges"`
	Instruments []string `json:"instruments"`
}

// Reply is a server response to a client command. The filter echoes
// are present only on subscribed replies; an explicit empty list must
// round-trip as [], so they use pointers rather than omitempty.
type Reply struct {
	Type        string    `json:"type"`
	Message     string    `json:"message,omitempty"`
	Channels    *[]string `json:"channels,omitempty"`
	Exchanges   *[]string `json:"exchanges,omitempty"`
	Instruments *[]string `json:"instruments,omitempty"`
}

// PushMessage is one server-to-client broadcast frame. Exchange and
// Instrument are set only on state messages.
type PushMessage struct {
	Channel    Channel     `json:"channel"`
	Timestamp  time.Time   `json:"timestamp"`
	Exchange   string      `json:"exchange,omitempty"`
	Instrument string      `json:"instrument,omitempty"`
	Data       interface{} `json:"data"`
}

// StatePayload is the data body of a state push.
type StatePayload struct {
	Snapshot *market.OrderBookSnapshot `json:"snapshot"`
	Metrics  market.DerivedMetrics     `json:"metrics"`
	Warmup   *market.WarmupStatus      `json:"warmup,omitempty"`
}

// AlertsPayload is the data body of an alerts push.
type AlertsPayload struct {
	Alerts []market.Alert     `json:"alerts"`
	Counts market.AlertCounts `json:"counts"`
}

// HealthPayload is the data body of a health push.
type HealthPayload struct {
	Exchanges map[string]market.HealthRecord `json:"exchanges"`
}
