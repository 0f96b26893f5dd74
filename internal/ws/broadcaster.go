package ws

import (
	"context"
	"sort"
	"time"

	"vigil/internal/logging"
	"vigil/internal/market"
	"vigil/internal/monitoring"
)

// SnapshotSource reads the current order book for one instrument.
// Returns nil without error when no snapshot exists yet.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, exchange, instrument string) (*market.OrderBookSnapshot, error)
}

// AlertSource lists currently unresolved alerts.
type AlertSource interface {
	ListActiveAlerts(ctx context.Context) ([]market.Alert, error)
}

// HealthSource reads the health record of every known exchange feed.
type HealthSource interface {
	GetAllHealth(ctx context.Context) (map[string]market.HealthRecord, error)
}

// Universe is the catalog of known exchanges and instruments. Wildcard
// subscriptions expand to it when the demand set is computed.
type Universe struct {
	Exchanges   []string
	Instruments []string
}

// BroadcasterConfig tunes the fan-out loop. Interval is the one
// user-visible cadence knob.
type BroadcasterConfig struct {
	Interval     time.Duration
	ReadTimeout  time.Duration
	DepthLevels  []int64
	WarmupMetric string
}

func (c *BroadcasterConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if len(c.DepthLevels) == 0 {
		c.DepthLevels = market.DefaultDepthLevels
	}
	if c.WarmupMetric == "" {
		c.WarmupMetric = "mid_price"
	}
}

// Broadcaster runs the periodic fan-out: once per tick it computes the
// demand set from the registry, pulls data through the deriver and
// z-score estimator, and pushes filtered messages to every matching
// connection. All store reads are per-item fallible; a failure skips
// that item for the tick and the next tick retries naturally.
type Broadcaster struct {
	registry  *Registry
	snapshots SnapshotSource
	alerts    AlertSource
	health    HealthSource
	zscores   *market.ZScoreEstimator
	universe  Universe
	cfg       BroadcasterConfig
	log       *logging.Logger
	metrics   *monitoring.Metrics
}

// NewBroadcaster wires the fan-out loop. metrics may be nil.
func NewBroadcaster(
	registry *Registry,
	snapshots SnapshotSource,
	alerts AlertSource,
	health HealthSource,
	zscores *market.ZScoreEstimator,
	universe Universe,
	cfg BroadcasterConfig,
	log *logging.Logger,
	metrics *monitoring.Metrics,
) *Broadcaster {
	cfg.applyDefaults()
	return &Broadcaster{
		registry:  registry,
		snapshots: snapshots,
		alerts:    alerts,
		health:    health,
		zscores:   zscores,
		universe:  universe,
		cfg:       cfg,
		log:       log.WithField("component", "broadcaster"),
		metrics:   metrics,
	}
}

// Run drives the tick loop until ctx is cancelled. No partial tick is
// resumed after cancellation.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	b.log.Infof("broadcaster started, interval %s", b.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopped")
			return
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Tick performs one fan-out pass. Exported so the HTTP layer and tests
// can drive the loop directly.
func (b *Broadcaster) Tick(ctx context.Context) {
	entries := b.registry.Snapshot()
	if len(entries) == 0 {
		return
	}

	start := time.Now()
	b.broadcastState(ctx, entries)
	b.broadcastAlerts(ctx, entries)
	b.broadcastHealth(ctx, entries)
	if b.metrics != nil {
		b.metrics.ObserveBroadcastTick(time.Since(start))
	}
}

type pair struct {
	exchange   string
	instrument string
}

// demandSet is the union of (exchange, instrument) pairs needed by
// state subscribers, with wildcard filters expanded to the universe.
func (b *Broadcaster) demandSet(entries []Entry) []pair {
	seen := make(map[pair]struct{})
	for _, e := range entries {
		if _, ok := e.Sub.Channels[ChannelState]; !ok {
			continue
		}
		exchanges := setOrDefault(e.Sub.Exchanges, b.universe.Exchanges)
		instruments := setOrDefault(e.Sub.Instruments, b.universe.Instruments)
		for _, ex := range exchanges {
			for _, inst := range instruments {
				seen[pair{ex, inst}] = struct{}{}
			}
		}
	}

	pairs := make([]pair, 0, len(seen))
	for p := range seen {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].exchange != pairs[j].exchange {
			return pairs[i].exchange < pairs[j].exchange
		}
		return pairs[i].instrument < pairs[j].instrument
	})
	return pairs
}

func setOrDefault(set map[string]struct{}, def []string) []string {
	if len(set) == 0 {
		return def
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (b *Broadcaster) broadcastState(ctx context.Context, entries []Entry) {
	if b.snapshots == nil {
		return
	}
	for _, p := range b.demandSet(entries) {
		readCtx, cancel := context.WithTimeout(ctx, b.cfg.ReadTimeout)
		snap, err := b.snapshots.GetSnapshot(readCtx, p.exchange, p.instrument)
		cancel()
		if err != nil {
			b.log.WithError(err).Warnf("snapshot read failed for %s/%s", p.exchange, p.instrument)
			if b.metrics != nil {
				b.metrics.RecordStoreReadError("snapshot")
			}
			continue
		}
		if snap == nil {
			continue
		}

		payload := StatePayload{
			Snapshot: snap,
			Metrics:  market.Derive(snap, b.cfg.DepthLevels),
		}
		if b.zscores != nil {
			readCtx, cancel := context.WithTimeout(ctx, b.cfg.ReadTimeout)
			status, err := b.zscores.Status(readCtx, p.exchange, p.instrument, b.cfg.WarmupMetric)
			cancel()
			if err != nil {
				b.log.WithError(err).Warnf("zscore read failed for %s/%s", p.exchange, p.instrument)
				if b.metrics != nil {
					b.metrics.RecordStoreReadError("samples")
				}
			} else {
				payload.Warmup = &status
			}
		}

		b.deliver(entries, PushMessage{
			Channel:    ChannelState,
			Timestamp:  time.Now().UTC(),
			Exchange:   p.exchange,
			Instrument: p.instrument,
			Data:       payload,
		})
	}
}

func (b *Broadcaster) broadcastAlerts(ctx context.Context, entries []Entry) {
	if b.alerts == nil || !anySubscribed(entries, ChannelAlerts) {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, b.cfg.ReadTimeout)
	alerts, err := b.alerts.ListActiveAlerts(readCtx)
	cancel()
	if err != nil {
		b.log.WithError(err).Warn("alert read failed")
		if b.metrics != nil {
			b.metrics.RecordStoreReadError("alerts")
		}
		return
	}
	if alerts == nil {
		alerts = []market.Alert{}
	}

	b.deliver(entries, PushMessage{
		Channel:   ChannelAlerts,
		Timestamp: time.Now().UTC(),
		Data:      AlertsPayload{Alerts: alerts, Counts: market.CountAlerts(alerts)},
	})
}

func (b *Broadcaster) broadcastHealth(ctx context.Context, entries []Entry) {
	if b.health == nil || !anySubscribed(entries, ChannelHealth) {
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, b.cfg.ReadTimeout)
	health, err := b.health.GetAllHealth(readCtx)
	cancel()
	if err != nil {
		b.log.WithError(err).Warn("health read failed")
		if b.metrics != nil {
			b.metrics.RecordStoreReadError("health")
		}
		return
	}

	b.deliver(entries, PushMessage{
		Channel:   ChannelHealth,
		Timestamp: time.Now().UTC(),
		Data:      HealthPayload{Exchanges: health},
	})
}

func anySubscribed(entries []Entry, ch Channel) bool {
	for _, e := range entries {
		if _, ok := e.Sub.Channels[ch]; ok {
			return true
		}
	}
	return false
}

// deliver sends one message to every matching connection. Matching goes
// through the live registry so connections dropped mid-tick are never
// sent to. A send failure removes only the failed connection.
func (b *Broadcaster) deliver(entries []Entry, msg PushMessage) {
	for _, e := range entries {
		id := e.Conn.ID()
		if !b.registry.Matches(id, msg.Channel, msg.Exchange, msg.Instrument) {
			continue
		}
		if err := e.Conn.Send(msg); err != nil {
			b.log.WithError(err).Warnf("send failed, dropping connection %s", id)
			b.registry.Unregister(id)
			e.Conn.Close()
			if b.metrics != nil {
				b.metrics.RecordSendFailure()
				b.metrics.SetActiveConnections(b.registry.Len())
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.RecordMessageSent(string(msg.Channel))
		}
	}
}
