package ws

import (
	"sync"
	"time"
)

// Conn is the transport-facing side of one client connection. Send must
// be safe for concurrent use; a failed send marks the connection dead
// and the caller removes it from the registry.
type Conn interface {
	ID() string
	Send(msg PushMessage) error
	Close() error
}

// Subscription holds one connection's current filters. Empty exchange
// or instrument sets are a wildcard; an empty channel set matches
// nothing (the client has not subscribed yet).
type Subscription struct {
	Channels    map[Channel]struct{}
	Exchanges   map[string]struct{}
	Instruments map[string]struct{}
	ConnectedAt time.Time
}

func newSubscription() *Subscription {
	return &Subscription{
		Channels:    make(map[Channel]struct{}),
		Exchanges:   make(map[string]struct{}),
		Instruments: make(map[string]struct{}),
		ConnectedAt: time.Now().UTC(),
	}
}

// Entry pairs a connection with a point-in-time copy of its
// subscription, taken while holding the registry lock.
type Entry struct {
	Conn Conn
	Sub  Subscription
}

// Registry maps live connections to their subscription filters. It is
// mutated by connection read loops and read by the broadcaster, so all
// access goes through the mutex; the broadcaster iterates over a
// Snapshot copy, never the live maps.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
	subs  map[string]*Subscription
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
		subs:  make(map[string]*Subscription),
	}
}

// Register adds a connection with empty filters. Registering the same
// connection twice resets its filters.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	r.subs[c.ID()] = newSubscription()
}

// Update replaces the connection's filters wholesale. Filters are never
// merged across subscribe commands. Unknown channel names are dropped.
// Returns false if the connection is not registered.
func (r *Registry) Update(id string, channels, exchanges, instruments []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return false
	}

	next := newSubscription()
	next.ConnectedAt = sub.ConnectedAt
	for _, c := range channels {
		if ch, ok := ParseChannel(c); ok {
			next.Channels[ch] = struct{}{}
		}
	}
	for _, e := range exchanges {
		next.Exchanges[e] = struct{}{}
	}
	for _, i := range instruments {
		next.Instruments[i] = struct{}{}
	}
	r.subs[id] = next
	return true
}

// Unregister removes a connection. Safe to call more than once.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	delete(r.subs, id)
}

// Matches reports whether the connection should receive a message on
// the given channel. Exchange and instrument are optional; pass "" when
// the attribute does not apply to the channel. An empty attribute set
// on the subscription matches any value.
func (r *Registry) Matches(id string, ch Channel, exchange, instrument string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return false
	}
	return matches(sub, ch, exchange, instrument)
}

func matches(sub *Subscription, ch Channel, exchange, instrument string) bool {
	if _, ok := sub.Channels[ch]; !ok {
		return false
	}
	if exchange != "" && len(sub.Exchanges) > 0 {
		if _, ok := sub.Exchanges[exchange]; !ok {
			return false
		}
	}
	if instrument != "" && len(sub.Instruments) > 0 {
		if _, ok := sub.Instruments[instrument]; !ok {
			return false
		}
	}
	return true
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot returns a stable copy of all connections and their filters.
// The broadcaster iterates over this copy so that connections closing
// mid-tick cannot race registry iteration.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.conns))
	for id, c := range r.conns {
		sub := r.subs[id]
		cp := Subscription{
			Channels:    make(map[Channel]struct{}, len(sub.Channels)),
			Exchanges:   make(map[string]struct{}, len(sub.Exchanges)),
			Instruments: make(map[string]struct{}, len(sub.Instruments)),
			ConnectedAt: sub.ConnectedAt,
		}
		for k := range sub.Channels {
			cp.Channels[k] = struct{}{}
		}
		for k := range sub.Exchanges {
			cp.Exchanges[k] = struct{}{}
		}
		for k := range sub.Instruments {
			cp.Instruments[k] = struct{}{}
		}
		entries = append(entries, Entry{Conn: c, Sub: cp})
	}
	return entries
}
