package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"vigil/internal/logging"
	"vigil/internal/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64
)

var (
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

// Defaults are substituted for omitted fields of a subscribe command.
type Defaults struct {
	Channels    []string
	Exchanges   []string
	Instruments []string
}

// Client wraps one websocket connection. It owns the read and write
// pumps; the broadcaster only sees the Conn interface. All writes go
// through a single writer goroutine so per-connection send order is
// issue order.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	defaults Defaults
	limiter  *rate.Limiter
	log      *logging.Logger
	metrics  *monitoring.Metrics

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded websocket connection. Incoming commands
// are rate limited to keep a misbehaving client from hammering the
// registry.
func NewClient(conn *websocket.Conn, registry *Registry, defaults Defaults, log *logging.Logger, metrics *monitoring.Metrics) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		registry: registry,
		defaults: defaults,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		log:      log.WithField("client_id", id),
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send enqueues one push message. It never blocks: a full buffer means
// the client is not keeping up and the connection is reported dead so
// the broadcaster drops it.
func (c *Client) Send(msg PushMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientClosed
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// Run registers the client and serves it until the peer disconnects.
// It blocks in the read loop; the caller's goroutine is the read pump.
func (c *Client) Run() {
	c.registry.Register(c)
	if c.metrics != nil {
		c.metrics.SetActiveConnections(c.registry.Len())
	}
	defer func() {
		c.registry.Unregister(c.id)
		c.Close()
		if c.metrics != nil {
			c.metrics.SetActiveConnections(c.registry.Len())
		}
	}()

	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Debug("read failed")
			}
			return
		}
		if !c.limiter.Allow() {
			c.reply(Reply{Type: "error", Message: "Rate limit exceeded"})
			continue
		}
		c.handleCommand(data)
	}
}

func (c *Client) handleCommand(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.reply(Reply{Type: "error", Message: "Invalid JSON"})
		return
	}

	switch cmd.Action {
	case "ping":
		c.reply(Reply{Type: "pong"})
	case "subscribe":
		// Omitted fields take defaults; explicit empty lists are a
		// wildcard and pass through as-is.
		channels := cmd.Channels
		if channels == nil {
			channels = c.defaults.Channels
		}
		exchanges := cmd.Exchanges
		if exchanges == nil {
			exchanges = c.defaults.Exchanges
		}
		instruments := cmd.Instruments
		if instruments == nil {
			instruments = c.defaults.Instruments
		}
		c.registry.Update(c.id, channels, exchanges, instruments)
		c.reply(Reply{
			Type:        "subscribed",
			Channels:    echoList(channels),
			Exchanges:   echoList(exchanges),
			Instruments: echoList(instruments),
		})
	default:
		c.reply(Reply{Type: "error", Message: "Unknown action"})
	}
}

func (c *Client) reply(r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping reply")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func echoList(s []string) *[]string {
	if s == nil {
		s = []string{}
	}
	return &s
}
