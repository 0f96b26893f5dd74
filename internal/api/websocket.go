package api

import (
	"github.com/gin-gonic/gin"

	"vigil/internal/ws"
)

// handleWebSocket upgrades the request and serves the client until it
// disconnects. The client registers itself with empty filters; pushes
// begin once it sends a subscribe command.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := ws.NewClient(conn, s.deps.Registry, ws.Defaults{
		Channels:    s.cfg.Subscribe.Channels,
		Exchanges:   s.cfg.Subscribe.Exchanges,
		Instruments: s.cfg.Subscribe.Instruments,
	}, s.deps.Log, s.deps.Metrics)

	client.Run()
}
