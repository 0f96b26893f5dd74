package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vigil/internal/market"
	"vigil/internal/store"
	"vigil/internal/ws"
)

// Response represents a standard API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// getState serves the current snapshot, derived metrics and warmup
// status for one instrument.
func (s *Server) getState(c *gin.Context) {
	exchange := c.Param("exchange")
	instrument := c.Param("instrument")

	if s.deps.Snapshots == nil {
		fail(c, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}

	snap, err := s.deps.Snapshots.GetSnapshot(c.Request.Context(), exchange, instrument)
	if err != nil {
		s.log.WithError(err).Warnf("snapshot read failed for %s/%s", exchange, instrument)
		fail(c, http.StatusBadGateway, "snapshot read failed")
		return
	}
	if snap == nil {
		fail(c, http.StatusNotFound, "no snapshot for instrument")
		return
	}

	payload := ws.StatePayload{
		Snapshot: snap,
		Metrics:  market.Derive(snap, s.cfg.Broadcast.DepthLevels),
	}
	if s.deps.ZScores != nil {
		status, err := s.deps.ZScores.Status(c.Request.Context(), exchange, instrument, s.cfg.Broadcast.WarmupMetric)
		if err != nil {
			s.log.WithError(err).Warnf("zscore read failed for %s/%s", exchange, instrument)
		} else {
			payload.Warmup = &status
		}
	}
	ok(c, payload)
}

// getAlerts serves active alerts by default, or a filtered historical
// listing with ?history=true.
func (s *Server) getAlerts(c *gin.Context) {
	if s.deps.Alerts == nil {
		fail(c, http.StatusServiceUnavailable, "alert store unavailable")
		return
	}

	var (
		alerts []market.Alert
		err    error
	)
	if c.Query("history") == "true" {
		filter := store.AlertFilter{
			Exchange:   c.Query("exchange"),
			Instrument: c.Query("instrument"),
			Priority:   market.AlertPriority(c.Query("priority")),
		}
		if v := c.Query("since"); v != "" {
			t, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				fail(c, http.StatusBadRequest, "invalid since timestamp")
				return
			}
			filter.Since = t
		}
		if v := c.Query("until"); v != "" {
			t, perr := time.Parse(time.RFC3339, v)
			if perr != nil {
				fail(c, http.StatusBadRequest, "invalid until timestamp")
				return
			}
			filter.Until = t
		}
		if v := c.Query("limit"); v != "" {
			n, perr := strconv.Atoi(v)
			if perr != nil || n < 0 {
				fail(c, http.StatusBadRequest, "invalid limit")
				return
			}
			filter.Limit = n
		}
		alerts, err = s.deps.Alerts.ListAlerts(c.Request.Context(), filter)
	} else {
		alerts, err = s.deps.Alerts.ListActiveAlerts(c.Request.Context())
	}
	if err != nil {
		s.log.WithError(err).Warn("alert read failed")
		fail(c, http.StatusBadGateway, "alert read failed")
		return
	}
	if alerts == nil {
		alerts = []market.Alert{}
	}

	ok(c, ws.AlertsPayload{Alerts: alerts, Counts: market.CountAlerts(alerts)})
}

// getHealth serves the health record of every known exchange feed.
func (s *Server) getHealth(c *gin.Context) {
	if s.deps.Health == nil {
		fail(c, http.StatusServiceUnavailable, "health store unavailable")
		return
	}

	health, err := s.deps.Health.GetAllHealth(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("health read failed")
		fail(c, http.StatusBadGateway, "health read failed")
		return
	}
	ok(c, ws.HealthPayload{Exchanges: health})
}
