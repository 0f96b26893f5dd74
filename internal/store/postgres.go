package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"vigil/internal/database"
	"vigil/internal/market"
)

// AlertStore reads surveillance alerts from postgres. The alert engine
// writes rows; this process only selects.
type AlertStore struct {
	db *database.DB
}

// NewAlertStore wraps an open connection.
func NewAlertStore(db *database.DB) *AlertStore {
	return &AlertStore{db: db}
}

// AlertFilter narrows historical alert queries. Zero values mean no
// filter on that attribute.
type AlertFilter struct {
	Exchange   string
	Instrument string
	Priority   market.AlertPriority
	Since      time.Time
	Until      time.Time
	Limit      int
}

const alertColumns = `alert_id, alert_type, priority, severity, exchange, instrument,
	trigger_metric, trigger_value, trigger_threshold, zscore_value, zscore_threshold,
	triggered_at, resolved_at`

// ListActiveAlerts returns all unresolved alerts, newest first.
// DurationSeconds is computed against the current clock, not persisted.
func (s *AlertStore) ListActiveAlerts(ctx context.Context) ([]market.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE resolved_at IS NULL ORDER BY triggered_at DESC`, alertColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListAlerts returns alerts matching the filter, resolved or not,
// newest first.
func (s *AlertStore) ListAlerts(ctx context.Context, f AlertFilter) ([]market.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE 1=1`, alertColumns)
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Exchange != "" {
		query += " AND exchange = " + arg(f.Exchange)
	}
	if f.Instrument != "" {
		query += " AND instrument = " + arg(f.Instrument)
	}
	if f.Priority != "" {
		query += " AND priority = " + arg(string(f.Priority))
	}
	if !f.Since.IsZero() {
		query += " AND triggered_at >= " + arg(f.Since)
	}
	if !f.Until.IsZero() {
		query += " AND triggered_at <= " + arg(f.Until)
	}
	query += " ORDER BY triggered_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]market.Alert, error) {
	now := time.Now().UTC()
	var alerts []market.Alert
	for rows.Next() {
		var (
			a                market.Alert
			triggerValue     string
			triggerThreshold string
			zscoreValue      sql.NullString
			zscoreThreshold  sql.NullString
			resolvedAt       sql.NullTime
		)
		if err := rows.Scan(
			&a.AlertID, &a.AlertType, &a.Priority, &a.Severity, &a.Exchange, &a.Instrument,
			&a.TriggerMetric, &triggerValue, &triggerThreshold, &zscoreValue, &zscoreThreshold,
			&a.TriggeredAt, &resolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}

		var err error
		if a.TriggerValue, err = decimal.NewFromString(triggerValue); err != nil {
			return nil, fmt.Errorf("parse trigger_value %q: %w", triggerValue, err)
		}
		if a.TriggerThreshold, err = decimal.NewFromString(triggerThreshold); err != nil {
			return nil, fmt.Errorf("parse trigger_threshold %q: %w", triggerThreshold, err)
		}
		if zscoreValue.Valid {
			a.ZScoreValue = &zscoreValue.String
		}
		if zscoreThreshold.Valid {
			a.ZScoreThreshold = &zscoreThreshold.String
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
			a.DurationSeconds = t.Sub(a.TriggeredAt).Seconds()
		} else {
			a.DurationSeconds = now.Sub(a.TriggeredAt).Seconds()
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
