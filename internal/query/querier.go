// Package query serves historical classification data out of ClickHouse for
// the HTTP API.
package query

import (
	"context"
	"fmt"
	"time"

	"FlowPilot/internal/config"
	"FlowPilot/internal/export"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// TypeSummary aggregates outcomes for one traffic type.
type TypeSummary struct {
	TrafficType   string  `json:"traffic_type"`
	Count         uint64  `json:"count"`
	Installed     uint64  `json:"installed"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgLatencyUs  float64 `json:"avg_latency_us"`
}

// SwitchSummary aggregates outcomes for one switch.
type SwitchSummary struct {
	SwitchID  uint64 `json:"switch_id"`
	Count     uint64 `json:"count"`
	Installed uint64 `json:"installed"`
}

// Querier defines the read surface over recorded flow data.
type Querier interface {
	SummarizeByType(ctx context.Context, since time.Time) ([]TypeSummary, error)
	SummarizeBySwitch(ctx context.Context, since time.Time) ([]SwitchSummary, error)
}

// clickhouseQuerier implements Querier for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a querier over the records table.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := export.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &clickhouseQuerier{conn: conn}, nil
}

// SummarizeByType groups recorded outcomes by traffic type.
func (q *clickhouseQuerier) SummarizeByType(ctx context.Context, since time.Time) ([]TypeSummary, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT
			TrafficType,
			COUNT(*)            AS Count,
			SUM(Installed)      AS Installed,
			AVG(Confidence)     AS AvgConfidence,
			AVG(LatencyUs)      AS AvgLatencyUs
		FROM flow_records
		WHERE Timestamp >= ?
		GROUP BY TrafficType
		ORDER BY Count DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []TypeSummary
	for rows.Next() {
		var s TypeSummary
		if err := rows.Scan(&s.TrafficType, &s.Count, &s.Installed, &s.AvgConfidence, &s.AvgLatencyUs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SummarizeBySwitch groups recorded outcomes by switch.
func (q *clickhouseQuerier) SummarizeBySwitch(ctx context.Context, since time.Time) ([]SwitchSummary, error) {
	rows, err := q.conn.Query(ctx, `
		SELECT
			SwitchID,
			COUNT(*)       AS Count,
			SUM(Installed) AS Installed
		FROM flow_records
		WHERE Timestamp >= ?
		GROUP BY SwitchID
		ORDER BY SwitchID
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []SwitchSummary
	for rows.Next() {
		var s SwitchSummary
		if err := rows.Scan(&s.SwitchID, &s.Count, &s.Installed); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
