package export

import (
	"context"
	"fmt"

	"FlowPilot/internal/config"
	"FlowPilot/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
    Timestamp    DateTime64(6),
    SwitchID     UInt64,
    SrcMAC       String,
    DstMAC       String,
    TrafficType  String,
    Confidence   Float64,
    Kind         String,
    Method       String,
    Priority     UInt16,
    Installed    UInt8,
    LatencyUs    UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SwitchID, Timestamp);
`

// ClickHouseWriter implements model.RecordWriter for ClickHouse.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects and ensures the records table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Connected to ClickHouse, flow_records table ready")
	return &ClickHouseWriter{conn: conn}, nil
}

// Connect opens a ClickHouse connection with LZ4 compression.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write batch-inserts the records.
func (w *ClickHouseWriter) Write(ctx context.Context, records []*model.FlowRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO flow_records")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, r := range records {
		installed := uint8(0)
		if r.Installed {
			installed = 1
		}
		if err := batch.Append(
			r.Timestamp,
			r.SwitchID,
			r.SrcMAC,
			r.DstMAC,
			string(r.TrafficType),
			r.Confidence,
			string(r.Kind),
			r.Method,
			r.Priority,
			installed,
			r.LatencyUs,
		); err != nil {
			return fmt.Errorf("failed to append record to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
