package recordsink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

// ClickHouseMirror appends routing/performance/violation records into a
// columnar analytics store alongside the durable Postgres write. It is
// best-effort: a mirror failure is logged, never returned to the caller,
// since the Postgres row is already the system of record.
type ClickHouseMirror struct {
	conn clickhouse.Conn
	db   string
}

// NewClickHouseMirror opens a connection and ensures the three mirror
// tables exist. Returns (nil, nil) when cfg.DSN is empty, so callers can
// treat the mirror as optional without a separate enabled flag.
func NewClickHouseMirror(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseMirror, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse mirror: parse dsn: %w", err)
	}
	if cfg.Database != "" {
		opts.Auth.Database = cfg.Database
	} else if opts.Auth.Database == "" {
		opts.Auth.Database = "router"
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("clickhouse mirror: open: %w", err)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db := opts.Auth.Database
	if err := conn.Exec(ctxTimeout, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db)); err != nil {
		return nil, fmt.Errorf("clickhouse mirror: create database %s: %w", db, err)
	}
	if err := ensureMirrorTables(ctxTimeout, conn, db); err != nil {
		return nil, err
	}

	return &ClickHouseMirror{conn: conn, db: db}, nil
}

func ensureMirrorTables(ctx context.Context, conn clickhouse.Conn, db string) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.routing_records (
	ModelName LowCardinality(String),
	QueryHash String,
	SelectedRank UInt8,
	BlockNumber Int64,
	Hash String,
	Timestamp DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (ModelName, Timestamp)
TTL toDate(Timestamp) + INTERVAL 90 DAY
SETTINGS index_granularity = 8192
`, db),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.performance_records (
	ModelName LowCardinality(String),
	PromisedLatencyMS Float64,
	ObservedLatencyMS Float64,
	SuccessRate Float64,
	BlockNumber Int64,
	Hash String,
	Timestamp DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (ModelName, Timestamp)
TTL toDate(Timestamp) + INTERVAL 90 DAY
SETTINGS index_granularity = 8192
`, db),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.violation_records (
	ModelName LowCardinality(String),
	Severity LowCardinality(String),
	SlashAmount Float64,
	BlockNumber Int64,
	Hash String,
	Timestamp DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (ModelName, Timestamp)
TTL toDate(Timestamp) + INTERVAL 90 DAY
SETTINGS index_granularity = 8192
`, db),
	}
	for _, stmt := range statements {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse mirror: create table: %w", err)
		}
	}
	return nil
}

// MirrorRouting inserts rec into the routing_records table.
func (m *ClickHouseMirror) MirrorRouting(ctx context.Context, rec RoutingRecord) {
	if m == nil {
		return
	}
	err := m.conn.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s.routing_records (ModelName, QueryHash, SelectedRank, BlockNumber, Hash, Timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		m.db,
	), rec.ModelName, rec.QueryHash, rec.SelectedRank, rec.BlockNumber, rec.Hash, rec.Timestamp)
	if err != nil {
		log.Warn().Err(err).Str("model", rec.ModelName).Msg("clickhouse mirror: insert routing record failed")
	}
}

// MirrorPerformance inserts rec into the performance_records table.
func (m *ClickHouseMirror) MirrorPerformance(ctx context.Context, rec PerformanceRecord) {
	if m == nil {
		return
	}
	err := m.conn.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s.performance_records (ModelName, PromisedLatencyMS, ObservedLatencyMS, SuccessRate, BlockNumber, Hash, Timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		m.db,
	), rec.ModelName, rec.PromisedLatencyMS, rec.ObservedLatencyMS, rec.SuccessRate, rec.BlockNumber, rec.Hash, rec.Timestamp)
	if err != nil {
		log.Warn().Err(err).Str("model", rec.ModelName).Msg("clickhouse mirror: insert performance record failed")
	}
}

// MirrorViolation inserts rec into the violation_records table.
func (m *ClickHouseMirror) MirrorViolation(ctx context.Context, rec ViolationRecord) {
	if m == nil {
		return
	}
	err := m.conn.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s.violation_records (ModelName, Severity, SlashAmount, BlockNumber, Hash, Timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		m.db,
	), rec.ModelName, rec.Severity, rec.SlashAmount, rec.BlockNumber, rec.Hash, rec.Timestamp)
	if err != nil {
		log.Warn().Err(err).Str("model", rec.ModelName).Msg("clickhouse mirror: insert violation record failed")
	}
}

// Close releases the underlying connection.
func (m *ClickHouseMirror) Close() error {
	if m == nil {
		return nil
	}
	return m.conn.Close()
}
