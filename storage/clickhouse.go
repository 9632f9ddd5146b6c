package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/thisisjab/sluice/entity"
)

type ClickHouseStorageConfig struct {
	Addr     []string `yaml:"addr"`
	Database string   `yaml:"database"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
}

// ClickHouseStorage mirrors accepted records into a ClickHouse table using
// batched inserts. It is a secondary sink: the severity files remain the
// system of record and mirror failures never block them.
type ClickHouseStorage struct {
	conn driver.Conn
	cfg  ClickHouseStorageConfig
}

func NewClickHouseStorage(cfg ClickHouseStorageConfig) (*ClickHouseStorage, error) {
	if len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("clickhouse mirror needs at least one address")
	}
	return &ClickHouseStorage{cfg: cfg}, nil
}

func setupClickHouseTables(ctx context.Context, conn driver.Conn) error {
	return conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS syslog_messages (
			id UUID,
			priority UInt8,
			facility LowCardinality(String),
			severity LowCardinality(String),
			timestamp String,
			hostname String,
			message String,
			source_ip String,
			received_at DateTime64(6),
			format LowCardinality(String),
			raw String
		)
		ENGINE = MergeTree
		ORDER BY (severity, received_at, id)
		PARTITION BY toYYYYMM(received_at)
	`)
}

func (s *ClickHouseStorage) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: s.cfg.Addr,
		Auth: clickhouse.Auth{
			Database: s.cfg.Database,
			Username: s.cfg.Username,
			Password: s.cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping the database: %w", err)
	}

	s.conn = conn

	if err := setupClickHouseTables(ctx, conn); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

func (s *ClickHouseStorage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// StoreBatch inserts a batch of records.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, msgs ...entity.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	batch, err := s.conn.PrepareBatch(ctx,
		"INSERT INTO syslog_messages (id, priority, facility, severity, timestamp, hostname, message, source_ip, received_at, format, raw)")
	if err != nil {
		return fmt.Errorf("couldn't prepare batch: %w", err)
	}

	for _, msg := range msgs {
		receivedAt, err := time.Parse(entity.ReceivedAtLayout, msg.ReceivedAt)
		if err != nil {
			// The pipeline stamps ReceivedAt itself, so this only trips on
			// hand-built records; fall back to insert time.
			receivedAt = time.Now().UTC()
		}

		err = batch.Append(uuid.New(), uint8(msg.Priority), msg.Facility, msg.Severity,
			msg.Timestamp, msg.Hostname, msg.Message, msg.SourceIP, receivedAt, msg.Format, msg.Raw)
		if err != nil {
			return fmt.Errorf("couldn't append record to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("couldn't send batch: %w", err)
	}

	return nil
}
