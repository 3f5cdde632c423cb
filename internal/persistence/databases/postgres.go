package databases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/logging"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
)

// Connect opens a pgxpool against cfg.URL (falling back to cfg.AsyncURL
// when URL is unset) and pings it before returning, so a misconfigured
// DSN fails fast at startup rather than on the first query.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = cfg.AsyncURL
	}
	if dsn == "" {
		return nil, errors.New("postgres: url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// PostgresStore is the single Postgres-backed implementation of
// capability.Store, MessageStore and recordsink.Store, following the
// teacher's convention of one pool, idempotent DDL issued from Go, and no
// separate migration tool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. Call Init once at startup to
// issue the idempotent DDL.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init issues the full idempotent schema for every table this store
// owns, grounded on the teacher's chat-store DDL pattern.
func (s *PostgresStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS models (
    name TEXT PRIMARY KEY,
    ranks INTEGER[] NOT NULL,
    capability DOUBLE PRECISION[] NOT NULL,
    max_tokens INTEGER NOT NULL DEFAULT 0,
    avg_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
    cost_per_1k DOUBLE PRECISION NOT NULL DEFAULT 0,
    stake DOUBLE PRECISION NOT NULL DEFAULT 0,
    trust_score DOUBLE PRECISION NOT NULL DEFAULT 50,
    verified BOOLEAN NOT NULL DEFAULT FALSE,
    violation_count INTEGER NOT NULL DEFAULT 0,
    registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    summary TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
    ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS routing_records (
    id BIGSERIAL PRIMARY KEY,
    model_name TEXT NOT NULL,
    query_hash TEXT NOT NULL,
    selected_rank INTEGER NOT NULL,
    block_number BIGINT NOT NULL,
    hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS performance_records (
    id BIGSERIAL PRIMARY KEY,
    model_name TEXT NOT NULL,
    promised_latency_ms DOUBLE PRECISION NOT NULL,
    observed_latency_ms DOUBLE PRECISION NOT NULL,
    success_rate DOUBLE PRECISION NOT NULL,
    block_number BIGINT NOT NULL,
    hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS violation_records (
    id BIGSERIAL PRIMARY KEY,
    model_name TEXT NOT NULL,
    severity TEXT NOT NULL,
    slash_amount DOUBLE PRECISION NOT NULL,
    block_number BIGINT NOT NULL,
    hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS routing_records_model_created_idx ON routing_records(model_name, created_at DESC);
CREATE INDEX IF NOT EXISTS performance_records_model_created_idx ON performance_records(model_name, created_at DESC);
CREATE INDEX IF NOT EXISTS violation_records_model_created_idx ON violation_records(model_name, created_at DESC);
`)
	return err
}

// --- capability.Store ---

func (s *PostgresStore) LoadAll(ctx context.Context) ([]capability.Record, error) {
	rows, err := s.pool.Query(ctx, `
SELECT name, ranks, capability, max_tokens, avg_latency_ms, cost_per_1k, stake,
       trust_score, verified, violation_count, registered_at
FROM models ORDER BY registered_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []capability.Record
	for rows.Next() {
		var rec capability.Record
		var ranks []int32
		var cap []float64
		var registeredAt time.Time
		if err := rows.Scan(&rec.Name, &ranks, &cap, &rec.MaxTokens, &rec.AvgLatencyMS, &rec.CostPer1K,
			&rec.Stake, &rec.TrustScore, &rec.Verified, &rec.ViolationCount, &registeredAt); err != nil {
			return nil, err
		}
		for i := 0; i < capability.Skills && i < len(ranks); i++ {
			rec.Ranks[i] = int(ranks[i])
		}
		for i := 0; i < capability.Skills && i < len(cap); i++ {
			rec.Capability[i] = cap[i]
		}
		rec.RegisteredAtUnix = registeredAt.Unix()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, rec capability.Record) error {
	ranks := make([]int32, capability.Skills)
	cap := make([]float64, capability.Skills)
	for i := 0; i < capability.Skills; i++ {
		ranks[i] = int32(rec.Ranks[i])
		cap[i] = rec.Capability[i]
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO models (name, ranks, capability, max_tokens, avg_latency_ms, cost_per_1k, stake,
                     trust_score, verified, violation_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (name) DO UPDATE SET
    ranks = EXCLUDED.ranks,
    capability = EXCLUDED.capability,
    max_tokens = EXCLUDED.max_tokens,
    avg_latency_ms = EXCLUDED.avg_latency_ms,
    cost_per_1k = EXCLUDED.cost_per_1k,
    stake = EXCLUDED.stake,
    trust_score = EXCLUDED.trust_score,
    verified = EXCLUDED.verified,
    violation_count = EXCLUDED.violation_count`,
		rec.Name, ranks, cap, rec.MaxTokens, rec.AvgLatencyMS, rec.CostPer1K, rec.Stake,
		rec.TrustScore, rec.Verified, rec.ViolationCount)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM models WHERE name = $1`, name)
	return err
}

// --- MessageStore ---

// NewConversation mints a conversation id and persists an empty row.
func (s *PostgresStore) NewConversation(ctx context.Context) (persistence.Conversation, error) {
	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
INSERT INTO conversations (id) VALUES ($1)
RETURNING id, summary, created_at, updated_at`, id)
	return scanConversation(row)
}

// LoadMessages returns all messages for conv, ordered oldest-first.
func (s *PostgresStore) LoadMessages(ctx context.Context, conv string) ([]persistence.Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, role, content, created_at
FROM messages WHERE conversation_id = $1
ORDER BY created_at ASC, id ASC`, conv)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []persistence.Message
	for rows.Next() {
		var m persistence.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// StoreMessagePair persists userMsg and aiMsg (each row carrying conv as
// its conversation_id) and touches the conversation's updated_at in a
// single transaction, per spec §4.5's store() contract. No separate link
// rows are written; there are no link tables.
func (s *PostgresStore) StoreMessagePair(ctx context.Context, conv string, userMsg, aiMsg persistence.Message) error {
	log := logging.FromContext(ctx)
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin store tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range []persistence.Message{userMsg, aiMsg} {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO messages (id, conversation_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)`, id, conv, m.Role, m.Content, createdAt); err != nil {
			return fmt.Errorf("postgres: insert message: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conv); err != nil {
		return fmt.Errorf("postgres: touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit store tx: %w", err)
	}
	log.Debug().Str("conversation_id", conv).Msg("stored message pair")
	return nil
}

// DeleteConversation deletes conv's messages and then conv itself in a
// single transaction, per spec §4.5's atomicity contract, returning
// persistence.ErrNotFound when no conversation row matched.
func (s *PostgresStore) DeleteConversation(ctx context.Context, conv string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conv); err != nil {
		return fmt.Errorf("postgres: delete messages: %w", err)
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conv)
	if err != nil {
		return fmt.Errorf("postgres: delete conversation: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return tx.Commit(ctx)
}

func scanConversation(row pgx.Row) (persistence.Conversation, error) {
	var c persistence.Conversation
	if err := row.Scan(&c.ID, &c.Summary, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return persistence.Conversation{}, err
	}
	return c, nil
}

// --- recordsink.Store ---

func (s *PostgresStore) NextBlockNumber(ctx context.Context) (int64, error) {
	row := s.pool.QueryRow(ctx, `
SELECT COALESCE(MAX(block_number), 0) FROM (
    SELECT block_number FROM routing_records
    UNION ALL SELECT block_number FROM performance_records
    UNION ALL SELECT block_number FROM violation_records
) all_blocks`)
	var max int64
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (s *PostgresStore) InsertRouting(ctx context.Context, rec recordsink.RoutingRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO routing_records (model_name, query_hash, selected_rank, block_number, hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ModelName, rec.QueryHash, rec.SelectedRank, rec.BlockNumber, rec.Hash, rec.Timestamp)
	return err
}

func (s *PostgresStore) InsertPerformance(ctx context.Context, rec recordsink.PerformanceRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO performance_records (model_name, promised_latency_ms, observed_latency_ms, success_rate, block_number, hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ModelName, rec.PromisedLatencyMS, rec.ObservedLatencyMS, rec.SuccessRate, rec.BlockNumber, rec.Hash, rec.Timestamp)
	return err
}

func (s *PostgresStore) InsertViolation(ctx context.Context, rec recordsink.ViolationRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO violation_records (model_name, severity, slash_amount, block_number, hash, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ModelName, rec.Severity, rec.SlashAmount, rec.BlockNumber, rec.Hash, rec.Timestamp)
	return err
}

func (s *PostgresStore) RecentRoutingCount(ctx context.Context, modelName string, limit int) (int, error) {
	row := s.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM (
    SELECT 1 FROM routing_records WHERE model_name = $1 ORDER BY created_at DESC LIMIT $2
) recent`, modelName, limit)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
