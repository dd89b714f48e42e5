package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hcsrelay/config"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	log "github.com/sirupsen/logrus"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS hcs_submissions (
	transaction_id        TEXT PRIMARY KEY,
	request_id            TEXT NOT NULL,
	topic_id              TEXT NOT NULL,
	consensus_timestamp   TEXT NULL,
	topic_sequence_number BIGINT NOT NULL DEFAULT 0,
	message_hash          TEXT NOT NULL,
	metadata              JSONB NOT NULL DEFAULT '{}'::jsonb,
	submitted_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hcs_submissions_topic ON hcs_submissions (topic_id, submitted_at DESC);
`

const insertSubmissionSQL = `
INSERT INTO hcs_submissions
	(transaction_id, request_id, topic_id, consensus_timestamp, topic_sequence_number, message_hash, metadata, submitted_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7::jsonb, $8)
ON CONFLICT (transaction_id) DO NOTHING`

const selectSubmissionSQL = `
SELECT transaction_id, request_id, topic_id, COALESCE(consensus_timestamp, ''),
	topic_sequence_number, message_hash, metadata::text, submitted_at
FROM hcs_submissions
WHERE transaction_id = $1`

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger log.FieldLogger
}

// NewPostgresStore opens the pool, verifies connectivity and ensures the schema
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, logger log.FieldLogger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)

	if d, err := time.ParseDuration(cfg.MaxIdleTime); err == nil {
		poolCfg.MaxConnIdleTime = d
	} else if cfg.MaxIdleTime != "" {
		logger.Warnf("Invalid database.max_idle_time '%s', keeping pgx default", cfg.MaxIdleTime)
	}
	if d, err := time.ParseDuration(cfg.MaxLifetime); err == nil {
		poolCfg.MaxConnLifetime = d
	} else if cfg.MaxLifetime != "" {
		logger.Warnf("Invalid database.max_lifetime '%s', keeping pgx default", cfg.MaxLifetime)
	}

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Audit store connected")
	return s, nil
}

// EnsureSchema creates the submissions table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func insertArgs(rec *SubmissionRecord) []any {
	metadata := "{}"
	if len(rec.Metadata) > 0 {
		metadata = string(rec.Metadata)
	}
	return []any{
		rec.TransactionID,
		rec.RequestID,
		rec.TopicID,
		rec.ConsensusTimestamp,
		int64(rec.TopicSequenceNumber),
		rec.MessageHash,
		metadata,
		rec.SubmittedAt,
	}
}

// RecordSubmission inserts rec, ignoring duplicates
func (s *PostgresStore) RecordSubmission(ctx context.Context, rec *SubmissionRecord) error {
	if _, err := s.pool.Exec(ctx, insertSubmissionSQL, insertArgs(rec)...); err != nil {
		return fmt.Errorf("failed to insert submission %s: %w", rec.TransactionID, err)
	}
	return nil
}

// RecordSubmissionBatch inserts recs with a single pgx batch
func (s *PostgresStore) RecordSubmissionBatch(ctx context.Context, recs []*SubmissionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(insertSubmissionSQL, insertArgs(rec)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, rec := range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert submission %s in batch: %w", rec.TransactionID, err)
		}
	}
	return nil
}

// GetSubmission looks a record up by transaction id
func (s *PostgresStore) GetSubmission(ctx context.Context, transactionID string) (*SubmissionRecord, error) {
	var (
		rec      SubmissionRecord
		seq      int64
		metadata string
	)
	err := s.pool.QueryRow(ctx, selectSubmissionSQL, transactionID).Scan(
		&rec.TransactionID,
		&rec.RequestID,
		&rec.TopicID,
		&rec.ConsensusTimestamp,
		&seq,
		&rec.MessageHash,
		&metadata,
		&rec.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query submission %s: %w", transactionID, err)
	}
	rec.TopicSequenceNumber = uint64(seq)
	rec.Metadata = []byte(metadata)
	return &rec, nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.logger.Info("Closing audit store...")
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
