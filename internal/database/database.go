// Package database owns the connection pool and the per-chunk session
// discipline: one pooled connection per worker, explicit transactions,
// commit at chunk boundaries, release on every exit path.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bliinkai/ingest/internal/config"
)

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// NewPool builds the shared connection pool from configuration. Session
// defaults (read-committed isolation, bounded lock waits) are applied as
// runtime parameters so every pooled connection carries them.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolConfig.ConnConfig.RuntimeParams["lock_timeout"] = fmt.Sprintf("%dms", cfg.LockTimeout.Milliseconds())
	poolConfig.ConnConfig.RuntimeParams["default_transaction_isolation"] = "read committed"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// Available returns the number of pool connections not currently acquired.
func Available(pool *pgxpool.Pool) int {
	stat := pool.Stat()
	return int(stat.MaxConns() - stat.AcquiredConns())
}

// Session is a scoped unit of work: one pooled connection, one open
// transaction. The owning worker must finish with Commit or Rollback;
// Close is safe to defer and releases the connection on every path.
type Session struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
	done bool
}

// BeginSession acquires a connection and opens a transaction on it.
func BeginSession(ctx context.Context, pool *pgxpool.Pool) (*Session, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	return &Session{conn: conn, tx: tx}, nil
}

// Tx exposes the open transaction for DML.
func (s *Session) Tx() DBTX {
	return s.tx
}

// Commit commits the transaction and releases the connection.
func (s *Session) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	err := s.tx.Commit(ctx)
	s.conn.Release()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and releases the connection.
func (s *Session) Rollback(ctx context.Context) {
	if s.done {
		return
	}
	s.done = true
	_ = s.tx.Rollback(ctx)
	s.conn.Release()
}

// Close rolls back if the session was not already finished.
// Intended for defer.
func (s *Session) Close(ctx context.Context) {
	s.Rollback(ctx)
}
