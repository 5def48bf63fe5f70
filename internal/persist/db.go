package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/l1jgo/worldstore/internal/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/l1jgo/worldstore/internal/persist")

// Querier is the session handle every mapper writes through. Both the pool
// and an open transaction satisfy it, so a caller that already owns a
// transaction passes it down instead of letting the callee open another.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a Querier that can start transactions.
type Conn interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB wraps a pgx connection pool.
type DB struct {
	Pool Conn
	raw  *pgxpool.Pool
	log  *zap.Logger
}

func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DB{Pool: pool, raw: pool, log: log}, nil
}

// NewDBWithConn wraps an existing connection, e.g. a pgxmock pool in tests.
func NewDBWithConn(conn Conn, log *zap.Logger) *DB {
	if log == nil {
		log = zap.NewNop()
	}
	db := &DB{Pool: conn, log: log}
	if p, ok := conn.(*pgxpool.Pool); ok {
		db.raw = p
	}
	return db
}

// Raw returns the underlying pool, or nil when the DB wraps something else.
func (db *DB) Raw() *pgxpool.Pool {
	return db.raw
}

func (db *DB) Close() {
	if db.raw != nil {
		db.raw.Close()
	}
}

// InTx runs fn inside one transaction. Any error from fn rolls back every
// write fn made.
func (db *DB) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
