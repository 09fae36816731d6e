package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
)

type DB struct {
	ctx   context.Context
	cfg   *config.DBconfig
	mylog mylogger.Logger
	pool  *pgxpool.Pool
}

// New opens a connection pool. The scheduler store and both repos
// share it.
func New(ctx context.Context, dbCfg *config.DBconfig, mylog mylogger.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.Database,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &DB{ctx: ctx, cfg: dbCfg, mylog: mylog, pool: pool}, nil
}

func (d *DB) GetPool() *pgxpool.Pool { return d.pool }

func (d *DB) Close() { d.pool.Close() }

// IsAlive pings the DB to verify it's responsive
func (d *DB) IsAlive() error {
	if d.pool == nil {
		return fmt.Errorf("DB is not initialized")
	}
	if err := d.pool.Ping(d.ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
