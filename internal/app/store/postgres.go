package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"wnschat/internal/app/user"
	"wnschat/internal/pkg/logx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Postgres is a GrantStore backed by the user_grants table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a connection pool, verifies it and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := runMigrations(ctx, sqlDB); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

// runMigrations applies all pending migrations from the embedded file system.
func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	logx.Info("Grant store migrations applied successfully.")
	return nil
}

func (p *Postgres) Level(ctx context.Context, username string) (user.PermissionLevel, error) {
	var level int32

	err := p.pool.QueryRow(ctx,
		`SELECT level FROM user_grants WHERE username = $1`,
		key(username),
	).Scan(&level)

	if errors.Is(err, pgx.ErrNoRows) {
		return user.LevelUser, nil
	}
	if err != nil {
		return user.LevelUser, wrapErr("load grant", err)
	}

	return user.PermissionLevel(level), nil
}

func (p *Postgres) SetLevel(ctx context.Context, username string, level user.PermissionLevel, grantedBy string) error {
	if level == user.LevelUser {
		_, err := p.pool.Exec(ctx, `DELETE FROM user_grants WHERE username = $1`, key(username))
		return wrapErr("revoke grant", err)
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO user_grants (username, level, granted_by, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (username) DO UPDATE
		 SET level = EXCLUDED.level, granted_by = EXCLUDED.granted_by, updated_at = EXCLUDED.updated_at`,
		key(username), int32(level), grantedBy,
	)
	return wrapErr("save grant", err)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
