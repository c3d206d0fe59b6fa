package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"shortener/internal/models"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint violation.
const pgUniqueViolation = "23505"

// PostgresStorage implements the Storage interface using PostgreSQL.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance and applies
// pending migrations.
func NewPostgresStorage(ctx context.Context, cfg models.DatabaseConfig) (*PostgresStorage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(cfg.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = migrate(ctx, db, goose.DialectPostgres, "postgres")
	db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

// ExistsByCode reports whether a link with code exists.
func (ps *PostgresStorage) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := ps.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

// InsertLink stores a new link and sets its ID.
func (ps *PostgresStorage) InsertLink(ctx context.Context, link *models.Link) error {
	err := ps.pool.QueryRow(ctx,
		`INSERT INTO links (code, original_url, name, description, access_count, created_at, last_access_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		link.Code,
		link.OriginalURL,
		link.Name,
		link.Description,
		link.AccessCount,
		link.CreatedAt,
		link.LastAccessAt,
	).Scan(&link.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}
	return nil
}

// GetLinkByCode retrieves a link by its code.
func (ps *PostgresStorage) GetLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM links WHERE code = $1`, code)
	return scanPgLink(row)
}

// GetLinkByOriginalURL retrieves the earliest link created for url.
func (ps *PostgresStorage) GetLinkByOriginalURL(ctx context.Context, url string) (*models.Link, error) {
	row := ps.pool.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE original_url = $1 ORDER BY id LIMIT 1`, url)
	return scanPgLink(row)
}

// RecordAccess increments the access count of the link.
func (ps *PostgresStorage) RecordAccess(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	row := ps.pool.QueryRow(ctx,
		`UPDATE links SET access_count = access_count + 1, last_access_at = $1
		 WHERE code = $2 RETURNING `+linkColumns,
		at, code)
	return scanPgLink(row)
}

// Ping verifies the database is reachable.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanPgLink(row pgx.Row) (*models.Link, error) {
	var link models.Link
	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.Name,
		&link.Description,
		&link.AccessCount,
		&link.CreatedAt,
		&link.LastAccessAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}

	link.CreatedAt = link.CreatedAt.UTC()
	link.LastAccessAt = link.LastAccessAt.UTC()
	return &link, nil
}
