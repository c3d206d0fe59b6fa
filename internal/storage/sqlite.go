package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"shortener/internal/models"
)

const linkColumns = `id, code, original_url, name, description, access_count, created_at, last_access_at`

// SQLiteStorage stores links in a SQLite database. The code column carries a
// UNIQUE constraint, so concurrent inserts of the same code are serialised by
// the database. Timestamps are stored as Unix microseconds.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database at dsn and applies migrations.
func NewSQLiteStorage(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	// SQLite allows one writer at a time; a single connection queues them
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &SQLiteStorage{db: db}, nil
}

// ExistsByCode reports whether a link with code exists.
func (ss *SQLiteStorage) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := ss.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return exists, nil
}

// InsertLink stores a new link and sets its ID.
func (ss *SQLiteStorage) InsertLink(ctx context.Context, link *models.Link) error {
	res, err := ss.db.ExecContext(ctx,
		`INSERT INTO links (code, original_url, name, description, access_count, created_at, last_access_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.Code,
		link.OriginalURL,
		link.Name,
		link.Description,
		link.AccessCount,
		link.CreatedAt.UnixMicro(),
		link.LastAccessAt.UnixMicro(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("failed to insert link: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read link id: %w", err)
	}
	link.ID = id
	return nil
}

// GetLinkByCode retrieves a link by its code.
func (ss *SQLiteStorage) GetLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	row := ss.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE code = ?`, code)
	return scanSQLiteLink(row)
}

// GetLinkByOriginalURL retrieves the earliest link created for url.
func (ss *SQLiteStorage) GetLinkByOriginalURL(ctx context.Context, url string) (*models.Link, error) {
	row := ss.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE original_url = ? ORDER BY id LIMIT 1`, url)
	return scanSQLiteLink(row)
}

// RecordAccess increments the access count of the link.
func (ss *SQLiteStorage) RecordAccess(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	row := ss.db.QueryRowContext(ctx,
		`UPDATE links SET access_count = access_count + 1, last_access_at = ?
		 WHERE code = ? RETURNING `+linkColumns,
		at.UnixMicro(), code)
	return scanSQLiteLink(row)
}

// Ping verifies the database is reachable.
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

func scanSQLiteLink(row *sql.Row) (*models.Link, error) {
	var link models.Link
	var createdAt, lastAccess int64
	err := row.Scan(
		&link.ID,
		&link.Code,
		&link.OriginalURL,
		&link.Name,
		&link.Description,
		&link.AccessCount,
		&createdAt,
		&lastAccess,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan link: %w", err)
	}

	link.CreatedAt = time.UnixMicro(createdAt).UTC()
	link.LastAccessAt = time.UnixMicro(lastAccess).UTC()
	return &link, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
