package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcache"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements authcache.UserProvider over the users table.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New returns a Store. A nil clock uses time.Now.
func New(db DBTX, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, now: clock}
}

// Open connects with the pgx driver and pings the server.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	return nil
}

const userColumns = `id, identifier, password_hash, created_at, password_changed_at, updated_at`

func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (authcache.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE identifier = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, identifier))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (authcache.UserRecord, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return authcache.UserRecord{}, authcache.ErrUserNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

func (s *Store) CreateUser(ctx context.Context, in authcache.CreateUserInput) (authcache.UserRecord, error) {
	now := s.now().UTC()
	rec := authcache.UserRecord{
		UserID:       uuid.NewString(),
		Identifier:   in.Identifier,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `INSERT INTO users (id, identifier, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`
	if _, err := s.db.ExecContext(ctx, query, rec.UserID, rec.Identifier, rec.PasswordHash, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authcache.UserRecord{}, authcache.ErrAccountExists
		}
		return authcache.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) (authcache.UserRecord, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return authcache.UserRecord{}, authcache.ErrUserNotFound
	}
	query := `UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1
		RETURNING ` + userColumns
	return scanUser(s.db.QueryRowContext(ctx, query, userID, hash, s.now().UTC()))
}

func scanUser(row *sql.Row) (authcache.UserRecord, error) {
	var (
		rec       authcache.UserRecord
		changedAt sql.NullTime
	)
	err := row.Scan(&rec.UserID, &rec.Identifier, &rec.PasswordHash, &rec.CreatedAt, &changedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcache.UserRecord{}, authcache.ErrUserNotFound
		}
		return authcache.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	if changedAt.Valid {
		rec.PasswordChangedAt = changedAt.Time
	}
	return rec, nil
}

var _ authcache.UserProvider = (*Store)(nil)
