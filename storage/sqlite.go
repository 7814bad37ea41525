package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"purrductive.app/cloud/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type SQLiteStorage struct {
	db   *sql.DB
	path string
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent verification traffic.
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{
		db:   db,
		path: path,
	}

	if err := storage.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

const userColumns = `id, email, password_hash, has_paid, is_early_access, stripe_customer_id, stripe_session_id, stripe_payment_intent_id, payment_completed_at, created_at, updated_at`

func (s *SQLiteStorage) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var paymentCompletedAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.HasPaid,
		&user.IsEarlyAccess,
		&user.StripeCustomerID,
		&user.StripeSessionID,
		&user.StripePaymentIntentID,
		&paymentCompletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if paymentCompletedAt.Valid {
		user.PaymentCompletedAt = &paymentCompletedAt.Time
	}

	return &user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStorage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStorage) FindUserByStripeSession(ctx context.Context, sessionID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE stripe_session_id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, sessionID))
}

func (s *SQLiteStorage) SaveUser(ctx context.Context, user *models.User) error {
	// Upsert keyed on id only. A conflicting email surfaces as a constraint
	// error instead of silently replacing another user's row.
	query := `INSERT INTO users (` + userColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET
	              email = excluded.email,
	              password_hash = excluded.password_hash,
	              has_paid = excluded.has_paid,
	              is_early_access = excluded.is_early_access,
	              stripe_customer_id = excluded.stripe_customer_id,
	              stripe_session_id = excluded.stripe_session_id,
	              stripe_payment_intent_id = excluded.stripe_payment_intent_id,
	              payment_completed_at = excluded.payment_completed_at,
	              updated_at = excluded.updated_at`

	var paymentCompletedAt sql.NullTime
	if user.PaymentCompletedAt != nil {
		paymentCompletedAt = sql.NullTime{Time: *user.PaymentCompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.HasPaid,
		user.IsEarlyAccess,
		user.StripeCustomerID,
		user.StripeSessionID,
		user.StripePaymentIntentID,
		paymentCompletedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

const licenseColumns = `id, user_id, key, email, is_active, stripe_session_id, usage_count, created_at, last_used_at`

func (s *SQLiteStorage) scanLicense(row *sql.Row) (*models.LicenseKey, error) {
	var license models.LicenseKey
	var lastUsedAt sql.NullTime

	err := row.Scan(
		&license.ID,
		&license.UserID,
		&license.Key,
		&license.Email,
		&license.IsActive,
		&license.StripeSessionID,
		&license.UsageCount,
		&license.CreatedAt,
		&lastUsedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		license.LastUsedAt = &lastUsedAt.Time
	}

	return &license, nil
}

func (s *SQLiteStorage) FindActiveLicenseByKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	query := `SELECT ` + licenseColumns + ` FROM license_keys WHERE key = ? AND is_active = 1`
	return s.scanLicense(s.db.QueryRowContext(ctx, query, key))
}

func (s *SQLiteStorage) FindActiveLicenseByUser(ctx context.Context, userID string) (*models.LicenseKey, error) {
	query := `SELECT ` + licenseColumns + ` FROM license_keys WHERE user_id = ? AND is_active = 1 LIMIT 1`
	return s.scanLicense(s.db.QueryRowContext(ctx, query, userID))
}

func (s *SQLiteStorage) FindLicensesByUser(ctx context.Context, userID string) ([]*models.LicenseKey, error) {
	query := `SELECT ` + licenseColumns + ` FROM license_keys WHERE user_id = ?`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*models.LicenseKey
	for rows.Next() {
		var license models.LicenseKey
		var lastUsedAt sql.NullTime

		err := rows.Scan(
			&license.ID,
			&license.UserID,
			&license.Key,
			&license.Email,
			&license.IsActive,
			&license.StripeSessionID,
			&license.UsageCount,
			&license.CreatedAt,
			&lastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}

		if lastUsedAt.Valid {
			license.LastUsedAt = &lastUsedAt.Time
		}

		licenses = append(licenses, &license)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating licenses: %w", err)
	}

	return licenses, nil
}

func (s *SQLiteStorage) InsertLicense(ctx context.Context, license *models.LicenseKey) (bool, error) {
	// The unique stripe_session_id constraint resolves concurrent deliveries
	// of the same payment event: the second insert is a no-op.
	query := `INSERT INTO license_keys (` + licenseColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(stripe_session_id) DO NOTHING`

	var lastUsedAt sql.NullTime
	if license.LastUsedAt != nil {
		lastUsedAt = sql.NullTime{Time: *license.LastUsedAt, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		license.ID,
		license.UserID,
		license.Key,
		license.Email,
		license.IsActive,
		license.StripeSessionID,
		license.UsageCount,
		license.CreatedAt,
		lastUsedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert license: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (s *SQLiteStorage) RecordLicenseUsage(ctx context.Context, id string, at time.Time) error {
	// Single atomic expression so concurrent verifications never lose counts.
	query := `UPDATE license_keys SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to record license usage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("license %s not found", id)
	}

	return nil
}

func (s *SQLiteStorage) CreateSession(ctx context.Context, session *models.Session) error {
	query := `INSERT INTO sessions (token, user_id, expires_at, created_at, last_accessed_at) VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.Token,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GetSession(ctx context.Context, token string) (*models.Session, error) {
	query := `SELECT token, user_id, expires_at, created_at, last_accessed_at FROM sessions WHERE token = ?`

	var session models.Session
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.LastAccessedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &session, nil
}

func (s *SQLiteStorage) TouchSession(ctx context.Context, token string, at time.Time) error {
	query := `UPDATE sessions SET last_accessed_at = ? WHERE token = ?`

	_, err := s.db.ExecContext(ctx, query, at, token)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) DeleteSession(ctx context.Context, token string) error {
	query := `DELETE FROM sessions WHERE token = ?`

	_, err := s.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
