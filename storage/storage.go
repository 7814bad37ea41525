package storage

import (
	"context"
	"time"

	"purrductive.app/cloud/models"
)

// Storage is the persistence boundary. All durable state lives behind it;
// handlers receive an implementation explicitly instead of reaching for a
// process-wide client.
type Storage interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByStripeSession(ctx context.Context, sessionID string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error

	// FindActiveLicenseByKey returns the active license row for an exact key
	// match, or nil when no active row exists.
	FindActiveLicenseByKey(ctx context.Context, key string) (*models.LicenseKey, error)
	FindActiveLicenseByUser(ctx context.Context, userID string) (*models.LicenseKey, error)
	FindLicensesByUser(ctx context.Context, userID string) ([]*models.LicenseKey, error)
	// InsertLicense inserts the license unless one already exists for the same
	// Stripe checkout session. It reports whether a row was created, so a
	// redelivered webhook resolves to (false, nil) rather than a duplicate key.
	InsertLicense(ctx context.Context, license *models.LicenseKey) (bool, error)
	// RecordLicenseUsage bumps usage_count by one and stamps last_used_at as a
	// single atomic update. Concurrent calls must not lose increments.
	RecordLicenseUsage(ctx context.Context, id string, at time.Time) error

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	TouchSession(ctx context.Context, token string, at time.Time) error
	DeleteSession(ctx context.Context, token string) error

	Close() error
}
