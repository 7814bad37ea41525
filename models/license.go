package models

import "time"

// LicenseKey is an issued license row. Exactly one is created per completed
// payment; keys are deactivated, never deleted.
type LicenseKey struct {
	ID              string
	UserID          string
	Key             string
	Email           string // denormalized copy at issuance time
	IsActive        bool
	StripeSessionID string
	UsageCount      int64
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}
