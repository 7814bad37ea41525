package models

import (
	"strings"
	"time"
)

// User is an account row. One is created on first contact: early-access
// capture, checkout, or webhook-driven auto-creation. Rows are never deleted.
type User struct {
	ID                    string
	Email                 string
	PasswordHash          string
	HasPaid               bool
	IsEarlyAccess         bool
	StripeCustomerID      string
	StripeSessionID       string
	StripePaymentIntentID string
	PaymentCompletedAt    *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasAccess reports whether the account is entitled to pro features.
func (u *User) HasAccess() bool {
	return u.HasPaid || u.IsEarlyAccess
}

// NormalizeEmail lowercases and trims an address. Every email that touches
// storage goes through this so lookups stay case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
