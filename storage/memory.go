package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"purrductive.app/cloud/models"
)

// MemoryStorage is the in-memory Storage used by tests. It mirrors the SQLite
// implementation's semantics, including the conditional license insert.
type MemoryStorage struct {
	mu       sync.Mutex
	users    map[string]models.User
	licenses map[string]models.LicenseKey
	sessions map[string]models.Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]models.User),
		licenses: make(map[string]models.LicenseKey),
		sessions: make(map[string]models.Session),
	}
}

func (m *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[id]
	if !exists {
		return nil, nil
	}
	return &user, nil
}

func (m *MemoryStorage) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Email == email {
			userCopy := user
			return &userCopy, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindUserByStripeSession(ctx context.Context, sessionID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.StripeSessionID == sessionID {
			userCopy := user
			return &userCopy, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Enforce the unique email constraint the database carries.
	for id, existing := range m.users {
		if existing.Email == user.Email && id != user.ID {
			return fmt.Errorf("user with email %s already exists", user.Email)
		}
	}

	m.users[user.ID] = *user
	return nil
}

func (m *MemoryStorage) FindActiveLicenseByKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, license := range m.licenses {
		if license.Key == key && license.IsActive {
			licenseCopy := license
			return &licenseCopy, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindActiveLicenseByUser(ctx context.Context, userID string) (*models.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, license := range m.licenses {
		if license.UserID == userID && license.IsActive {
			licenseCopy := license
			return &licenseCopy, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindLicensesByUser(ctx context.Context, userID string) ([]*models.LicenseKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var licenses []*models.LicenseKey
	for _, license := range m.licenses {
		if license.UserID == userID {
			licenseCopy := license
			licenses = append(licenses, &licenseCopy)
		}
	}
	return licenses, nil
}

func (m *MemoryStorage) InsertLicense(ctx context.Context, license *models.LicenseKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[license.UserID]; !exists {
		return false, fmt.Errorf("user %s not found", license.UserID)
	}

	for _, existing := range m.licenses {
		if existing.StripeSessionID == license.StripeSessionID {
			return false, nil
		}
		if existing.Key == license.Key {
			return false, fmt.Errorf("license key collision")
		}
	}

	m.licenses[license.ID] = *license
	return true, nil
}

func (m *MemoryStorage) RecordLicenseUsage(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	license, exists := m.licenses[id]
	if !exists {
		return fmt.Errorf("license %s not found", id)
	}

	license.UsageCount++
	license.LastUsedAt = &at
	m.licenses[id] = license
	return nil
}

func (m *MemoryStorage) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.Token] = *session
	return nil
}

func (m *MemoryStorage) GetSession(ctx context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[token]
	if !exists {
		return nil, nil
	}
	return &session, nil
}

func (m *MemoryStorage) TouchSession(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[token]
	if !exists {
		return fmt.Errorf("session not found")
	}

	session.LastAccessedAt = at
	m.sessions[token] = session
	return nil
}

func (m *MemoryStorage) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
