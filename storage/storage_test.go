package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"purrductive.app/cloud/models"
)

func testUser(id, email string) *models.User {
	return &models.User{
		ID:        id,
		Email:     email,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func testLicense(id, key, userID, stripeSessionID string) *models.LicenseKey {
	return &models.LicenseKey{
		ID:              id,
		UserID:          userID,
		Key:             key,
		Email:           userID + "@example.com",
		IsActive:        true,
		StripeSessionID: stripeSessionID,
		CreatedAt:       time.Now(),
	}
}

// runStorageTests runs the shared suite against any Storage implementation.
func runStorageTests(t *testing.T, store Storage) {
	ctx := context.Background()

	t.Run("UserRoundTrip", func(t *testing.T) {
		user := testUser("user1", "user1@example.com")

		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}

		got, err := store.GetUser(ctx, "user1")
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if got == nil {
			t.Fatalf("Expected user, got nil")
		}
		if got.Email != "user1@example.com" {
			t.Errorf("Expected email user1@example.com, got %s", got.Email)
		}

		found, err := store.FindUserByEmail(ctx, "user1@example.com")
		if err != nil {
			t.Fatalf("Failed to find user by email: %v", err)
		}
		if found == nil || found.ID != "user1" {
			t.Errorf("Expected to find user1 by email, got %+v", found)
		}
	})

	t.Run("UserUpdateInPlace", func(t *testing.T) {
		user := testUser("user2", "user2@example.com")
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}

		now := time.Now()
		user.HasPaid = true
		user.PaymentCompletedAt = &now
		user.StripeSessionID = "cs_update_test"
		if err := store.SaveUser(ctx, user); err != nil {
			t.Fatalf("Failed to update user: %v", err)
		}

		got, err := store.GetUser(ctx, "user2")
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if !got.HasPaid {
			t.Errorf("Expected has_paid to be true after update")
		}
		if got.PaymentCompletedAt == nil {
			t.Errorf("Expected payment_completed_at to be set")
		}

		bySession, err := store.FindUserByStripeSession(ctx, "cs_update_test")
		if err != nil {
			t.Fatalf("Failed to find user by stripe session: %v", err)
		}
		if bySession == nil || bySession.ID != "user2" {
			t.Errorf("Expected to find user2 by stripe session, got %+v", bySession)
		}
	})

	t.Run("DuplicateEmailRejected", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("user3", "dupe@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}

		err := store.SaveUser(ctx, testUser("user4", "dupe@example.com"))
		if err == nil {
			t.Errorf("Expected error saving second user with same email")
		}
	})

	t.Run("LicenseConditionalInsert", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("payer1", "payer1@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}

		created, err := store.InsertLicense(ctx, testLicense("lic1", "AAAA-BBBB-CCCC-DDDD", "payer1", "cs_pay_1"))
		if err != nil {
			t.Fatalf("Failed to insert license: %v", err)
		}
		if !created {
			t.Errorf("Expected first insert to create the license")
		}

		// Redelivered event: same checkout session, different generated key.
		created, err = store.InsertLicense(ctx, testLicense("lic2", "EEEE-FFFF-GGGG-HHHH", "payer1", "cs_pay_1"))
		if err != nil {
			t.Fatalf("Unexpected error on duplicate session insert: %v", err)
		}
		if created {
			t.Errorf("Expected duplicate session insert to be a no-op")
		}

		licenses, err := store.FindLicensesByUser(ctx, "payer1")
		if err != nil {
			t.Fatalf("Failed to list licenses: %v", err)
		}
		if len(licenses) != 1 {
			t.Errorf("Expected exactly 1 license, got %d", len(licenses))
		}
	})

	t.Run("FindActiveLicense", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("payer2", "payer2@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}
		if _, err := store.InsertLicense(ctx, testLicense("lic3", "IIII-JJJJ-KKKK-LLLL", "payer2", "cs_pay_2")); err != nil {
			t.Fatalf("Failed to insert license: %v", err)
		}

		byKey, err := store.FindActiveLicenseByKey(ctx, "IIII-JJJJ-KKKK-LLLL")
		if err != nil {
			t.Fatalf("Failed to find license by key: %v", err)
		}
		if byKey == nil || byKey.ID != "lic3" {
			t.Errorf("Expected lic3 by key, got %+v", byKey)
		}

		byUser, err := store.FindActiveLicenseByUser(ctx, "payer2")
		if err != nil {
			t.Fatalf("Failed to find license by user: %v", err)
		}
		if byUser == nil || byUser.ID != "lic3" {
			t.Errorf("Expected lic3 by user, got %+v", byUser)
		}

		missing, err := store.FindActiveLicenseByKey(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ")
		if err != nil {
			t.Fatalf("Expected no error for missing key, got %v", err)
		}
		if missing != nil {
			t.Errorf("Expected nil for missing key, got %+v", missing)
		}
	})

	t.Run("InactiveLicenseNotFound", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("payer3", "payer3@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}
		inactive := testLicense("lic4", "MMMM-NNNN-OOOO-PPPP", "payer3", "cs_pay_3")
		inactive.IsActive = false
		if _, err := store.InsertLicense(ctx, inactive); err != nil {
			t.Fatalf("Failed to insert license: %v", err)
		}

		got, err := store.FindActiveLicenseByKey(ctx, "MMMM-NNNN-OOOO-PPPP")
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != nil {
			t.Errorf("Expected inactive license to be invisible to active lookup")
		}
	})

	t.Run("RecordLicenseUsage", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("payer4", "payer4@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}
		if _, err := store.InsertLicense(ctx, testLicense("lic5", "QQQQ-RRRR-SSSS-TTTT", "payer4", "cs_pay_4")); err != nil {
			t.Fatalf("Failed to insert license: %v", err)
		}

		if err := store.RecordLicenseUsage(ctx, "lic5", time.Now()); err != nil {
			t.Fatalf("Failed to record usage: %v", err)
		}

		got, err := store.FindActiveLicenseByKey(ctx, "QQQQ-RRRR-SSSS-TTTT")
		if err != nil {
			t.Fatalf("Failed to find license: %v", err)
		}
		if got.UsageCount != 1 {
			t.Errorf("Expected usage count 1, got %d", got.UsageCount)
		}
		if got.LastUsedAt == nil {
			t.Errorf("Expected last_used_at to be set")
		}
	})

	t.Run("ConcurrentUsageRecording", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("payer5", "payer5@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}
		if _, err := store.InsertLicense(ctx, testLicense("lic6", "UUUU-VVVV-WWWW-XXXX", "payer5", "cs_pay_5")); err != nil {
			t.Fatalf("Failed to insert license: %v", err)
		}

		const workers = 25
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				if err := store.RecordLicenseUsage(ctx, "lic6", time.Now()); err != nil {
					t.Errorf("Failed to record usage: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := store.FindActiveLicenseByKey(ctx, "UUUU-VVVV-WWWW-XXXX")
		if err != nil {
			t.Fatalf("Failed to find license: %v", err)
		}
		if got.UsageCount != workers {
			t.Errorf("Expected usage count %d, got %d (lost updates)", workers, got.UsageCount)
		}
	})

	t.Run("SessionLifecycle", func(t *testing.T) {
		if err := store.SaveUser(ctx, testUser("sessionuser", "sessionuser@example.com")); err != nil {
			t.Fatalf("Failed to save user: %v", err)
		}

		now := time.Now()
		session := &models.Session{
			Token:          "token123",
			UserID:         "sessionuser",
			ExpiresAt:      now.Add(models.SessionTTL),
			CreatedAt:      now,
			LastAccessedAt: now,
		}
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		got, err := store.GetSession(ctx, "token123")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if got == nil || got.UserID != "sessionuser" {
			t.Errorf("Expected session for sessionuser, got %+v", got)
		}

		later := now.Add(time.Hour)
		if err := store.TouchSession(ctx, "token123", later); err != nil {
			t.Fatalf("Failed to touch session: %v", err)
		}

		got, err = store.GetSession(ctx, "token123")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if !got.LastAccessedAt.After(now) {
			t.Errorf("Expected last_accessed_at to advance, got %v", got.LastAccessedAt)
		}

		if err := store.DeleteSession(ctx, "token123"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}

		got, err = store.GetSession(ctx, "token123")
		if err != nil {
			t.Fatalf("Unexpected error after delete: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil after delete, got %+v", got)
		}

		// Deleting again is a no-op, not an error.
		if err := store.DeleteSession(ctx, "token123"); err != nil {
			t.Errorf("Expected idempotent delete, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		user, err := store.GetUser(ctx, "missing")
		if err != nil || user != nil {
			t.Errorf("Expected (nil, nil) for missing user, got (%+v, %v)", user, err)
		}

		session, err := store.GetSession(ctx, "missing")
		if err != nil || session != nil {
			t.Errorf("Expected (nil, nil) for missing session, got (%+v, %v)", session, err)
		}
	})
}

func TestMemoryStorage(t *testing.T) {
	store := NewMemoryStorage()
	defer store.Close()

	runStorageTests(t, store)
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purrductive_test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Failed to open sqlite storage: %v", err)
	}
	defer store.Close()

	runStorageTests(t, store)
}
