package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"purrductive.app/cloud/handlers"
	"purrductive.app/cloud/internal/testutil"
)

func TestVerifyLicense_Valid(t *testing.T) {
	server, store := testutil.TestServer()

	testutil.CreateTestUser(t, store, "user1", "buyer@example.com", true)
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "buyer@example.com", "cs_1")

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)

	if !response.Valid {
		t.Errorf("Expected valid license, got: %s", response.Message)
	}
	if response.Message != "License valid" {
		t.Errorf("Expected message 'License valid', got '%s'", response.Message)
	}
	if response.UserEmail != "buyer@example.com" {
		t.Errorf("Expected userEmail buyer@example.com, got %s", response.UserEmail)
	}
	if !response.IsPaid {
		t.Errorf("Expected isPaid true")
	}
}

func TestVerifyLicense_EarlyAccessVariant(t *testing.T) {
	server, store := testutil.TestServer()
	ctx := context.Background()

	user := testutil.CreateTestUser(t, store, "user1", "early@example.com", false)
	user.IsEarlyAccess = true
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatalf("Failed to save user: %v", err)
	}
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "early@example.com", "cs_1")

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
	})

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)

	if !response.Valid {
		t.Errorf("Expected early access license to be valid, got: %s", response.Message)
	}
	if !response.IsEarlyAccess {
		t.Errorf("Expected isEarlyAccess true")
	}
	if response.IsPaid {
		t.Errorf("Expected isPaid false")
	}
}

func TestVerifyLicense_NotFound(t *testing.T) {
	server, _ := testutil.TestServer()

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "ZZZZ-ZZZZ-ZZZZ-ZZZZ",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d for unknown key, got %d", http.StatusOK, w.Code)
	}

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)

	if response.Valid {
		t.Errorf("Expected invalid for unknown key")
	}
	if response.Message != "Invalid or inactive license key" {
		t.Errorf("Unexpected message: %s", response.Message)
	}
}

func TestVerifyLicense_EmailMismatch(t *testing.T) {
	server, store := testutil.TestServer()

	testutil.CreateTestUser(t, store, "user1", "buyer@example.com", true)
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "buyer@example.com", "cs_1")

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Email:      "someoneelse@example.com",
	})

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)

	if response.Valid {
		t.Errorf("Expected invalid on email mismatch")
	}
	if response.Message != "Email does not match license" {
		t.Errorf("Unexpected message: %s", response.Message)
	}
}

func TestVerifyLicense_EmailMatchIsCaseInsensitive(t *testing.T) {
	server, store := testutil.TestServer()

	testutil.CreateTestUser(t, store, "user1", "buyer@example.com", true)
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "buyer@example.com", "cs_1")

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Email:      "Buyer@Example.com",
	})

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)

	if !response.Valid {
		t.Errorf("Expected case-insensitive email match, got: %s", response.Message)
	}
}

func TestVerifyLicense_PaymentRequired(t *testing.T) {
	server, store := testutil.TestServer()

	testutil.CreateTestUser(t, store, "user1", "unpaid@example.com", false)
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "unpaid@example.com", "cs_1")

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
	})

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)

	if response.Valid {
		t.Errorf("Expected invalid for unpaid account")
	}
	if response.Message != "Payment required" {
		t.Errorf("Unexpected message: %s", response.Message)
	}
}

func TestVerifyLicense_EntitlementFollowsPaymentFlag(t *testing.T) {
	server, store := testutil.TestServer()
	ctx := context.Background()

	user := testutil.CreateTestUser(t, store, "user1", "flip@example.com", false)
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "flip@example.com", "cs_1")

	verify := func() handlers.VerifyLicenseResponse {
		w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
			LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		})
		var response handlers.VerifyLicenseResponse
		testutil.DecodeResponse(t, w, &response)
		return response
	}

	if verify().Valid {
		t.Fatalf("Expected invalid while unpaid")
	}

	user.HasPaid = true
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatalf("Failed to save user: %v", err)
	}
	if !verify().Valid {
		t.Errorf("Expected valid after payment flag flipped on")
	}

	user.HasPaid = false
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatalf("Failed to save user: %v", err)
	}
	if verify().Valid {
		t.Errorf("Expected invalid after payment flag flipped off")
	}
}

func TestVerifyLicense_UsageRecordedOnEveryHit(t *testing.T) {
	server, store := testutil.TestServer()
	ctx := context.Background()

	testutil.CreateTestUser(t, store, "user1", "unpaid@example.com", false)
	testutil.CreateTestLicense(t, store, "lic1", "AAAA-BBBB-CCCC-DDDD", "user1", "unpaid@example.com", "cs_1")

	// Three lookups that find the row: one email mismatch, two payment-required.
	testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
		Email:      "wrong@example.com",
	})
	testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
	})
	testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "AAAA-BBBB-CCCC-DDDD",
	})

	// And one that finds nothing.
	testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "ZZZZ-ZZZZ-ZZZZ-ZZZZ",
	})

	license, err := store.FindActiveLicenseByKey(ctx, "AAAA-BBBB-CCCC-DDDD")
	if err != nil {
		t.Fatalf("Failed to find license: %v", err)
	}
	if license.UsageCount != 3 {
		t.Errorf("Expected usage count 3, got %d", license.UsageCount)
	}
	if license.LastUsedAt == nil {
		t.Errorf("Expected last_used_at to be set")
	}
}

func TestVerifyLicense_MalformedKey(t *testing.T) {
	server, _ := testutil.TestServer()

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{
		LicenseKey: "not-a-real-key",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)
	if response.Valid {
		t.Errorf("Expected invalid for malformed key")
	}
	if response.Message != "Invalid or inactive license key" {
		t.Errorf("Unexpected message: %s", response.Message)
	}
}

func TestVerifyLicense_MissingKey(t *testing.T) {
	server, _ := testutil.TestServer()

	w := testutil.PostJSON(t, server, "/api/v1/licenses/verify", handlers.VerifyLicenseRequest{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	var response handlers.VerifyLicenseResponse
	testutil.DecodeResponse(t, w, &response)
	if response.Valid {
		t.Errorf("Expected valid=false")
	}
	if response.Message != "License key is required" {
		t.Errorf("Unexpected message: %s", response.Message)
	}
}
