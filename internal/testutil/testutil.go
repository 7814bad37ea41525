package testutil

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"purrductive.app/cloud/handlers"
	"purrductive.app/cloud/internal/auth"
	"purrductive.app/cloud/internal/config"
	"purrductive.app/cloud/models"
	"purrductive.app/cloud/storage"
)

// WebhookSecret is the shared secret test servers are configured with.
const WebhookSecret = "whsec_test"

// TestConfig returns a config suitable for handler tests.
func TestConfig() *config.Config {
	return &config.Config{
		Port:                "8080",
		DatabaseURL:         ":memory:",
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: WebhookSecret,
		CheckoutSuccessURL:  "https://purrductive.app/success?session_id={CHECKOUT_SESSION_ID}",
		CheckoutCancelURL:   "https://purrductive.app",
		EmailFrom:           "licenses@purrductive.app",
	}
}

// TestServer wires a handler server onto a fresh memory storage.
func TestServer() (*handlers.Server, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	server := handlers.NewServer(store, TestConfig(), nil, "test")
	return server, store
}

// CreateTestUser saves a user with the given flags and returns it.
func CreateTestUser(t *testing.T, store storage.Storage, id, emailAddr string, hasPaid bool) *models.User {
	t.Helper()

	now := time.Now()
	user := &models.User{
		ID:        id,
		Email:     emailAddr,
		HasPaid:   hasPaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if hasPaid {
		user.PaymentCompletedAt = &now
	}

	if err := store.SaveUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to save test user %s: %v", id, err)
	}
	return user
}

// CreateTestUserWithPassword saves a user that can log in.
func CreateTestUserWithPassword(t *testing.T, store storage.Storage, id, emailAddr, password string) *models.User {
	t.Helper()

	user := CreateTestUser(t, store, id, emailAddr, true)
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user.PasswordHash = hash
	if err := store.SaveUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to save test user password: %v", err)
	}
	return user
}

// CreateTestLicense inserts an active license for the user.
func CreateTestLicense(t *testing.T, store storage.Storage, id, key, userID, emailAddr, stripeSessionID string) *models.LicenseKey {
	t.Helper()

	license := &models.LicenseKey{
		ID:              id,
		UserID:          userID,
		Key:             key,
		Email:           emailAddr,
		IsActive:        true,
		StripeSessionID: stripeSessionID,
		CreatedAt:       time.Now(),
	}

	created, err := store.InsertLicense(context.Background(), license)
	if err != nil {
		t.Fatalf("Failed to insert test license %s: %v", id, err)
	}
	if !created {
		t.Fatalf("Test license %s was not created", id)
	}
	return license
}

// CheckoutSessionPayload builds a checkout.session.completed event body.
func CheckoutSessionPayload(customerEmail, sessionID string) []byte {
	event := map[string]interface{}{
		"id":   "evt_test123",
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"object":         "checkout.session",
				"customer_email": customerEmail,
				"amount_total":   500,
				"currency":       "usd",
				"payment_status": "paid",
				"customer":       "cus_test123",
				"payment_intent": "pi_test123",
				"metadata": map[string]interface{}{
					"product": "purrductive_pro",
				},
			},
		},
	}

	payload, _ := json.Marshal(event)
	return payload
}

// EventPayload builds an arbitrary event body.
func EventPayload(eventType string) []byte {
	event := map[string]interface{}{
		"id":   "evt_test456",
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{},
		},
	}

	payload, _ := json.Marshal(event)
	return payload
}

// SignPayload produces a Stripe-Signature header value that verifies against
// the given secret, the same scheme Stripe uses on real deliveries.
func SignPayload(payload []byte, secret string) string {
	now := time.Now()
	signature := webhook.ComputeSignature(now, payload, secret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(signature))
}

// PostWebhook delivers a signed payload to the webhook route.
func PostWebhook(server *handlers.Server, payload []byte, signatureHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signatureHeader)

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// PostJSON sends a JSON body to the given route.
func PostJSON(t *testing.T, server *handlers.Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.Router.ServeHTTP(w, req)
	return w
}

// DecodeResponse decodes a JSON response body into out.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}
