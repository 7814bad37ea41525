package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"purrductive.app/cloud/internal/licensekey"
	"purrductive.app/cloud/internal/logger"
	"purrductive.app/cloud/models"
)

const maxWebhookBodyBytes = int64(65536)

// StripeWebhook ingests payment lifecycle events. The signature is verified
// over the exact bytes Stripe sent, before anything in the body is trusted.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.Stats.WebhooksReceived.Inc()

	logger.Info("Stripe webhook received", map[string]interface{}{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.Header.Get("User-Agent"),
	})

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		s.Config.StripeWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		logger.Error("Webhook signature verification failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	}

	logger.Info("Stripe event verified", map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	})

	switch event.Type {
	case "checkout.session.completed":
		var checkoutSession stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &checkoutSession); err != nil {
			logger.Error("Failed to unmarshal checkout session", map[string]interface{}{
				"error":    err.Error(),
				"event_id": event.ID,
			})
			writeErrorResponse(w, http.StatusBadRequest, "Malformed checkout session")
			return
		}

		if err := s.handleCheckoutCompleted(ctx, &checkoutSession); err != nil {
			logger.Error("Failed to handle checkout completion", map[string]interface{}{
				"error":      err.Error(),
				"session_id": checkoutSession.ID,
			})
			// 500 makes Stripe redeliver; issuance is idempotent so the retry
			// cannot double-issue.
			writeErrorResponse(w, http.StatusInternalServerError, "Webhook processing failed")
			return
		}
	default:
		// Ack everything else so Stripe does not redeliver events we never act on.
		logger.Info("Unhandled webhook event type", map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// handleCheckoutCompleted idempotently records the payment and issues a
// license key: at most one account per email and one key per checkout session,
// no matter how many times Stripe delivers the event.
func (s *Server) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	customerEmail := checkoutEmail(session)
	if customerEmail == "" {
		// Redelivery cannot add an email that was never in the payload.
		logger.Error("Checkout session has no customer email", map[string]interface{}{
			"session_id": session.ID,
		})
		return nil
	}

	logger.Info("Processing checkout session", map[string]interface{}{
		"session_id":     session.ID,
		"customer_email": customerEmail,
		"amount":         session.AmountTotal,
		"currency":       session.Currency,
		"payment_status": session.PaymentStatus,
	})

	user, err := s.markUserPaid(ctx, session, customerEmail)
	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}

	license, issued, err := s.issueLicense(ctx, user, session)
	if err != nil {
		return fmt.Errorf("failed to issue license: %w", err)
	}
	if !issued {
		logger.Info("License already issued, skipping", map[string]interface{}{
			"user_id":    user.ID,
			"session_id": session.ID,
		})
		return nil
	}

	s.Stats.LicensesIssued.Inc()
	logger.Info("License issued", map[string]interface{}{
		"user_id":    user.ID,
		"session_id": session.ID,
	})

	s.sendLicenseEmail(user, license)
	return nil
}

// markUserPaid finds or creates the account for the payer and flips it to
// paid with the Stripe correlation ids in one save.
func (s *Server) markUserPaid(ctx context.Context, session *stripe.CheckoutSession, customerEmail string) (*models.User, error) {
	normalized := models.NormalizeEmail(customerEmail)
	now := time.Now()

	user, err := s.Storage.FindUserByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if user == nil {
		user = &models.User{
			ID:        uuid.Must(uuid.NewRandom()).String(),
			Email:     normalized,
			CreatedAt: now,
		}
		logger.Info("Creating new user from webhook", map[string]interface{}{
			"customer_email": normalized,
			"session_id":     session.ID,
		})
	}

	user.HasPaid = true
	user.PaymentCompletedAt = &now
	user.StripeSessionID = session.ID
	if session.Customer != nil {
		user.StripeCustomerID = session.Customer.ID
	}
	if session.PaymentIntent != nil {
		user.StripePaymentIntentID = session.PaymentIntent.ID
	}
	user.UpdatedAt = now

	if err := s.Storage.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// issueLicense ensures exactly one active key exists for the payment. Returns
// the key and whether this call created it.
func (s *Server) issueLicense(ctx context.Context, user *models.User, session *stripe.CheckoutSession) (*models.LicenseKey, bool, error) {
	existing, err := s.Storage.FindActiveLicenseByUser(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	key, err := licensekey.New()
	if err != nil {
		return nil, false, err
	}

	license := &models.LicenseKey{
		ID:              uuid.Must(uuid.NewRandom()).String(),
		UserID:          user.ID,
		Key:             key,
		Email:           user.Email,
		IsActive:        true,
		StripeSessionID: session.ID,
		CreatedAt:       time.Now(),
	}

	created, err := s.Storage.InsertLicense(ctx, license)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// A concurrent delivery won the conditional insert.
		return nil, false, nil
	}

	return license, true, nil
}

func (s *Server) sendLicenseEmail(user *models.User, license *models.LicenseKey) {
	body := fmt.Sprintf(`Hello,

Thank you for purchasing Purrductive Pro! Your payment has been processed successfully.

LICENSE DETAILS
License Key: %s

GETTING STARTED
1. Open the Purrductive extension
2. Go to Settings -> License
3. Enter your license key: %s

NEED HELP?
Reply to this email or contact us at help@purrductive.app

The Purrductive Team`, license.Key, license.Key)

	if err := s.Email.Send(user.Email, "Your Purrductive Pro License Key", body); err != nil {
		// License was created; email failure must not fail the webhook.
		logger.Error("Failed to send license email", map[string]interface{}{
			"error":   err.Error(),
			"email":   user.Email,
			"user_id": user.ID,
		})
		return
	}

	logger.Info("License email sent", map[string]interface{}{
		"email":   user.Email,
		"user_id": user.ID,
	})
}

func checkoutEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	if session.CustomerEmail != "" {
		return session.CustomerEmail
	}
	return session.Metadata["email"]
}
