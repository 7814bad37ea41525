package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"

	"purrductive.app/cloud/internal/logger"
)

// proPriceCents is the one-time price of Purrductive Pro.
const proPriceCents = 500

// CreateCheckoutSession creates a Stripe checkout session for the one-time
// payment and returns its redirect URL. Stripe collects the email itself.
func (s *Server) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("usd"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("Purrductive Pro"),
						Description: stripe.String("Lifetime access to the Purrductive Pro extension"),
					},
					UnitAmount: stripe.Int64(proPriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
		SuccessURL:               stripe.String(s.Config.CheckoutSuccessURL),
		CancelURL:                stripe.String(s.Config.CheckoutCancelURL),
	}
	params.AddMetadata("product", "purrductive_pro")

	session, err := checkoutsession.New(params)
	if err != nil {
		logger.Error("Failed to create checkout session", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	logger.Info("Checkout session created", map[string]interface{}{
		"session_id": session.ID,
	})

	writeJSON(w, http.StatusOK, map[string]string{"url": session.URL})
}

type SessionDataRequest struct {
	SessionID string `json:"session_id"`
}

type SessionDataResponse struct {
	SessionID     string `json:"sessionId"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	PaymentStatus string `json:"paymentStatus"`
	AmountTotal   int64  `json:"amountTotal"`
	Currency      string `json:"currency"`
	LicenseKey    string `json:"licenseKey,omitempty"`
	User          struct {
		Email              string `json:"email"`
		HasPaid            bool   `json:"hasPaid"`
		PaymentCompletedAt string `json:"paymentCompletedAt,omitempty"`
	} `json:"user"`
}

// CheckoutSessionData serves the post-payment success page: it confirms the
// payment with Stripe, then returns the provisioned account and license key.
func (s *Server) CheckoutSessionData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SessionDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.SessionID == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	session, err := checkoutsession.Get(req.SessionID, nil)
	if err != nil {
		logger.Error("Failed to retrieve checkout session", map[string]interface{}{
			"error":      err.Error(),
			"session_id": req.SessionID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		writeErrorResponse(w, http.StatusBadRequest, "Payment not completed")
		return
	}

	user, err := s.Storage.FindUserByStripeSession(ctx, req.SessionID)
	if err != nil {
		logger.Error("User lookup by stripe session failed", map[string]interface{}{
			"error":      err.Error(),
			"session_id": req.SessionID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		// The webhook may not have landed yet.
		writeErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}

	resp := SessionDataResponse{
		SessionID:     req.SessionID,
		CustomerEmail: session.CustomerEmail,
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
	}
	resp.User.Email = user.Email
	resp.User.HasPaid = user.HasPaid
	if user.PaymentCompletedAt != nil {
		resp.User.PaymentCompletedAt = user.PaymentCompletedAt.UTC().Format(time.RFC3339)
	}

	if license, err := s.Storage.FindActiveLicenseByUser(ctx, user.ID); err == nil && license != nil {
		resp.LicenseKey = license.Key
	}

	writeJSON(w, http.StatusOK, resp)
}
