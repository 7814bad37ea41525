package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"purrductive.app/cloud/internal/licensekey"
	"purrductive.app/cloud/internal/logger"
	"purrductive.app/cloud/models"
)

type VerifyLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
	Email      string `json:"email,omitempty"`
}

type VerifyLicenseResponse struct {
	Valid         bool   `json:"valid"`
	Message       string `json:"message"`
	UserEmail     string `json:"userEmail,omitempty"`
	IsPaid        bool   `json:"isPaid,omitempty"`
	IsEarlyAccess bool   `json:"isEarlyAccess,omitempty"`
}

// VerifyLicense decides whether a presented key currently grants access.
// "Not entitled" is an expected outcome and always a 200 with valid=false.
func (s *Server) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.Stats.LicenseChecks.Inc()

	var req VerifyLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.LicenseKey == "" {
		writeJSON(w, http.StatusBadRequest, VerifyLicenseResponse{
			Valid:   false,
			Message: "License key is required",
		})
		return
	}

	// A key that cannot have been issued is not worth a store round trip.
	if !licensekey.ValidFormat(req.LicenseKey) {
		writeJSON(w, http.StatusOK, VerifyLicenseResponse{
			Valid:   false,
			Message: "Invalid or inactive license key",
		})
		return
	}

	license, err := s.Storage.FindActiveLicenseByKey(ctx, req.LicenseKey)
	if err != nil {
		logger.Error("License lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if license == nil {
		writeJSON(w, http.StatusOK, VerifyLicenseResponse{
			Valid:   false,
			Message: "Invalid or inactive license key",
		})
		return
	}

	// Usage telemetry is recorded for every found key, whatever the final
	// verdict. The increment is atomic at the store.
	if err := s.Storage.RecordLicenseUsage(ctx, license.ID, time.Now()); err != nil {
		logger.Error("Failed to record license usage", map[string]interface{}{
			"error":      err.Error(),
			"license_id": license.ID,
		})
	}

	if req.Email != "" && models.NormalizeEmail(req.Email) != license.Email {
		writeJSON(w, http.StatusOK, VerifyLicenseResponse{
			Valid:   false,
			Message: "Email does not match license",
		})
		return
	}

	user, err := s.Storage.GetUser(ctx, license.UserID)
	if err != nil {
		logger.Error("User lookup failed", map[string]interface{}{
			"error":   err.Error(),
			"user_id": license.UserID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if user == nil {
		// Orphaned license row. Treat as not found rather than a fault.
		logger.Warn("License has no owning user", map[string]interface{}{
			"license_id": license.ID,
		})
		writeJSON(w, http.StatusOK, VerifyLicenseResponse{
			Valid:   false,
			Message: "Invalid or inactive license key",
		})
		return
	}

	if !user.HasAccess() {
		writeJSON(w, http.StatusOK, VerifyLicenseResponse{
			Valid:         false,
			Message:       "Payment required",
			UserEmail:     user.Email,
			IsPaid:        user.HasPaid,
			IsEarlyAccess: user.IsEarlyAccess,
		})
		return
	}

	writeJSON(w, http.StatusOK, VerifyLicenseResponse{
		Valid:         true,
		Message:       "License valid",
		UserEmail:     user.Email,
		IsPaid:        user.HasPaid,
		IsEarlyAccess: user.IsEarlyAccess,
	})
}
