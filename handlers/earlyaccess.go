package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"purrductive.app/cloud/internal/logger"
	"purrductive.app/cloud/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type CollectEmailRequest struct {
	Email string `json:"email"`
}

type CollectEmailResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

// CollectEmail adds an address to the early access list. Repeat submissions
// are answered, never duplicated.
func (s *Server) CollectEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CollectEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Email is required")
		return
	}

	email := models.NormalizeEmail(req.Email)
	if !emailPattern.MatchString(email) {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	existing, err := s.Storage.FindUserByEmail(ctx, email)
	if err != nil {
		logger.Error("User lookup failed during email capture", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if existing != nil {
		if existing.HasPaid {
			writeJSON(w, http.StatusOK, CollectEmailResponse{
				Message: "You already have access to Purrductive Pro!",
			})
			return
		}
		writeJSON(w, http.StatusOK, CollectEmailResponse{
			Message: "You're already on our early access list!",
		})
		return
	}

	now := time.Now()
	user := &models.User{
		ID:            uuid.Must(uuid.NewRandom()).String(),
		Email:         email,
		IsEarlyAccess: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Storage.SaveUser(ctx, user); err != nil {
		logger.Error("Failed to save early access user", map[string]interface{}{
			"error": err.Error(),
			"email": email,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to save email")
		return
	}

	logger.Info("Early access signup", map[string]interface{}{
		"user_id": user.ID,
	})

	writeJSON(w, http.StatusOK, CollectEmailResponse{
		Message: "Thanks for joining! We'll notify you when Purrductive is ready.",
		UserID:  user.ID,
	})
}
