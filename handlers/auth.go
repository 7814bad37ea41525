package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"purrductive.app/cloud/internal/auth"
	"purrductive.app/cloud/internal/logger"
	"purrductive.app/cloud/models"
)

const sessionCookieName = "session"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	HasPaid bool   `json:"hasPaid"`
}

type LoginResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

// Login validates credentials and issues a 7-day session cookie. Unknown
// email and wrong password produce the same response, so the endpoint cannot
// be used to enumerate accounts.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeErrorResponse(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := s.Storage.FindUserByEmail(ctx, models.NormalizeEmail(req.Email))
	if err != nil {
		logger.Error("User lookup failed during login", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if user == nil || user.PasswordHash == "" || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		logger.Error("Failed to generate session token", map[string]interface{}{
			"error": err.Error(),
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	now := time.Now()
	session := &models.Session{
		Token:          token,
		UserID:         user.ID,
		ExpiresAt:      now.Add(models.SessionTTL),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := s.Storage.CreateSession(ctx, session); err != nil {
		logger.Error("Failed to create session", map[string]interface{}{
			"error":   err.Error(),
			"user_id": user.ID,
		})
		writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.Stats.Logins.Inc()
	logger.Info("User logged in", map[string]interface{}{
		"user_id": user.ID,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(models.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		User: UserResponse{
			ID:      user.ID,
			Email:   user.Email,
			HasPaid: user.HasPaid,
		},
	})
}

// Logout revokes the session server-side and clears the cookie, so a stolen
// token dies with the logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := s.Storage.DeleteSession(ctx, cookie.Value); err != nil {
			logger.Error("Failed to delete session on logout", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out successfully",
	})
}

// CurrentUser resolves the session cookie to its account, lazily deleting
// expired rows and touching last_accessed_at on success.
func (s *Server) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := s.sessionUser(r)
	if user == nil {
		writeErrorResponse(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": UserResponse{
			ID:      user.ID,
			Email:   user.Email,
			HasPaid: user.HasPaid,
		},
	})
}

// sessionUser returns the account behind a valid session cookie, or nil.
func (s *Server) sessionUser(r *http.Request) *models.User {
	ctx := r.Context()

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	session, err := s.Storage.GetSession(ctx, cookie.Value)
	if err != nil {
		logger.Error("Session lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if session == nil {
		return nil
	}

	now := time.Now()
	if session.Expired(now) {
		// Best-effort cleanup; an expired row failing validation is enough.
		if err := s.Storage.DeleteSession(ctx, session.Token); err != nil {
			logger.Error("Failed to delete expired session", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}

	if err := s.Storage.TouchSession(ctx, session.Token, now); err != nil {
		logger.Error("Failed to touch session", map[string]interface{}{
			"error": err.Error(),
		})
	}

	user, err := s.Storage.GetUser(ctx, session.UserID)
	if err != nil {
		logger.Error("User lookup failed for session", map[string]interface{}{
			"error":   err.Error(),
			"user_id": session.UserID,
		})
		return nil
	}

	return user
}
