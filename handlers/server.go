package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/atomic"

	"purrductive.app/cloud/internal/config"
	"purrductive.app/cloud/internal/email"
	"purrductive.app/cloud/storage"
)

// Stats counts requests handled since boot. Surfaced on /health.
type Stats struct {
	WebhooksReceived atomic.Int64
	LicensesIssued   atomic.Int64
	LicenseChecks    atomic.Int64
	Logins           atomic.Int64
}

type Server struct {
	Router  chi.Router
	Storage storage.Storage
	Config  *config.Config
	Email   *email.Sender
	Stats   *Stats
	Version string

	started time.Time
}

func NewServer(store storage.Storage, cfg *config.Config, sender *email.Sender, version string) *Server {
	s := &Server{
		Storage: store,
		Config:  cfg,
		Email:   sender,
		Stats:   &Stats{},
		Version: version,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		// The extension calls from its own origin; the marketing site from its.
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.Health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", s.StripeWebhook)
		r.Post("/licenses/verify", s.VerifyLicense)
		r.Post("/checkout/sessions", s.CreateCheckoutSession)
		r.Post("/checkout/session-data", s.CheckoutSessionData)
		r.Post("/early-access", s.CollectEmail)
		r.Post("/auth/login", s.Login)
		r.Post("/auth/logout", s.Logout)
		r.Get("/auth/me", s.CurrentUser)
	})

	s.Router = r
	return s
}

type HealthResponse struct {
	Status           string    `json:"status"`
	Version          string    `json:"version"`
	Timestamp        time.Time `json:"timestamp"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	WebhooksReceived int64     `json:"webhooks_received"`
	LicensesIssued   int64     `json:"licenses_issued"`
	LicenseChecks    int64     `json:"license_checks"`
	Logins           int64     `json:"logins"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "healthy",
		Version:          s.Version,
		Timestamp:        time.Now(),
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
		WebhooksReceived: s.Stats.WebhooksReceived.Load(),
		LicensesIssued:   s.Stats.LicensesIssued.Load(),
		LicenseChecks:    s.Stats.LicenseChecks.Load(),
		Logins:           s.Stats.Logins.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
