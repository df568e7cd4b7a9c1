package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andreasskyt/vinduespudser-app/internal/email"
	"github.com/andreasskyt/vinduespudser-app/internal/notify"
	"github.com/andreasskyt/vinduespudser-app/internal/property"
)

type Server struct {
	db       *pgxpool.Pool
	adminKey string
	props    property.Source
	email    email.Sender
	notify   *notify.Notifier
}

// Options bundles the collaborators a Server needs. Nil fields get safe
// defaults so tests can construct a Server with only what they exercise.
type Options struct {
	AdminKey string
	Property property.Source
	Email    email.Sender
	Notifier *notify.Notifier
}

func New(db *pgxpool.Pool, opts Options) http.Handler {
	s := &Server{
		db:       db,
		adminKey: opts.AdminKey,
		props:    opts.Property,
		email:    opts.Email,
		notify:   opts.Notifier,
	}
	if s.props == nil {
		s.props = property.NewClient("", "")
	}
	if s.email == nil {
		s.email = email.NewSender("", "")
	}
	if s.notify == nil {
		s.notify = notify.New()
	}

	r := chi.NewRouter()
	// Observability: Request ID and basic logger
	r.Use(requestIDMiddleware)
	r.Use(middleware.Logger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/address-suggestions", s.handleAddressSuggestions)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/tenants", s.handleListTenants)
		r.Post("/tenants", s.handleCreateTenant)
		r.Patch("/tenants/{id}", s.handleUpdateTenant)
	})

	r.Get("/{slug}", s.handleQuoteForm)
	r.Post("/{slug}/submit", s.handleQuoteSubmit)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleAddressSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.props.Suggestions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		// Autocomplete is best-effort; degrade to an empty list.
		suggestions = []property.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// requireAdmin checks the static bearer token. No sessions, no users.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := ""
		if strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
		if s.adminKey == "" || token != s.adminKey {
			writeErrorJSON(w, http.StatusUnauthorized, "unauthorized", "Uautoriseret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeErrorJSON writes a standardized JSON error response:
// {"error": {"code": string, "message": string}}
func writeErrorJSON(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestIDMiddleware ensures X-Request-ID is set on the response.
// If provided in the request header, it is propagated; otherwise a UUID is generated.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			rid = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

func nullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
