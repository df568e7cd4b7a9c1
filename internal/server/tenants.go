package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/andreasskyt/vinduespudser-app/internal/pricing"
)

// Tenant is a business customer owning a branded quote form: a pricing config
// and a quote template, reached via its slug.
type Tenant struct {
	ID            uuid.UUID       `json:"id"`
	Slug          string          `json:"slug"`
	Name          string          `json:"name"`
	ContactEmail  string          `json:"contact_email"`
	WebhookURL    *string         `json:"webhook_url"`
	Pricing       json.RawMessage `json:"pricing"`
	QuoteTemplate string          `json:"quote_template"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

const tenantColumns = `id, slug, name, contact_email, webhook_url, pricing, quote_template, active, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.ContactEmail, &t.WebhookURL,
		&t.Pricing, &t.QuoteTemplate, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Server) getActiveTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1 AND active = TRUE`, slug)
	return scanTenant(row)
}

func (s *Server) getTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(r.Context(),
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}
	defer rows.Close()

	tenants := make([]Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
			return
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}

	writeJSON(w, http.StatusOK, tenants)
}

type createTenantRequest struct {
	Slug          string         `json:"slug"`
	Name          string         `json:"name"`
	ContactEmail  string         `json:"contact_email"`
	WebhookURL    string         `json:"webhook_url"`
	Pricing       map[string]any `json:"pricing"`
	QuoteTemplate string         `json:"quote_template"`
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeSlug(slug string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(slug)), "-")
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if strings.TrimSpace(req.Slug) == "" || strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.ContactEmail) == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request",
			"Manglende felter: slug, name og contact_email er påkrævet")
		return
	}
	if req.Pricing == nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "pricing skal være et objekt")
		return
	}
	if strings.TrimSpace(req.QuoteTemplate) == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "quote_template skal være en streng")
		return
	}

	// New tenants start from the platform defaults; provided keys win.
	merged := pricing.DefaultConfigMap()
	for k, v := range req.Pricing {
		merged[k] = v
	}
	pricingJSON, err := json.Marshal(merged)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "pricing skal være et objekt")
		return
	}

	now := time.Now().UTC()
	tenant := Tenant{
		ID:            uuid.New(),
		Slug:          normalizeSlug(req.Slug),
		Name:          strings.TrimSpace(req.Name),
		ContactEmail:  strings.TrimSpace(req.ContactEmail),
		WebhookURL:    nullIfEmpty(req.WebhookURL),
		Pricing:       pricingJSON,
		QuoteTemplate: strings.TrimSpace(req.QuoteTemplate),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err = s.db.Exec(r.Context(), `
		INSERT INTO tenants (id, slug, name, contact_email, webhook_url, pricing, quote_template, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $9)
	`, tenant.ID, tenant.Slug, tenant.Name, tenant.ContactEmail, tenant.WebhookURL,
		string(tenant.Pricing), tenant.QuoteTemplate, tenant.Active, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			writeErrorJSON(w, http.StatusConflict, "slug_exists", "Slug findes allerede")
			return
		}
		log.Println("insert tenant error:", err)
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// tenantPatchFields lists the columns a PATCH may touch.
var tenantPatchFields = []string{"name", "contact_email", "webhook_url", "pricing", "quote_template", "active", "slug"}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "invalid tenant id")
		return
	}

	ctx := r.Context()
	if _, err := s.getTenantByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "Tenant findes ikke")
			return
		}
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	sets := make([]string, 0, len(tenantPatchFields)+1)
	args := make([]any, 0, len(tenantPatchFields)+2)
	for _, field := range tenantPatchFields {
		raw, ok := body[field]
		if !ok {
			continue
		}
		value, ok := coerceTenantField(field, raw)
		if !ok {
			continue
		}
		args = append(args, value)
		if field == "pricing" {
			sets = append(sets, fmt.Sprintf("pricing = $%d::jsonb", len(args)))
		} else {
			sets = append(sets, fmt.Sprintf("%s = $%d", field, len(args)))
		}
	}
	if len(sets) == 0 {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request", "Ingen gyldige opdateringer")
		return
	}

	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`UPDATE tenants SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), tenantColumns), args...)
	updated, err := scanTenant(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeErrorJSON(w, http.StatusConflict, "slug_exists", "Slug findes allerede")
			return
		}
		log.Println("update tenant error:", err)
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "failed to update tenant")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// coerceTenantField validates a PATCH value against its column type. Values of
// the wrong shape are dropped rather than faulting the update.
func coerceTenantField(field string, raw any) (any, bool) {
	switch field {
	case "active":
		b, ok := raw.(bool)
		return b, ok
	case "pricing":
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		b, err := json.Marshal(m)
		if err != nil {
			return nil, false
		}
		return string(b), true
	case "webhook_url":
		if raw == nil {
			return (*string)(nil), true
		}
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		return nullIfEmpty(s), true
	case "slug":
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, false
		}
		return normalizeSlug(s), true
	default: // name, contact_email, quote_template
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		return strings.TrimSpace(s), true
	}
}
