package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/andreasskyt/vinduespudser-app/internal/email"
	"github.com/andreasskyt/vinduespudser-app/internal/pricing"
	"github.com/andreasskyt/vinduespudser-app/internal/property"
	"github.com/andreasskyt/vinduespudser-app/internal/quote"
	"github.com/andreasskyt/vinduespudser-app/internal/render"
)

type frequencyOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type serviceOption struct {
	Key           string `json:"key"`
	RequiresCount bool   `json:"requires_count"`
}

type quoteFormResponse struct {
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Frequencies []frequencyOption `json:"frequencies"`
	Services    []serviceOption   `json:"services"`
}

// handleQuoteForm returns the descriptor a branded quote form is built from.
func (s *Server) handleQuoteForm(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	tenant, err := s.getActiveTenantBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "Siden findes ikke")
			return
		}
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}

	cfg := pricing.ParseConfigJSON(tenant.Pricing)

	res := quoteFormResponse{
		Slug:     tenant.Slug,
		Name:     tenant.Name,
		Services: make([]serviceOption, 0, len(cfg.Services)),
	}
	for _, f := range pricing.Frequencies {
		res.Frequencies = append(res.Frequencies, frequencyOption{Value: f, Label: quote.FrequencyLabel(f)})
	}
	for key, rule := range cfg.Services {
		res.Services = append(res.Services, serviceOption{Key: key, RequiresCount: rule.RequiresCount})
	}
	sort.Slice(res.Services, func(i, j int) bool { return res.Services[i].Key < res.Services[j].Key })

	writeJSON(w, http.StatusOK, res)
}

type submitServiceSelection struct {
	Count int `json:"count"`
}

type submitRequest struct {
	Name          string                            `json:"name"`
	Email         string                            `json:"email"`
	Phone         string                            `json:"phone"`
	AddressRaw    string                            `json:"address_raw"`
	DawaAddressID string                            `json:"dawa_address_id"`
	Frequency     string                            `json:"frequency"`
	WindowCount   float64                           `json:"window_count"`
	Services      map[string]submitServiceSelection `json:"services"`
}

type submitResponse struct {
	LeadID  string `json:"lead_id"`
	QuoteID string `json:"quote_id"`
	pricing.QuoteResult
	Frequency string `json:"frequency"`
	QuoteHTML string `json:"quote_html"`
}

// handleQuoteSubmit runs the full lead flow: validate, look up property data,
// price, persist lead and quote, then notify tenant and webhook off the
// request path.
func (s *Server) handleQuoteSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slug := chi.URLParam(r, "slug")
	tenant, err := s.getActiveTenantBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeErrorJSON(w, http.StatusNotFound, "resource_not_found", "Siden findes ikke")
			return
		}
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "db error")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	name := strings.TrimSpace(req.Name)
	mail := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.Phone)
	addressRaw := strings.TrimSpace(req.AddressRaw)
	if name == "" || mail == "" || phone == "" || addressRaw == "" {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_request",
			"Udfyld venligst navn, email, telefon og adresse.")
		return
	}

	frequency := req.Frequency
	if !quoteFrequencyValid(frequency) {
		frequency = pricing.FrequencyOneTime
	}

	selected := make(map[string]pricing.Selection, len(req.Services))
	for key, sel := range req.Services {
		selected[key] = pricing.Selection{Count: pricing.ClampCount(sel.Count)}
	}

	// Property lookup is best-effort; quoting always proceeds.
	attrs := property.FallbackAttributes()
	var rawBBR json.RawMessage
	dawaID := strings.TrimSpace(req.DawaAddressID)
	if dawaID != "" {
		if result, err := s.props.Lookup(ctx, dawaID); err != nil {
			log.Printf("property lookup failed: %v", err)
		} else if result != nil {
			attrs = result.Attributes
			rawBBR = result.RawBBR
		}
	}

	cfg := pricing.ParseConfigJSON(tenant.Pricing)
	assembled := quote.Assemble(attrs, cfg,
		quote.TenantInfo{Name: tenant.Name, QuoteTemplate: tenant.QuoteTemplate},
		frequency, selected, req.WindowCount)
	renderedQuote := assembled.RenderWithCustomer(tenant.QuoteTemplate, name, addressRaw)

	now := time.Now().UTC()
	leadID := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO leads (id, tenant_id, name, email, phone, address_raw, dawa_address_id, bbr_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`, leadID, tenant.ID, name, mail, phone, addressRaw, nullIfEmpty(dawaID), bbrOrNull(rawBBR), now)
	if err != nil {
		log.Println("insert lead error:", err)
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "failed to create lead")
		return
	}

	quoteID := uuid.New()
	_, err = s.db.Exec(ctx, `
		INSERT INTO quotes (id, lead_id, tenant_id, pricing_snapshot, calculated_price, window_count_estimated, frequency, quote_html, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
	`, quoteID, leadID, tenant.ID, pricingSnapshotJSON(tenant.Pricing),
		assembled.FinalPrice, assembled.EstimatedWindows, frequency, renderedQuote, now)
	if err != nil {
		log.Println("insert quote error:", err)
		writeErrorJSON(w, http.StatusInternalServerError, "db_error", "failed to create quote")
		return
	}

	frequencyLabel := quote.FrequencyLabel(frequency)

	msg := email.BuildLeadMessage(tenant.ContactEmail, email.LeadDetails{
		Name:             name,
		Email:            mail,
		Phone:            phone,
		Address:          render.NormalizeAddress(addressRaw),
		EstimatedWindows: assembled.EstimatedWindows,
		FinalPrice:       assembled.FinalPrice,
		FrequencyLabel:   frequencyLabel,
		QuoteHTML:        renderedQuote,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.email.Send(ctx, msg); err != nil {
			log.Printf("lead email failed: %v", err)
		}
	}()

	if tenant.WebhookURL != nil && strings.TrimSpace(*tenant.WebhookURL) != "" {
		url := *tenant.WebhookURL
		payload := map[string]any{
			"lead": map[string]any{
				"id":              leadID.String(),
				"name":            name,
				"email":           mail,
				"phone":           phone,
				"address_raw":     addressRaw,
				"dawa_address_id": dawaID,
			},
			"quote": map[string]any{
				"final_price":       assembled.FinalPrice,
				"estimated_windows": assembled.EstimatedWindows,
				"quote_html":        renderedQuote,
			},
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			s.notify.Send(ctx, url, payload)
		}()
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		LeadID:      leadID.String(),
		QuoteID:     quoteID.String(),
		QuoteResult: assembled.QuoteResult,
		Frequency:   frequencyLabel,
		QuoteHTML:   renderedQuote,
	})
}

func quoteFrequencyValid(f string) bool {
	for _, known := range pricing.Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

func bbrOrNull(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func pricingSnapshotJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
