package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/andreasskyt/vinduespudser-app/internal/db"
	"github.com/andreasskyt/vinduespudser-app/internal/pricing"
	"github.com/andreasskyt/vinduespudser-app/internal/property"
)

func seedTenant(t *testing.T, h http.Handler, webhookURL string) Tenant {
	t.Helper()
	payload := map[string]any{
		"slug":          "quote-test-" + uuid.New().String()[:8],
		"name":          "Pudser ApS",
		"contact_email": "firma@example.dk",
		"pricing": map[string]any{
			"min_price":                  399,
			"price_per_window":           45,
			"second_floor_surcharge_pct": 0.15,
			"frequency_discounts":        map[string]any{"one_time": 0, "quarterly": 0.05, "monthly": 0.1},
			"services": map[string]any{
				"skylights": map[string]any{"surcharge_each": 40, "requires_count": true},
			},
		},
		"quote_template": "Kære {{customer_name}}: {{window_count}} vinduer, {{price}} kr. ({{frequency}})",
	}
	if webhookURL != "" {
		payload["webhook_url"] = webhookURL
	}
	rr := adminRequest(t, h, http.MethodPost, "/admin/tenants", payload)
	if rr.Code != http.StatusCreated {
		t.Fatalf("seed tenant failed: %d %s", rr.Code, rr.Body.String())
	}
	var tenant Tenant
	if err := json.Unmarshal(rr.Body.Bytes(), &tenant); err != nil {
		t.Fatalf("unmarshal tenant: %v", err)
	}
	return tenant
}

func TestQuoteFormIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
		return
	}

	pool, err := db.NewPool(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()

	h := New(pool, Options{AdminKey: testAdminKey, Property: &stubSource{}, Email: &captureSender{}})
	tenant := seedTenant(t, h, "")

	req := httptest.NewRequest(http.MethodGet, "/"+tenant.Slug, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var form quoteFormResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &form); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if form.Name != "Pudser ApS" || len(form.Frequencies) != 3 {
		t.Fatalf("unexpected form: %+v", form)
	}
	if len(form.Services) != 1 || form.Services[0].Key != "skylights" || !form.Services[0].RequiresCount {
		t.Fatalf("unexpected services: %+v", form.Services)
	}

	// Unknown slug is a 404.
	req = httptest.NewRequest(http.MethodGet, "/findes-ikke-"+uuid.New().String()[:8], nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestQuoteSubmitIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
		return
	}

	pool, err := db.NewPool(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()

	var webhookMu sync.Mutex
	var webhookBody []byte
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		webhookMu.Lock()
		webhookBody = buf.Bytes()
		webhookMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	src := &stubSource{result: &property.Result{
		Attributes: pricing.PropertyAttributes{BuildingType: "villa", AreaM2: 100, Floors: 1},
		RawBBR:     json.RawMessage(`[{"byg007Bygningsnummer":1}]`),
	}}
	sender := &captureSender{}
	h := New(pool, Options{AdminKey: testAdminKey, Property: src, Email: sender})
	tenant := seedTenant(t, h, webhook.URL)

	submit := map[string]any{
		"name":            "Jens Hansen",
		"email":           "jens@example.dk",
		"phone":           "12345678",
		"address_raw":     "Åhusene 7, , 8000 Aarhus C",
		"dawa_address_id": "0a3f507a-b2e6-32b8-e044-0003ba298018",
		"frequency":       "one_time",
		"window_count":    16,
	}
	body, _ := json.Marshal(submit)
	req := httptest.NewRequest(http.MethodPost, "/"+tenant.Slug+"/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d; body=%s", rr.Code, rr.Body.String())
	}

	var res submitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.FinalPrice != 720 || res.EstimatedWindows != 16 {
		t.Fatalf("unexpected quote: %+v", res)
	}
	if res.Frequency != "Én gang" {
		t.Fatalf("frequency label = %q", res.Frequency)
	}
	if !strings.Contains(res.QuoteHTML, "Jens Hansen") || !strings.Contains(res.QuoteHTML, "720") {
		t.Fatalf("rendered quote missing fields: %q", res.QuoteHTML)
	}

	// Lead and quote rows were written.
	var leadCount, quoteCount int
	if err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM leads WHERE id = $1`, res.LeadID).Scan(&leadCount); err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM quotes WHERE id = $1 AND lead_id = $2`, res.QuoteID, res.LeadID).Scan(&quoteCount); err != nil {
		t.Fatalf("count quotes: %v", err)
	}
	if leadCount != 1 || quoteCount != 1 {
		t.Fatalf("expected persisted lead+quote, got %d/%d", leadCount, quoteCount)
	}

	// Email and webhook run off the request path; give them a moment.
	deadline := time.Now().Add(3 * time.Second)
	for {
		webhookMu.Lock()
		delivered := len(webhookBody) > 0
		webhookMu.Unlock()
		if delivered && len(sender.messages()) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notifications not delivered: email=%d webhook=%v", len(sender.messages()), delivered)
		}
		time.Sleep(50 * time.Millisecond)
	}

	msgs := sender.messages()
	if msgs[0].To != "firma@example.dk" || !strings.Contains(msgs[0].Subject, "Jens Hansen") {
		t.Fatalf("unexpected email: %+v", msgs[0])
	}

	var hook struct {
		Lead  map[string]any `json:"lead"`
		Quote map[string]any `json:"quote"`
	}
	webhookMu.Lock()
	err = json.Unmarshal(webhookBody, &hook)
	webhookMu.Unlock()
	if err != nil {
		t.Fatalf("unmarshal webhook: %v", err)
	}
	if hook.Lead["name"] != "Jens Hansen" || hook.Quote["final_price"] != float64(720) {
		t.Fatalf("unexpected webhook payload: %+v", hook)
	}
}

func TestQuoteSubmitValidationIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
		return
	}

	pool, err := db.NewPool(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()

	h := New(pool, Options{AdminKey: testAdminKey, Property: &stubSource{}, Email: &captureSender{}})
	tenant := seedTenant(t, h, "")

	body, _ := json.Marshal(map[string]any{"name": "Jens"}) // missing email/phone/address
	req := httptest.NewRequest(http.MethodPost, "/"+tenant.Slug+"/submit", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d; body=%s", rr.Code, rr.Body.String())
	}
	var e stdError
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if e.Error.Code != "invalid_request" {
		t.Fatalf("unexpected error code: %s", e.Error.Code)
	}
}
