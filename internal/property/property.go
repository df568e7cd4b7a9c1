package property

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/andreasskyt/vinduespudser-app/internal/pricing"
)

// Result is a normalized building-registry lookup. RawBBR keeps the registry
// payload verbatim for storage on the lead.
type Result struct {
	Attributes  pricing.PropertyAttributes
	Coordinates *Coordinates
	RawBBR      json.RawMessage
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Suggestion is one address-autocomplete hit.
type Suggestion struct {
	Text string `json:"text"`
	ID   string `json:"id"`
}

// Source abstracts the address/registry collaborators so handlers can be
// tested with a stub.
type Source interface {
	Lookup(ctx context.Context, addressOrID string) (*Result, error)
	Suggestions(ctx context.Context, query string) ([]Suggestion, error)
}

// FallbackAttributes is used when the lookup is unavailable or fails.
func FallbackAttributes() pricing.PropertyAttributes {
	return pricing.PropertyAttributes{BuildingType: "villa", AreaM2: 100, Floors: 1}
}

const (
	defaultDAWABaseURL = "https://api.dataforsyningen.dk"
	defaultBBRBaseURL  = "https://services.datafordeler.dk/BBR/BBRPublic/1/rest"
)

// Client talks to DAWA (addresses) and the BBR building registry.
type Client struct {
	httpClient  *http.Client
	dawaBaseURL string
	bbrBaseURL  string
	bbrUsername string
	bbrPassword string
}

// NewClient builds a registry client. BBR credentials may be empty, in which
// case building lookups are skipped and DAWA-only data is returned.
func NewClient(bbrUsername, bbrPassword string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		dawaBaseURL: defaultDAWABaseURL,
		bbrBaseURL:  defaultBBRBaseURL,
		bbrUsername: bbrUsername,
		bbrPassword: bbrPassword,
	}
}

// NewClientWithEndpoints is used by tests to point the client at stub servers.
func NewClientWithEndpoints(httpClient *http.Client, dawaBaseURL, bbrBaseURL, bbrUsername, bbrPassword string) *Client {
	return &Client{
		httpClient:  httpClient,
		dawaBaseURL: strings.TrimRight(dawaBaseURL, "/"),
		bbrBaseURL:  strings.TrimRight(bbrBaseURL, "/"),
		bbrUsername: bbrUsername,
		bbrPassword: bbrPassword,
	}
}

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Lookup resolves an access-address UUID or free-text address into normalized
// property attributes. Returns nil when nothing could be resolved; the caller
// falls back to FallbackAttributes.
func (c *Client) Lookup(ctx context.Context, addressOrID string) (*Result, error) {
	id := strings.TrimSpace(addressOrID)
	if id == "" {
		return nil, nil
	}
	if !uuidRe.MatchString(strings.ToLower(id)) {
		resolved, err := c.resolveAccessAddressID(ctx, id)
		if err != nil {
			return nil, err
		}
		if resolved == "" {
			return nil, nil
		}
		id = resolved
	}

	access, err := c.fetchAccessAddress(ctx, id)
	if err != nil {
		return nil, err
	}

	var coords *Coordinates
	if access != nil && len(access.Adgangspunkt.Koordinater) >= 2 {
		coords = &Coordinates{
			Lat: access.Adgangspunkt.Koordinater[1],
			Lng: access.Adgangspunkt.Koordinater[0],
		}
	}

	if attrs, raw, ok := c.fetchBBR(ctx, id); ok {
		return &Result{Attributes: attrs, Coordinates: coords, RawBBR: raw}, nil
	}

	// No registry data: fall back to the access-address floor area when present.
	attrs := pricing.PropertyAttributes{BuildingType: "parcelhus", AreaM2: 80, Floors: 1}
	if access != nil {
		if f, ok := toNumber(access.Etageareal); ok && f > 0 {
			attrs.AreaM2 = f
		}
	}
	return &Result{Attributes: attrs, Coordinates: coords}, nil
}

// Suggestions proxies DAWA's autocomplete, keeping only access-address hits.
func (c *Client) Suggestions(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 3 {
		return []Suggestion{}, nil
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "adresse")
	q.Set("caretpos", "0")
	q.Set("forskellige", "1")

	var items []struct {
		Type  string `json:"type"`
		Tekst string `json:"tekst"`
		Data  struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, c.dawaBaseURL+"/autocomplete?"+q.Encode(), &items); err != nil {
		return nil, fmt.Errorf("dawa autocomplete: %w", err)
	}

	out := make([]Suggestion, 0, len(items))
	for _, it := range items {
		if it.Type != "adgangsadresse" || it.Data.ID == "" {
			continue
		}
		out = append(out, Suggestion{Text: it.Tekst, ID: it.Data.ID})
	}
	return out, nil
}

func (c *Client) resolveAccessAddressID(ctx context.Context, address string) (string, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("per_side", "1")

	var items []struct {
		Adgangsadresse struct {
			ID string `json:"id"`
		} `json:"adgangsadresse"`
	}
	if err := c.getJSON(ctx, c.dawaBaseURL+"/adresser?"+q.Encode(), &items); err != nil {
		return "", fmt.Errorf("dawa adresser: %w", err)
	}
	if len(items) == 0 {
		return "", nil
	}
	return items[0].Adgangsadresse.ID, nil
}

type accessAddress struct {
	Etageareal   any `json:"etageareal"`
	Adgangspunkt struct {
		Koordinater []float64 `json:"koordinater"`
	} `json:"adgangspunkt"`
}

func (c *Client) fetchAccessAddress(ctx context.Context, id string) (*accessAddress, error) {
	var access accessAddress
	if err := c.getJSON(ctx, c.dawaBaseURL+"/adgangsadresser/"+url.PathEscape(id), &access); err != nil {
		return nil, fmt.Errorf("dawa adgangsadresse: %w", err)
	}
	return &access, nil
}

// fetchBBR queries the building registry. Missing credentials or any fetch
// failure reports ok=false; BBR is strictly best-effort.
func (c *Client) fetchBBR(ctx context.Context, accessAddressID string) (pricing.PropertyAttributes, json.RawMessage, bool) {
	if c.bbrUsername == "" || c.bbrPassword == "" {
		return pricing.PropertyAttributes{}, nil, false
	}

	q := url.Values{}
	q.Set("husnummer", accessAddressID)
	q.Set("status", "6")
	q.Set("username", c.bbrUsername)
	q.Set("password", c.bbrPassword)

	var raw json.RawMessage
	if err := c.getJSON(ctx, c.bbrBaseURL+"/bygning?"+q.Encode(), &raw); err != nil {
		return pricing.PropertyAttributes{}, nil, false
	}
	return normalizeBBR(raw), raw, true
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

type bbrBuilding struct {
	Number       any `json:"byg007Bygningsnummer"`
	Use          any `json:"byg021BygningensAnvendelse"`
	TotalAreaM2  any `json:"byg038SamletBygningsareal"`
	Floors       any `json:"byg054AntalEtager"`
	BuiltYear    any `json:"byg026Opførelsesår"`
	BuiltYearAlt any `json:"byg026Opfoerelsesaar"`
}

// normalizeBBR maps a registry payload (either a bare array or a
// {features: []} wrapper) onto property attributes, defaulting every field.
func normalizeBBR(raw json.RawMessage) pricing.PropertyAttributes {
	var buildings []bbrBuilding
	if err := json.Unmarshal(raw, &buildings); err != nil {
		var wrapper struct {
			Features []bbrBuilding `json:"features"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return pricing.PropertyAttributes{BuildingType: "villa", AreaM2: 80, Floors: 1}
		}
		buildings = wrapper.Features
	}
	if len(buildings) == 0 {
		return pricing.PropertyAttributes{BuildingType: "villa", AreaM2: 80, Floors: 1}
	}

	// Prefer building number 1, the main building on the parcel.
	chosen := buildings[0]
	for _, b := range buildings {
		if n, ok := toNumber(b.Number); ok && n == 1 {
			chosen = b
			break
		}
	}

	attrs := pricing.PropertyAttributes{
		BuildingType: mapBBRUseCode(chosen.Use),
		AreaM2:       80,
		Floors:       1,
	}
	if f, ok := toNumber(chosen.TotalAreaM2); ok && f > 0 {
		attrs.AreaM2 = f
	}
	if f, ok := toNumber(chosen.Floors); ok {
		if n := int(f + 0.5); n > 1 {
			attrs.Floors = n
		}
	}
	year := chosen.BuiltYear
	if year == nil {
		year = chosen.BuiltYearAlt
	}
	if f, ok := toNumber(year); ok {
		y := int(f)
		attrs.BuiltYear = &y
	}
	return attrs
}

var bbrUseCodes = map[string]string{
	"110": "stuehus",
	"120": "parcelhus",
	"130": "rækkehus",
	"140": "etagebolig",
}

func mapBBRUseCode(code any) string {
	var key string
	switch t := code.(type) {
	case string:
		key = strings.TrimSpace(t)
	case float64:
		key = fmt.Sprintf("%.0f", t)
	default:
		key = strings.TrimSpace(fmt.Sprint(code))
	}
	if mapped, ok := bbrUseCodes[key]; ok {
		return mapped
	}
	return "parcelhus"
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		var n json.Number = json.Number(strings.TrimSpace(t))
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
