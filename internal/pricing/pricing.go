package pricing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Supported visit frequencies. The discount for each comes from tenant config.
const (
	FrequencyOneTime   = "one_time"
	FrequencyQuarterly = "quarterly"
	FrequencyMonthly   = "monthly"
)

// Frequencies lists the accepted frequency tags in display order.
var Frequencies = []string{FrequencyOneTime, FrequencyQuarterly, FrequencyMonthly}

// Named defaults used when a tenant config value is missing or unusable.
const (
	DefaultMinPrice                = 399
	DefaultPricePerWindow          = 45
	DefaultSecondFloorSurchargePct = 0.15

	defaultAreaM2 = 80
	defaultFloors = 1

	// Window counts entered by the customer are bounded to keep quotes sane.
	MinExplicitWindows = 1
	MaxExplicitWindows = 30

	// Per-service counts (e.g. skylights) accepted from the form.
	MaxServiceCount = 10
)

// PropertyAttributes describes the building a quote is computed for.
// Values come from a registry lookup or from fixed fallbacks.
type PropertyAttributes struct {
	BuildingType string
	AreaM2       float64
	Floors       int
	BuiltYear    *int
}

// RuleKind discriminates the service surcharge variants.
type RuleKind int

const (
	RuleFlat RuleKind = iota
	RulePercent
	RulePerWindow
	RulePerCount
)

// ServiceRule is a tagged variant: exactly one surcharge semantics per rule.
type ServiceRule struct {
	Kind          RuleKind
	Amount        float64
	RequiresCount bool
}

// Selection describes how a customer picked a service. Count only matters for
// count-based rules and is expected to be pre-clamped to [0, MaxServiceCount].
type Selection struct {
	Count int
}

// ClampCount bounds a raw per-service count to the accepted range.
func ClampCount(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxServiceCount {
		return MaxServiceCount
	}
	return n
}

// Config is a tenant's pricing configuration after ingestion. Raw keeps the
// verbatim decoded document for snapshotting alongside stored quotes.
type Config struct {
	MinPrice                float64
	PricePerWindow          float64
	SecondFloorSurchargePct float64
	FrequencyDiscounts      map[string]float64
	Services                map[string]ServiceRule

	Raw map[string]any
}

// QuoteResult holds the computed price breakdown. Monetary values are whole
// currency units, rounded.
type QuoteResult struct {
	EstimatedWindows  int            `json:"estimated_windows"`
	BasePrice         int            `json:"base_price"`
	ServiceSurcharges map[string]int `json:"service_surcharges"`
	TotalSurcharges   int            `json:"total_surcharges"`
	FrequencyDiscount int            `json:"frequency_discount"`
	FinalPrice        int            `json:"final_price"`
}

// ParseConfigJSON ingests a tenant pricing document. Malformed or empty input
// yields a config where every field carries its default.
func ParseConfigJSON(raw []byte) Config {
	var m map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return ParseConfig(m)
}

// ParseConfig ingests an already-decoded pricing document. All defaulting
// happens here so the policy is auditable in one place; consumers downstream
// never see a missing or malformed value.
func ParseConfig(m map[string]any) Config {
	cfg := Config{
		MinPrice:                numberOr(get(m, "min_price"), DefaultMinPrice),
		PricePerWindow:          numberOr(get(m, "price_per_window"), DefaultPricePerWindow),
		SecondFloorSurchargePct: numberOr(get(m, "second_floor_surcharge_pct"), DefaultSecondFloorSurchargePct),
		FrequencyDiscounts:      map[string]float64{},
		Services:                map[string]ServiceRule{},
		Raw:                     m,
	}

	if discounts, ok := get(m, "frequency_discounts").(map[string]any); ok {
		for freq, v := range discounts {
			cfg.FrequencyDiscounts[freq] = numberOr(v, 0)
		}
	}

	if services, ok := get(m, "services").(map[string]any); ok {
		for key, v := range services {
			doc, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if rule, ok := parseServiceRule(doc); ok {
				cfg.Services[key] = rule
			}
		}
	}

	return cfg
}

// DefaultConfigMap returns the pricing document new tenants start from.
func DefaultConfigMap() map[string]any {
	return map[string]any{
		"min_price":                  DefaultMinPrice,
		"price_per_window":           DefaultPricePerWindow,
		"second_floor_surcharge_pct": DefaultSecondFloorSurchargePct,
		"frequency_discounts": map[string]any{
			FrequencyOneTime:   0,
			FrequencyQuarterly: 0.05,
			FrequencyMonthly:   0.1,
		},
	}
}

// parseServiceRule maps a rule document onto the variant type. Documents with
// no recognized surcharge tag are dropped so Evaluate never sees an unhandled
// kind. The first matching tag wins.
func parseServiceRule(doc map[string]any) (ServiceRule, bool) {
	if v, ok := doc["surcharge_flat"]; ok {
		return ServiceRule{Kind: RuleFlat, Amount: numberOr(v, 0)}, true
	}
	if v, ok := doc["surcharge_pct"]; ok {
		return ServiceRule{Kind: RulePercent, Amount: numberOr(v, 0)}, true
	}
	if v, ok := doc["surcharge_per_window"]; ok {
		return ServiceRule{Kind: RulePerWindow, Amount: numberOr(v, 0)}, true
	}
	if v, ok := doc["surcharge_each"]; ok {
		requires, _ := doc["requires_count"].(bool)
		return ServiceRule{Kind: RulePerCount, Amount: numberOr(v, 0), RequiresCount: requires}, true
	}
	return ServiceRule{}, false
}

// EstimateWindowCount maps building attributes to an estimated window count.
// Always returns a usable integer >= 1 via defaulting.
func EstimateWindowCount(attrs PropertyAttributes) int {
	base, ok := baseWindowsByType[attrs.BuildingType]
	if !ok {
		base = 12
	}

	// Registry area/floor figures for multi-unit buildings describe the whole
	// building, not one unit, so they must not scale the estimate.
	if attrs.BuildingType == "etagebolig" || attrs.BuildingType == "kollegium" {
		return base
	}

	area := attrs.AreaM2
	if area <= 0 {
		area = defaultAreaM2
	}
	floors := attrs.Floors
	if floors < 1 {
		floors = defaultFloors
	}

	areaFactor := clamp(area/100, 0.7, 1.5)
	floorBonus := float64(floors-1) * 4
	return int(math.Round(float64(base)*areaFactor + floorBonus))
}

var baseWindowsByType = map[string]int{
	"villa":      16,
	"parcelhus":  14,
	"rækkehus":   12,
	"stuehus":    12,
	"etagebolig": 8,
	"kollegium":  6,
}

// Evaluate computes a full quote. Pure function of its inputs; rounding
// happens at fixed points so results are stable.
//
// explicitWindows below MinExplicitWindows means "not provided" and triggers
// the estimator.
func Evaluate(attrs PropertyAttributes, cfg Config, frequency string, selected map[string]Selection, explicitWindows float64) QuoteResult {
	windows := resolveWindows(attrs, explicitWindows)

	basePrice := float64(windows) * cfg.PricePerWindow
	if attrs.Floors > 1 {
		// Surcharge computed on the pre-surcharge base, applied once and folded
		// into base rather than reported as a line item.
		basePrice += math.Round(basePrice * cfg.SecondFloorSurchargePct)
	}

	surcharges := map[string]int{}
	total := 0
	for key, sel := range selected {
		rule, ok := cfg.Services[key]
		if !ok {
			// Unknown or removed services never fault a quote.
			continue
		}

		var amount float64
		switch rule.Kind {
		case RuleFlat:
			amount = rule.Amount
		case RulePercent:
			amount = math.Round(basePrice * rule.Amount)
		case RulePerWindow:
			amount = rule.Amount * float64(windows)
		case RulePerCount:
			amount = rule.Amount * float64(sel.Count)
		}

		if amount > 0 {
			rounded := int(math.Round(amount))
			surcharges[key] = rounded
			total += rounded
		}
	}

	subtotal := basePrice + float64(total)
	discountPct := cfg.FrequencyDiscounts[frequency]
	discount := math.Round(subtotal * discountPct)

	// Floor is applied after the discount: a heavily discounted quote is
	// raised back up to min price, never below it.
	final := math.Max(cfg.MinPrice, subtotal-discount)

	return QuoteResult{
		EstimatedWindows:  windows,
		BasePrice:         int(math.Round(basePrice)),
		ServiceSurcharges: surcharges,
		TotalSurcharges:   total,
		FrequencyDiscount: int(discount),
		FinalPrice:        int(math.Round(final)),
	}
}

func resolveWindows(attrs PropertyAttributes, explicit float64) int {
	if explicit >= MinExplicitWindows {
		n := math.Round(clamp(explicit, MinExplicitWindows, MaxExplicitWindows))
		return int(n)
	}
	return EstimateWindowCount(attrs)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func get(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

// numberOr coerces a decoded JSON value to float64, falling back to def when
// the value is absent, non-numeric or zero. Zero falls back on purpose:
// tenant configs treat an explicit 0 the same as unset.
func numberOr(v any, def float64) float64 {
	f, ok := toNumber(v)
	if !ok || f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
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
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
