package quote

import (
	"github.com/andreasskyt/vinduespudser-app/internal/pricing"
	"github.com/andreasskyt/vinduespudser-app/internal/render"
)

// TenantInfo carries the tenant fields the assembler needs.
type TenantInfo struct {
	Name          string
	QuoteTemplate string
}

// Assembled is a full quote: the price breakdown plus the customer-facing
// display model, the rendered template and a verbatim snapshot of the pricing
// config for later audit.
type Assembled struct {
	pricing.QuoteResult

	QuoteHTML       string
	DisplayModel    map[string]any
	PricingSnapshot map[string]any
}

var frequencyLabels = map[string]string{
	pricing.FrequencyOneTime:   "Én gang",
	pricing.FrequencyQuarterly: "Kvartalsvis",
	pricing.FrequencyMonthly:   "Månedligt",
}

// FrequencyLabel maps a frequency tag to its da-DK display label. Unrecognized
// tags fall back to the one-time label.
func FrequencyLabel(frequency string) string {
	if label, ok := frequencyLabels[frequency]; ok {
		return label
	}
	return frequencyLabels[pricing.FrequencyOneTime]
}

// UntrustedFields names the display-model fields that carry customer-entered
// free text and must be escaped when rendered into tenant templates.
var UntrustedFields = render.NewFieldSet("customer_name", "address")

// Assemble evaluates the pricing rules and renders the tenant's quote template.
// Customer name and address start empty; the caller re-renders with
// RenderWithCustomer once the submitter's details are known.
func Assemble(attrs pricing.PropertyAttributes, cfg pricing.Config, tenant TenantInfo, frequency string, selected map[string]pricing.Selection, explicitWindows float64) Assembled {
	result := pricing.Evaluate(attrs, cfg, frequency, selected, explicitWindows)

	model := map[string]any{
		"customer_name": "",
		"address":       "",
		"window_count":  result.EstimatedWindows,
		"price":         result.FinalPrice,
		"frequency":     FrequencyLabel(frequency),
		"company_name":  tenant.Name,
	}

	return Assembled{
		QuoteResult:     result,
		QuoteHTML:       render.Render(tenant.QuoteTemplate, model, UntrustedFields),
		DisplayModel:    model,
		PricingSnapshot: cfg.Raw,
	}
}

// RenderWithCustomer re-renders the quote template with the submitter's name
// and normalized address filled into the display model.
func (a Assembled) RenderWithCustomer(template, customerName, address string) string {
	model := make(map[string]any, len(a.DisplayModel)+2)
	for k, v := range a.DisplayModel {
		model[k] = v
	}
	model["customer_name"] = customerName
	model["address"] = render.NormalizeAddress(address)
	return render.Render(template, model, UntrustedFields)
}
