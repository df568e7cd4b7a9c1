package render

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldSet names template fields whose values are end-user controlled and must
// be HTML-escaped on substitution. It is passed explicitly so new user-supplied
// fields can be added without touching the renderer.
type FieldSet map[string]struct{}

// NewFieldSet builds a FieldSet from field names.
func NewFieldSet(names ...string) FieldSet {
	set := make(FieldSet, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the characters that matter when embedding untrusted text
// into markup.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Render substitutes {{identifier}} placeholders in a template with values from
// data. Fields named in untrusted are escaped; everything else is substituted
// verbatim (tenant- or system-controlled values). Missing keys become empty
// strings. Single pass, no conditionals, no nesting.
func Render(template string, data map[string]any, untrusted FieldSet) string {
	if template == "" {
		return ""
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-2]
		v, ok := data[key]
		if !ok || v == nil {
			return ""
		}
		s := fmt.Sprint(v)
		if _, unsafe := untrusted[key]; unsafe {
			return EscapeHTML(s)
		}
		return s
	})
}

// NormalizeAddress removes empty comma-separated segments from a raw address,
// collapsing doubled separators like "Street 7, , 8000 City".
func NormalizeAddress(s string) string {
	parts := strings.Split(s, ",")
	kept := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, ", ")
}
