package server

import "testing"

func TestNormalizeSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Pudser Firma", "pudser-firma"},
		{"  Mit  Firma  ", "mit-firma"},
		{"allerede-ok", "allerede-ok"},
		{"MED\tTABS", "med-tabs"},
	}
	for _, c := range cases {
		if got := normalizeSlug(c.in); got != c.want {
			t.Errorf("normalizeSlug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCoerceTenantField(t *testing.T) {
	if _, ok := coerceTenantField("active", "true"); ok {
		t.Fatal("string must not coerce to active")
	}
	if v, ok := coerceTenantField("active", true); !ok || v != true {
		t.Fatal("bool active rejected")
	}

	if _, ok := coerceTenantField("pricing", "not an object"); ok {
		t.Fatal("non-object pricing must be dropped")
	}
	v, ok := coerceTenantField("pricing", map[string]any{"min_price": 450})
	if !ok {
		t.Fatal("object pricing rejected")
	}
	if s, _ := v.(string); s != `{"min_price":450}` {
		t.Fatalf("pricing serialized as %q", v)
	}

	if v, ok := coerceTenantField("webhook_url", nil); !ok || v != (*string)(nil) {
		t.Fatal("nil webhook_url must clear the column")
	}
	if v, ok := coerceTenantField("webhook_url", "  "); !ok || v.(*string) != nil {
		t.Fatal("blank webhook_url must clear the column")
	}

	if _, ok := coerceTenantField("slug", "   "); ok {
		t.Fatal("blank slug must be dropped")
	}
	if v, ok := coerceTenantField("slug", "Nyt Navn"); !ok || v != "nyt-navn" {
		t.Fatalf("slug not normalized: %v", v)
	}

	if v, ok := coerceTenantField("name", "  Pudser ApS  "); !ok || v != "Pudser ApS" {
		t.Fatalf("name not trimmed: %v", v)
	}
}
