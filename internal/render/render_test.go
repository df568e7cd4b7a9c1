package render

import "testing"

func TestRender_EscapesUntrustedFields(t *testing.T) {
	untrusted := NewFieldSet("customer_name", "address")
	got := Render("Hi {{customer_name}}", map[string]any{"customer_name": "<b>X</b>"}, untrusted)
	if got != "Hi &lt;b&gt;X&lt;/b&gt;" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_TrustedFieldsVerbatim(t *testing.T) {
	got := Render("{{price}}", map[string]any{"price": 500}, NewFieldSet("customer_name"))
	if got != "500" {
		t.Fatalf("got %q", got)
	}

	got = Render("{{note}}", map[string]any{"note": "<em>tilbud</em>"}, NewFieldSet("customer_name"))
	if got != "<em>tilbud</em>" {
		t.Fatalf("tenant-controlled markup must pass through, got %q", got)
	}
}

func TestRender_MissingAndNilKeysBecomeEmpty(t *testing.T) {
	got := Render("a{{missing}}b{{gone}}c", map[string]any{"gone": nil}, nil)
	if got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_EmptyTemplate(t *testing.T) {
	if got := Render("", map[string]any{"x": 1}, nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_EscapesQuotesAndAmpersand(t *testing.T) {
	untrusted := NewFieldSet("address")
	got := Render("{{address}}", map[string]any{"address": `H&M "huset" 'A'`}, untrusted)
	if got != "H&amp;M &quot;huset&quot; &#39;A&#39;" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_IgnoresMalformedPlaceholders(t *testing.T) {
	got := Render("{{ spaced }} {{price}}", map[string]any{"price": 45, "spaced": 1}, nil)
	if got != "{{ spaced }} 45" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Street 7, , 8000 City", "Street 7, 8000 City"},
		{"Åhusene 7,  , 8000 Aarhus C", "Åhusene 7, 8000 Aarhus C"},
		{"", ""},
		{" , , ", ""},
		{"Enkelt", "Enkelt"},
	}
	for _, c := range cases {
		if got := NormalizeAddress(c.in); got != c.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
