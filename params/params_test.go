package params_test

import (
	"testing"

	"github.com/new-neon/sippet/params"
)

func TestParams_SetGet(t *testing.T) {
	t.Parallel()

	p := params.New()
	p.Set("Transport", "udp")

	v, ok := p.Get("transport")
	if !ok || v != "udp" {
		t.Fatalf("Get(%q) = %q, %v, want %q, true", "transport", v, ok, "udp")
	}
	if !p.Has("TRANSPORT") {
		t.Error("Has() should be case-insensitive")
	}
}

func TestParams_SetOverwritesInPlace(t *testing.T) {
	t.Parallel()

	p := params.New()
	p.Set("a", "1")
	p.Set("b", "2")
	p.Set("a", "3")

	if got := p.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Names() = %v, want [a b] (re-set must not reorder)", got)
	}
	v, _ := p.Get("a")
	if v != "3" {
		t.Fatalf("Get(a) = %q, want %q", v, "3")
	}
}

func TestParams_SetFlag_HasValueDistinguishesBareFromEmpty(t *testing.T) {
	t.Parallel()

	p := params.New()
	p.SetFlag("lr")
	p.Set("tag", "")

	if p.HasValue("lr") {
		t.Error("HasValue(lr) = true, want false for a bare flag")
	}
	if !p.Has("lr") {
		t.Error("Has(lr) = false, want true")
	}
	if !p.HasValue("tag") {
		t.Error("HasValue(tag) = false, want true for an explicit empty value")
	}
}

func TestParams_Remove(t *testing.T) {
	t.Parallel()

	p := params.New()
	p.Set("a", "1")
	p.Set("b", "2")
	p.Set("c", "3")
	p.Remove("b")

	if p.Has("b") {
		t.Error("b should be gone after Remove")
	}
	if got := p.Names(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Names() = %v, want [a c]", got)
	}
	// Removing from the middle must not corrupt the index for the
	// entries shifted down.
	v, ok := p.Get("c")
	if !ok || v != "3" {
		t.Fatalf("Get(c) after Remove(b) = %q, %v, want %q, true", v, ok, "3")
	}
}

func TestParams_Clone_IsIndependent(t *testing.T) {
	t.Parallel()

	p := params.New()
	p.Set("a", "1")
	p2 := p.Clone()
	p2.Set("a", "2")
	p2.Set("b", "3")

	v, _ := p.Get("a")
	if v != "1" {
		t.Fatalf("original mutated by clone: Get(a) = %q, want %q", v, "1")
	}
	if p.Has("b") {
		t.Error("original gained a param added only to the clone")
	}
}

func TestParams_Equal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b func() *params.Params
		want bool
	}{
		{
			name: "same names and values, case-insensitive value match",
			a:    func() *params.Params { p := params.New(); p.Set("transport", "UDP"); return p },
			b:    func() *params.Params { p := params.New(); p.Set("transport", "udp"); return p },
			want: true,
		},
		{
			name: "different length",
			a:    func() *params.Params { p := params.New(); p.Set("a", "1"); p.Set("b", "2"); return p },
			b:    func() *params.Params { p := params.New(); p.Set("a", "1"); return p },
			want: false,
		},
		{
			name: "missing on other side",
			a:    func() *params.Params { p := params.New(); p.Set("a", "1"); return p },
			b:    func() *params.Params { p := params.New(); p.Set("b", "1"); return p },
			want: false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := c.a().Equal(c.b()); got != c.want {
				t.Errorf("Equal() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestParams_String_QuotesValuesWithWhitespace(t *testing.T) {
	t.Parallel()

	p := params.New()
	p.Set("branch", "z9hG4bK776asdhds")
	p.SetFlag("lr")
	p.Set("early-only", "")
	p.Set("display", "Alice Smith")

	got := p.String()
	want := ";branch=z9hG4bK776asdhds;lr;early-only=;display=\"Alice Smith\""
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestParams_NilReceiver_BehavesEmpty(t *testing.T) {
	t.Parallel()

	var p *params.Params
	if p.Len() != 0 {
		t.Errorf("nil Params.Len() = %d, want 0", p.Len())
	}
	if p.Has("x") {
		t.Error("nil Params.Has() = true, want false")
	}
	if v, ok := p.Get("x"); ok || v != "" {
		t.Errorf("nil Params.Get() = %q, %v, want %q, false", v, ok, "")
	}
	if p.Names() != nil {
		t.Errorf("nil Params.Names() = %v, want nil", p.Names())
	}
}
