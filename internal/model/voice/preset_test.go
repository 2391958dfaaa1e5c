package voice

import "testing"

func TestCatalogShape(t *testing.T) {
	all := List()
	if len(all) != 6 {
		t.Fatalf("expected 6 presets, got %d", len(all))
	}

	tiers := map[string]int{}
	for _, p := range all {
		tiers[p.Tier]++
		if p.Name == "" || p.CostPerChar <= 0 {
			t.Errorf("preset %q incomplete: %+v", p.Key, p)
		}
	}
	for _, tier := range []string{"budget", "standard", "premium"} {
		if tiers[tier] != 2 {
			t.Errorf("expected 2 %s presets, got %d", tier, tiers[tier])
		}
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	if got := Resolve("no_such_preset"); got.Key != DefaultPreset {
		t.Errorf("expected default preset, got %q", got.Key)
	}
	if got := Resolve(""); got.Key != DefaultPreset {
		t.Errorf("expected default preset for empty key, got %q", got.Key)
	}
	if got := Resolve("budget_male"); got.Key != "budget_male" {
		t.Errorf("expected exact match, got %q", got.Key)
	}
}

func TestClampRate(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0.1, 0.5},
		{0.5, 0.5},
		{0.95, 0.95},
		{1.5, 1.5},
		{3.0, 1.5},
	}
	for _, c := range cases {
		if got := ClampRate(c.in); got != c.want {
			t.Errorf("ClampRate(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEffectiveRate(t *testing.T) {
	premium := Resolve("premium_male")
	if got := premium.EffectiveRate(0.8); got != 1.0 {
		t.Errorf("expected premium preset to pin rate at 1.0, got %v", got)
	}

	standard := Resolve("standard_male")
	if got := standard.EffectiveRate(0.8); got != 0.8 {
		t.Errorf("expected standard preset to honor rate, got %v", got)
	}
	if got := standard.EffectiveRate(2.2); got != 1.5 {
		t.Errorf("expected clamped rate, got %v", got)
	}
}
