package transmission

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/rcliao/meridian/internal/model"
)

func TestEvaluate(t *testing.T) {
	ev := NewEvaluator()
	tests := []struct {
		name     string
		text     string
		category string
		strength model.Strength
		assets   []string
	}{
		{"direct mention", "Bitcoin ETF flows surge as Fed holds", "monetary_policy", model.StrengthModerate, []string{"BTC"}},
		{"liquidity in monetary", "Fed signals tightening as yields climb", "rate_decision", model.StrengthWeak, []string{"BTC", "ETH"}},
		{"liquidity outside monetary", "Copper yield from new mine rises", "supply_shock", model.StrengthNone, []string{}},
		{"sanctions in geopolitical", "New sanctions target Russian banks", "sanctions", model.StrengthWeak, []string{"stablecoins"}},
		{"risk sentiment", "Markets turn risk-off after election", "", model.StrengthWeak, []string{"BTC", "ETH"}},
		{"nothing", "Gold miners report output", "supply_shock", model.StrengthNone, []string{}},
		{"empty", "", "monetary_policy", model.StrengthNone, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ev.Evaluate(tt.text, tt.category)
			if got.Strength != tt.strength {
				t.Errorf("expected strength %s, got %s", tt.strength, got.Strength)
			}
			if !reflect.DeepEqual(got.RelevantAssets, tt.assets) {
				t.Errorf("expected assets %v, got %v", tt.assets, got.RelevantAssets)
			}
			if got.Exists != (tt.strength != model.StrengthNone) {
				t.Errorf("exists=%v inconsistent with strength %s", got.Exists, got.Strength)
			}
			if !got.Exists && got.Path != "" {
				t.Errorf("expected empty path without transmission, got %q", got.Path)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		complete bool
		want     model.Transmission
	}{
		{
			"complete with aliases",
			`{"exists": true, "path": "Dollar strength weighs on  risk assets", "strength": "Medium", "relevant_assets": ["bitcoin", "ETH", "btc"]}`,
			true,
			model.Transmission{Exists: true, Path: "Dollar strength weighs on risk assets", Strength: model.StrengthModerate, RelevantAssets: []string{"BTC", "ETH"}},
		},
		{
			"assets as string under alternate key",
			`{"exists": true, "path": "Stablecoin demand", "strength": "weak", "assets": "tether, usdc"}`,
			true,
			model.Transmission{Exists: true, Path: "Stablecoin demand", Strength: model.StrengthWeak, RelevantAssets: []string{"USDT", "USDC"}},
		},
		{
			"assets extracted from path",
			`{"exists": true, "path": "Ethereum staking yields compete with bonds", "strength": "low"}`,
			true,
			model.Transmission{Exists: true, Path: "Ethereum staking yields compete with bonds", Strength: model.StrengthWeak, RelevantAssets: []string{"ETH"}},
		},
		{
			"no path is still populated",
			`{"exists": false, "path": "ignored", "strength": "strong", "relevant_assets": ["BTC"]}`,
			true,
			model.NoTransmission(),
		},
		{
			"unknown strength is incomplete",
			`{"exists": true, "path": "Some path", "strength": "huge"}`,
			false,
			model.Transmission{Exists: true, Path: "Some path", Strength: model.StrengthNone, RelevantAssets: []string{}},
		},
		{"exists as string", `{"exists": "yes", "path": "x", "strength": "weak"}`, false, model.NoTransmission()},
		{"missing", ``, false, model.NoTransmission()},
		{"null", `null`, false, model.NoTransmission()},
		{"not an object", `["BTC"]`, false, model.NoTransmission()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, complete := Normalize(json.RawMessage(tt.raw))
			if complete != tt.complete {
				t.Errorf("expected complete=%v, got %v", tt.complete, complete)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
			if got.RelevantAssets == nil {
				t.Error("relevant assets must never be nil")
			}
		})
	}
}

func TestResolve(t *testing.T) {
	ev := NewEvaluator()
	e := &model.Event{Headline: "Fed tightening lifts the dollar", Category: "monetary_policy"}

	got, fallback := ev.Resolve(json.RawMessage(`{"exists": true, "path": "ETF flows", "strength": "strong", "relevant_assets": ["BTC"]}`), e)
	if fallback || got.Strength != model.StrengthStrong || got.Path != "ETF flows" {
		t.Errorf("expected provider structure, got %+v (fallback=%v)", got, fallback)
	}

	got, fallback = ev.Resolve(json.RawMessage(`{"path": "half an answer"}`), e)
	if !fallback {
		t.Error("expected rule table for incomplete payload")
	}
	if !got.Exists || got.Strength != model.StrengthWeak || !reflect.DeepEqual(got.RelevantAssets, []string{"BTC", "ETH"}) {
		t.Errorf("expected liquidity rule, got %+v", got)
	}
}

func TestNormalizeStrength(t *testing.T) {
	tests := map[string]model.Strength{
		"Strong":   model.StrengthStrong,
		" medium ": model.StrengthModerate,
		"low":      model.StrengthWeak,
		"unknown":  model.StrengthNone,
		"":         model.StrengthNone,
		"extreme":  model.StrengthNone,
	}
	for in, want := range tests {
		if got := NormalizeStrength(in); got != want {
			t.Errorf("NormalizeStrength(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCustomRules(t *testing.T) {
	ev := NewEvaluator(Rule{
		Name:     "etf",
		Terms:    []string{"etf"},
		Path:     "Fund flows",
		Strength: model.StrengthStrong,
		Assets:   []string{"BTC"},
	})
	if got := ev.Evaluate("Spot ETF approved", ""); got.Strength != model.StrengthStrong {
		t.Errorf("expected custom rule to apply, got %+v", got)
	}
	if got := ev.Evaluate("Markets turn risk-off", ""); got.Exists {
		t.Errorf("expected default rules replaced, got %+v", got)
	}
}
