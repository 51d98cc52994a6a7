// Package transmission decides whether an event reaches crypto markets and
// normalizes the answer into one fully populated structure.
package transmission

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rcliao/meridian/internal/model"
	"github.com/rcliao/meridian/internal/scoring"
	"github.com/rcliao/meridian/internal/textutil"
)

var strengthAliases = map[string]model.Strength{
	"high":    model.StrengthStrong,
	"medium":  model.StrengthModerate,
	"low":     model.StrengthWeak,
	"unknown": model.StrengthNone,
}

var assetAliases = map[string]string{
	"bitcoin":     "BTC",
	"btc":         "BTC",
	"ethereum":    "ETH",
	"eth":         "ETH",
	"solana":      "SOL",
	"sol":         "SOL",
	"stablecoin":  "stablecoins",
	"stablecoins": "stablecoins",
	"usdt":        "USDT",
	"tether":      "USDT",
	"usdc":        "USDC",
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// Rule maps event text and category to a default transmission path.
type Rule struct {
	Name       string
	Terms      []string // any term must appear in the lower-cased text
	Categories []string // empty matches every category
	Path       string
	Strength   model.Strength
	Assets     []string
}

// DefaultRules is the fallback rule table, checked in order.
var DefaultRules = []Rule{
	{
		Name:       "liquidity",
		Terms:      []string{"liquidity", "rates", "rate", "yield", "dollar", "tightening", "easing"},
		Categories: []string{scoring.CategoryMonetaryPolicy, scoring.CategoryFinancialCrisis},
		Path:       "Liquidity and risk conditions can spill into crypto risk appetite.",
		Strength:   model.StrengthWeak,
		Assets:     []string{"BTC", "ETH"},
	},
	{
		Name:       "capital_controls",
		Terms:      []string{"sanction", "capital control", "controls", "restriction"},
		Categories: []string{scoring.CategoryGeopolitical},
		Path:       "Capital controls can raise stablecoin demand in affected regions.",
		Strength:   model.StrengthWeak,
		Assets:     []string{"stablecoins"},
	},
	{
		Name:     "risk_sentiment",
		Terms:    []string{"risk-off", "risk on", "risk-on", "risk aversion", "risk appetite"},
		Path:     "Risk sentiment shifts can influence crypto positioning.",
		Strength: model.StrengthWeak,
		Assets:   []string{"BTC", "ETH"},
	},
}

// Evaluator resolves transmission structures.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an evaluator. No rules means DefaultRules.
func NewEvaluator(rules ...Rule) *Evaluator {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Evaluator{rules: rules}
}

// Evaluate applies the rule table to event text. A direct asset mention
// wins with moderate strength; otherwise the first matching rule applies.
func (ev *Evaluator) Evaluate(text, category string) model.Transmission {
	text = strings.ToLower(text)
	if strings.TrimSpace(text) == "" {
		return model.NoTransmission()
	}
	if assets := ExtractAssets(text); len(assets) > 0 {
		return model.Transmission{
			Exists:         true,
			Path:           "Direct crypto linkage referenced in the event.",
			Strength:       model.StrengthModerate,
			RelevantAssets: assets,
		}
	}

	category = scoring.NormalizeCategory(category)
	for _, r := range ev.rules {
		if !r.appliesTo(category) || !textutil.ContainsAny(text, r.Terms) {
			continue
		}
		return model.Transmission{
			Exists:         true,
			Path:           r.Path,
			Strength:       r.Strength,
			RelevantAssets: append([]string{}, r.Assets...),
		}
	}
	return model.NoTransmission()
}

func (r Rule) appliesTo(category string) bool {
	if len(r.Categories) == 0 {
		return true
	}
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Resolve returns the provider's structure when it is complete and the
// rule-table result for the event otherwise. The second value reports
// whether the rule table was used.
func (ev *Evaluator) Resolve(raw json.RawMessage, e *model.Event) (model.Transmission, bool) {
	if t, ok := Normalize(raw); ok {
		return t, false
	}
	return ev.Evaluate(e.Text(), e.Category), true
}

// Normalize converts a provider payload into a populated structure. Unknown
// strengths become none and asset names are canonicalized. The second value
// is false when the payload is missing, is not an object, lacks a boolean
// exists, or claims a path without a usable strength and description.
func Normalize(raw json.RawMessage) (model.Transmission, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.NoTransmission(), false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.NoTransmission(), false
	}

	var exists *bool
	if v, ok := fields["exists"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			exists = &b
		}
	}
	var path, strength string
	json.Unmarshal(fields["path"], &path)
	json.Unmarshal(fields["strength"], &strength)
	path = textutil.CollapseSpace(path)

	assetsRaw := fields["relevant_assets"]
	if isEmptyJSON(assetsRaw) {
		assetsRaw = fields["assets"]
	}
	assets := normalizeAssets(assetsRaw)

	if exists == nil {
		return model.NoTransmission(), false
	}
	if !*exists {
		return model.NoTransmission(), true
	}

	t := model.Transmission{
		Exists:         true,
		Path:           path,
		Strength:       NormalizeStrength(strength),
		RelevantAssets: assets,
	}
	if len(t.RelevantAssets) == 0 {
		t.RelevantAssets = ExtractAssets(path)
	}
	if t.Path == "" || t.Strength == model.StrengthNone {
		return t, false
	}
	return t, true
}

// NormalizeStrength maps a strength or its alias to the enum, defaulting
// to none.
func NormalizeStrength(s string) model.Strength {
	s = strings.ToLower(strings.TrimSpace(s))
	if model.ValidStrengths[model.Strength(s)] {
		return model.Strength(s)
	}
	if alias, ok := strengthAliases[s]; ok {
		return alias
	}
	return model.StrengthNone
}

// ExtractAssets returns the crypto assets named in text, in order of first
// mention and without duplicates.
func ExtractAssets(text string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		asset, ok := assetAliases[tok]
		if !ok || seen[asset] {
			continue
		}
		seen[asset] = true
		out = append(out, asset)
	}
	return out
}

// normalizeAssets accepts a list of names or one comma-separated string.
func normalizeAssets(raw json.RawMessage) []string {
	var names []string
	var list []interface{}
	var joined string
	switch {
	case json.Unmarshal(raw, &list) == nil:
		for _, item := range list {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	case json.Unmarshal(raw, &joined) == nil:
		names = strings.Split(joined, ",")
	}

	out := []string{}
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if canon, ok := assetAliases[strings.ToLower(n)]; ok {
			n = canon
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", `""`:
		return true
	}
	return false
}
