package model

// Direction is the expected price direction for a topic.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// ValidDirections are the allowed impact directions.
var ValidDirections = map[Direction]bool{
	DirectionBullish: true,
	DirectionBearish: true,
	DirectionNeutral: true,
}

// Strength grades a transmission path.
type Strength string

const (
	StrengthStrong   Strength = "strong"
	StrengthModerate Strength = "moderate"
	StrengthWeak     Strength = "weak"
	StrengthNone     Strength = "none"
)

// ValidStrengths are the allowed transmission strengths.
var ValidStrengths = map[Strength]bool{
	StrengthStrong:   true,
	StrengthModerate: true,
	StrengthWeak:     true,
	StrengthNone:     true,
}

// NotProvided marks a mandatory field the reasoning provider failed to supply.
const NotProvided = "[not provided by reasoning provider]"

// CounterCasePlaceholder replaces a counter-case the provider omitted twice.
const CounterCasePlaceholder = "[counter-case not provided by reasoning provider]"

// Impact is the interpreted effect of an event on one topic.
type Impact struct {
	Direction Direction `json:"direction"`
	Magnitude string    `json:"magnitude"`
	Driver    string    `json:"driver"`
}

// Transmission describes whether and how an event reaches a secondary
// asset class. Every analyzed event carries a fully populated value.
type Transmission struct {
	Exists         bool     `json:"exists"`
	Path           string   `json:"path"`
	Strength       Strength `json:"strength"`
	RelevantAssets []string `json:"relevant_assets"`
}

// NoTransmission is the populated "no path" value.
func NoTransmission() Transmission {
	return Transmission{Exists: false, Path: "", Strength: StrengthNone, RelevantAssets: []string{}}
}

// Interpretation is derived, opinionated content about an event.
type Interpretation struct {
	Impacts      map[string]Impact `json:"metal_impacts"`
	Precedent    string            `json:"historical_precedent"`
	CounterCase  string            `json:"counter_case"`
	Transmission Transmission      `json:"crypto_transmission"`
}

// InterpretationResult is the validated output for one event. The two
// groups travel together but stay distinct types.
type InterpretationResult struct {
	RawFacts       []string       `json:"raw_facts"`
	Interpretation Interpretation `json:"interpretation"`
}
