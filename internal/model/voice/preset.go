package voice

// Preset describes one selectable interviewer voice: a quality tier and a
// gender, with the provider voice name and per-character synthesis cost.
type Preset struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	DisplayName    string  `json:"display_name"`
	Tier           string  `json:"tier"`
	Gender         string  `json:"gender"`
	CostPerChar    float64 `json:"cost_per_char"`
	HourlyEstimate string  `json:"hourly_estimate"`
	SupportsRate   bool    `json:"supports_rate"`
}

// DefaultPreset is used whenever a request omits or misnames a preset.
const DefaultPreset = "premium_female"

// DefaultSpeechRate is slightly slower than natural speed, which field
// testing showed works better for older interviewees.
const DefaultSpeechRate = 0.95

// presets is the fixed catalog: three tiers, two genders each.
var presets = map[string]Preset{
	"budget_female": {
		Key:            "budget_female",
		Name:           "en-US-Wavenet-F",
		DisplayName:    "Budget - Female",
		Tier:           "budget",
		Gender:         "female",
		CostPerChar:    0.000004,
		HourlyEstimate: "$0.15/hour",
		SupportsRate:   true,
	},
	"budget_male": {
		Key:            "budget_male",
		Name:           "en-US-Wavenet-D",
		DisplayName:    "Budget - Male",
		Tier:           "budget",
		Gender:         "male",
		CostPerChar:    0.000004,
		HourlyEstimate: "$0.15/hour",
		SupportsRate:   true,
	},
	"standard_female": {
		Key:            "standard_female",
		Name:           "en-US-Neural2-F",
		DisplayName:    "Standard - Female",
		Tier:           "standard",
		Gender:         "female",
		CostPerChar:    0.000016,
		HourlyEstimate: "$0.50/hour",
		SupportsRate:   true,
	},
	"standard_male": {
		Key:            "standard_male",
		Name:           "en-US-Neural2-D",
		DisplayName:    "Standard - Male",
		Tier:           "standard",
		Gender:         "male",
		CostPerChar:    0.000016,
		HourlyEstimate: "$0.50/hour",
		SupportsRate:   true,
	},
	// Premium voices do not honor a speaking-rate parameter.
	"premium_female": {
		Key:            "premium_female",
		Name:           "en-US-Chirp3-HD-Kore",
		DisplayName:    "Premium - Female",
		Tier:           "premium",
		Gender:         "female",
		CostPerChar:    0.00003,
		HourlyEstimate: "$1.00/hour",
		SupportsRate:   false,
	},
	"premium_male": {
		Key:            "premium_male",
		Name:           "en-US-Chirp3-HD-Charon",
		DisplayName:    "Premium - Male",
		Tier:           "premium",
		Gender:         "male",
		CostPerChar:    0.00003,
		HourlyEstimate: "$1.00/hour",
		SupportsRate:   false,
	},
}

// Lookup returns the preset for key.
func Lookup(key string) (Preset, bool) {
	p, ok := presets[key]
	return p, ok
}

// Resolve returns the preset for key, falling back to DefaultPreset when the
// key is unknown or empty.
func Resolve(key string) Preset {
	if p, ok := presets[key]; ok {
		return p
	}
	return presets[DefaultPreset]
}

// List returns all presets. Order is not significant.
func List() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	return out
}

// ClampRate bounds a requested speaking rate to the supported range.
func ClampRate(rate float64) float64 {
	if rate < 0.5 {
		return 0.5
	}
	if rate > 1.5 {
		return 1.5
	}
	return rate
}

// EffectiveRate is the rate actually sent to the synthesizer: presets that
// ignore rate always normalize to 1.0 so cache fingerprints stay stable.
func (p Preset) EffectiveRate(rate float64) float64 {
	if !p.SupportsRate {
		return 1.0
	}
	return ClampRate(rate)
}
