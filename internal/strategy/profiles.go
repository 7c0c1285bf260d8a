package strategy

import (
	"encoding/json"
	"fmt"
)

// Profile names a bundle of threshold/margin overrides.
type Profile int

const (
	ProfileBalanced Profile = iota
	ProfileAggressive
	ProfileConservative
	ProfileEmergency
)

func (p Profile) String() string {
	switch p {
	case ProfileBalanced:
		return "balanced"
	case ProfileAggressive:
		return "aggressive"
	case ProfileConservative:
		return "conservative"
	case ProfileEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

func ParseProfile(s string) (Profile, error) {
	switch s {
	case "balanced":
		return ProfileBalanced, nil
	case "aggressive":
		return ProfileAggressive, nil
	case "conservative":
		return ProfileConservative, nil
	case "emergency":
		return ProfileEmergency, nil
	default:
		return 0, fmt.Errorf("unknown strategy profile %q", s)
	}
}

func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProfile(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Overrides are the concrete tuning parameters a profile layers over the
// base configuration. TopTargets restricts ranking to the N most profitable
// targets when positive; only the emergency profile sets it.
type Overrides struct {
	ValueFraction     float64 `json:"value_fraction"`
	DefenseMargin     float64 `json:"defense_margin"`
	ExtractFraction   float64 `json:"extract_fraction"`
	DensityMultiplier float64 `json:"density_multiplier"`
	TopTargets        int     `json:"top_targets,omitempty"`
}

// Overrides returns the parameter bundle for the profile. Balanced carries
// no overrides: it runs the base configuration unchanged. Zero fields in the
// other bundles fall back to the base as well.
func (p Profile) Overrides() Overrides {
	switch p {
	case ProfileAggressive:
		return Overrides{
			ValueFraction:     0.85,
			DefenseMargin:     3,
			ExtractFraction:   0.40,
			DensityMultiplier: 1.0,
		}
	case ProfileConservative:
		return Overrides{
			ValueFraction:     0.60,
			DefenseMargin:     8,
			ExtractFraction:   0.15,
			DensityMultiplier: 1.25,
		}
	case ProfileEmergency:
		return Overrides{
			ValueFraction:     0.50,
			DefenseMargin:     10,
			ExtractFraction:   0.10,
			DensityMultiplier: 1.5,
			TopTargets:        5,
		}
	default:
		return Overrides{}
	}
}
