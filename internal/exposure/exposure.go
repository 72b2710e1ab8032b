// Package exposure turns a window of readings into a cumulative exposure index,
// a profile-weighted risk value, a risk level and a projection of when the unsafe
// level will be reached.
package exposure

import (
	"errors"
	"fmt"
	"math"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

// Breakpoints of the risk classification. UnsafeThreshold is also the target of
// TimeToUnsafe.
const (
	ModerateThreshold = 200.0
	UnsafeThreshold   = 400.0
)

// MinSamples is the smallest window with a meaningful exposure index.
const MinSamples = 2

var ErrUnknownProfile = errors.New("unknown risk profile")

// RiskProfile selects the vulnerability multiplier applied to the exposure index.
type RiskProfile string

const (
	ProfileNormal  RiskProfile = "normal"
	ProfileAsthma  RiskProfile = "asthma"
	ProfileElderly RiskProfile = "elderly"
	ProfileChild   RiskProfile = "child"
)

var vulnerabilityFactor = map[RiskProfile]float64{
	ProfileNormal:  1.0,
	ProfileAsthma:  1.4,
	ProfileElderly: 1.3,
	ProfileChild:   1.2,
}

// VulnerabilityFactor returns the multiplier for p.
func VulnerabilityFactor(p RiskProfile) (float64, error) {
	factor, ok := vulnerabilityFactor[p]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProfile, p)
	}
	return factor, nil
}

// ParseRiskProfile validates a profile tag. It never falls back to a default.
func ParseRiskProfile(s string) (RiskProfile, error) {
	p := RiskProfile(s)
	if _, err := VulnerabilityFactor(p); err != nil {
		return "", err
	}
	return p, nil
}

// RiskLevel is ordered: Safe < Moderate < Unsafe.
type RiskLevel int

const (
	Safe RiskLevel = iota
	Moderate
	Unsafe
)

func (l RiskLevel) String() string {
	switch l {
	case Safe:
		return "Safe"
	case Moderate:
		return "Moderate"
	case Unsafe:
		return "Unsafe"
	}
	return fmt.Sprintf("RiskLevel(%d)", int(l))
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// ComputeExposureIndex sums primary over the window. Windows shorter than
// MinSamples yield 0. Readings that do not report primary add nothing.
func ComputeExposureIndex(window []data.Reading, primary data.Quantity) float64 {
	if len(window) < MinSamples {
		return 0
	}
	var sum float64
	for _, r := range window {
		if v, ok := r.Value(primary); ok {
			sum += v
		}
	}
	return sum
}

// ComputeRisk weights the exposure index by the profile's vulnerability factor.
func ComputeRisk(cei float64, profile RiskProfile) (float64, error) {
	factor, err := VulnerabilityFactor(profile)
	if err != nil {
		return 0, err
	}
	return cei * factor, nil
}

// ClassifyRisk maps an exposure index onto a risk level; lower bounds are inclusive.
func ClassifyRisk(cei float64) RiskLevel {
	switch {
	case cei < ModerateThreshold:
		return Safe
	case cei < UnsafeThreshold:
		return Moderate
	}
	return Unsafe
}

// TimeToUnsafe projects how long until cei reaches UnsafeThreshold at the given
// growth rate. The result is in the time unit of rate's denominator. ok is false
// when rate is not a positive finite number.
func TimeToUnsafe(cei, rate float64) (remaining float64, ok bool) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, false
	}
	return math.Max(0, (UnsafeThreshold-cei)/rate), true
}
