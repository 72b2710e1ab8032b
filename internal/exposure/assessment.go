package exposure

import (
	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

// MinInsightSamples is the window size below which the dashboard reports that it
// is still collecting data.
const MinInsightSamples = 5

// Assessment is the evaluated exposure state of one window for one profile.
type Assessment struct {
	Profile       RiskProfile   `json:"profile"`
	Primary       data.Quantity `json:"primary"`
	Samples       int           `json:"samples"`
	Collecting    bool          `json:"collecting"`
	ExposureIndex float64       `json:"exposure_index"`
	Risk          float64       `json:"risk"`
	Level         RiskLevel     `json:"level"`
	RatePerMinute float64       `json:"rate_per_minute"`
	// nil when there is no projection
	MinutesToUnsafe *float64 `json:"minutes_to_unsafe"`
}

// Assess evaluates window (ascending by timestamp) for profile. The growth rate is
// the exposure index spread over the window's time span, in index units per minute.
func Assess(window []data.Reading, primary data.Quantity, profile RiskProfile) (Assessment, error) {
	cei := ComputeExposureIndex(window, primary)
	risk, err := ComputeRisk(cei, profile)
	if err != nil {
		return Assessment{}, err
	}

	a := Assessment{
		Profile:       profile,
		Primary:       primary,
		Samples:       len(window),
		Collecting:    len(window) < MinInsightSamples,
		ExposureIndex: cei,
		Risk:          risk,
		Level:         ClassifyRisk(cei),
	}

	if len(window) >= MinSamples {
		span := window[len(window)-1].Timestamp.Sub(window[0].Timestamp).Minutes()
		if span > 0 {
			a.RatePerMinute = cei / span
		}
	}
	if minutes, ok := TimeToUnsafe(cei, a.RatePerMinute); ok {
		a.MinutesToUnsafe = &minutes
	}
	return a, nil
}
