// Package iaq derives a simple indoor air quality score from gas resistance
// and humidity. It is a rough heuristic, not Bosch BSEC.
//
// The score runs from 0 (clean) to 500 (severely polluted). Gas resistance
// contributes 75 % relative to a clean-air baseline and humidity 25 %
// relative to an ideal of 40 %RH. Arithmetic is float32 to match the
// readings produced on the microcontroller build.
package iaq

import (
	"github.com/chewxy/math32"

	"github.com/itohio/envrelay/pkg/bme680"
)

const (
	GasBaseline      float32 = 50000 // Ω in clean air
	HumidityBaseline float32 = 40    // %RH
	MaxScore         float32 = 500

	gasWeight = 0.75
	humWeight = 0.25
)

// Estimate returns the score for gasOhm and humidity. ok is false when the
// gas resistance is unusable.
func Estimate(gasOhm, humidity float64) (score float64, ok bool) {
	g := float32(gasOhm)
	if math32.IsNaN(g) || g < 0 {
		return 0, false
	}
	h := float32(humidity)

	gasScore := math32.Min(g/GasBaseline*100, 100)

	var humScore float32
	if h < HumidityBaseline {
		humScore = h / HumidityBaseline * 100
	} else {
		humScore = (100 - h) / (100 - HumidityBaseline) * 100
	}
	humScore = math32.Min(humScore, 100)

	s := MaxScore - (gasScore*gasWeight+humScore*humWeight)*5
	return float64(math32.Max(0, math32.Min(MaxScore, s))), true
}

// FromReading scores r when it carries a gas measurement.
func FromReading(r bme680.Reading) (float64, bool) {
	if !r.HasGas {
		return 0, false
	}
	return Estimate(r.GasResistance, r.Humidity)
}

// Level is an air quality category.
type Level int

const (
	Excellent Level = iota
	Good
	LightlyPolluted
	ModeratelyPolluted
	HeavilyPolluted
	SeverelyPolluted
)

// Category maps a score to its level.
func Category(score float64) Level {
	switch {
	case score <= 50:
		return Excellent
	case score <= 100:
		return Good
	case score <= 150:
		return LightlyPolluted
	case score <= 200:
		return ModeratelyPolluted
	case score <= 300:
		return HeavilyPolluted
	default:
		return SeverelyPolluted
	}
}

func (l Level) String() string {
	switch l {
	case Excellent:
		return "Excellent"
	case Good:
		return "Good"
	case LightlyPolluted:
		return "Lightly Polluted"
	case ModeratelyPolluted:
		return "Moderately Polluted"
	case HeavilyPolluted:
		return "Heavily Polluted"
	case SeverelyPolluted:
		return "Severely Polluted"
	default:
		return "Unknown"
	}
}
