package iaq

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/envrelay/pkg/bme680"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name     string
		gas, hum float64
		want     float64
	}{
		{"clean air ideal humidity", 50000, 40, 0},
		{"gas above baseline saturates", 250000, 40, 0},
		{"half baseline", 25000, 40, 187.5},
		{"humid room", 10000, 70, 362.5},
		{"dry room", 50000, 20, 62.5},
		{"no resistance saturated humidity", 0, 100, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Estimate(tt.gas, tt.hum)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-3)
		})
	}
}

func TestEstimate_Bounds(t *testing.T) {
	for gas := 0.0; gas <= 400000; gas += 997 {
		for hum := 0.0; hum <= 100; hum += 3.3 {
			got, ok := Estimate(gas, hum)
			if !ok || got < 0 || got > 500 {
				t.Fatalf("Estimate(%v, %v) = %v, %v", gas, hum, got, ok)
			}
		}
	}
}

func TestEstimate_Unusable(t *testing.T) {
	_, ok := Estimate(-1, 40)
	assert.False(t, ok)
	_, ok = Estimate(math.NaN(), 40)
	assert.False(t, ok)
}

func TestFromReading(t *testing.T) {
	_, ok := FromReading(bme680.Reading{Humidity: 40, GasResistance: 50000})
	assert.False(t, ok, "reading without gas")

	got, ok := FromReading(bme680.Reading{Humidity: 40, GasResistance: 50000, HasGas: true})
	assert.True(t, ok)
	assert.Zero(t, got)
}

func TestCategory(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
		label string
	}{
		{0, Excellent, "Excellent"},
		{50, Excellent, "Excellent"},
		{50.5, Good, "Good"},
		{100, Good, "Good"},
		{150, LightlyPolluted, "Lightly Polluted"},
		{200, ModeratelyPolluted, "Moderately Polluted"},
		{300, HeavilyPolluted, "Heavily Polluted"},
		{300.1, SeverelyPolluted, "Severely Polluted"},
		{500, SeverelyPolluted, "Severely Polluted"},
	}
	for _, tt := range tests {
		got := Category(tt.score)
		assert.Equal(t, tt.want, got, "score %v", tt.score)
		assert.Equal(t, tt.label, got.String())
	}
	assert.Equal(t, "Unknown", Level(99).String())
}
