package bme680

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGasWait(t *testing.T) {
	tests := []struct {
		ms   int
		want byte
	}{
		{0, 0},
		{1, 1},
		{63, 63},
		{64, 80},
		{100, 89},
		{150, 101},
		{255, 127},
		{256, 144},
		{1000, 190},
		{4095, 255},
		{4096, 0xFF},
		{10000, 0xFF},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, GasWait(tt.ms), "ms=%d", tt.ms)
	}
}

func TestGasWait_SmallDurationsUnchanged(t *testing.T) {
	for ms := 0; ms <= 63; ms++ {
		code := GasWait(ms)
		assert.Equal(t, byte(0), code>>6, "factor for %d", ms)
		assert.Equal(t, byte(ms), code&0x3F)
	}
}

func TestGasWait_Saturates(t *testing.T) {
	for _, ms := range []int{4096, 4097, 8191, 65535, 1 << 20} {
		assert.Equal(t, byte(0xFF), GasWait(ms))
	}
}

func TestHeaterResistance(t *testing.T) {
	cal := MockCalibration

	tests := []struct {
		target int
		want   byte
	}{
		{200, 85},
		{300, 110},
		{320, 115},
		{400, 136},
		{450, 136}, // clamped to 400 °C
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HeaterResistance(&cal, tt.target, DefaultAmbientTemp), "target=%d", tt.target)
	}
}
