package bme680

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompensate_GoldenFrame(t *testing.T) {
	data := []byte{
		0x80, 0x00,
		0x80, 0x00, 0x00, // pressure
		0x80, 0x00, 0x00, // temperature
		0x80, 0x00, // humidity
		0x00, 0x00, 0x00,
		0x00, 0x00, // gas
	}
	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x80000), frame.Pressure)
	assert.Equal(t, uint32(0x80000), frame.Temperature)
	assert.Equal(t, uint16(0x8000), frame.Humidity)
	assert.False(t, frame.GasValid)
	assert.False(t, frame.HeaterStable)

	cal := MockCalibration
	r := Compensate(&cal, frame, Offsets{})

	assert.InDelta(t, 25.005018338561058, r.Temperature, 1e-9)
	assert.InDelta(t, 702.5014466738844, r.Pressure, 1e-6)
	assert.InDelta(t, 69.47700184914736, r.Humidity, 1e-6)
	assert.False(t, r.HasGas)
	assert.Equal(t, 0.0, r.GasResistance)
}

func TestCompensate_Offsets(t *testing.T) {
	cal := MockCalibration
	frame := MockFrame
	frame.GasValid = false

	base := Compensate(&cal, frame, Offsets{})
	off := Compensate(&cal, frame, Offsets{Temperature: 28.74, Humidity: -4.0, Pressure: 1.5})

	assert.InDelta(t, base.Temperature+28.74, off.Temperature, 1e-9)
	assert.InDelta(t, base.Humidity-4.0, off.Humidity, 1e-9)
	assert.InDelta(t, base.Pressure+1.5, off.Pressure, 1e-9)
	assert.Equal(t, base.RawTemperature, off.RawTemperature)
}

func TestCompensate_GasRequiresBothBits(t *testing.T) {
	cal := MockCalibration

	tests := []struct {
		name    string
		valid   bool
		stable  bool
		wantGas bool
	}{
		{"valid and stable", true, true, true},
		{"valid only", true, false, false},
		{"stable only", false, true, false},
		{"neither", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := MockFrame
			frame.GasValid = tt.valid
			frame.HeaterStable = tt.stable
			r := Compensate(&cal, frame, Offsets{})
			assert.Equal(t, tt.wantGas, r.HasGas)
			if tt.wantGas {
				assert.Greater(t, r.GasResistance, 0.0)
			}
		})
	}
}

func TestCompensateTemperature_Monotonic(t *testing.T) {
	cal := MockCalibration

	prev, _ := CompensateTemperature(&cal, 0)
	for adc := uint32(1 << 10); adc <= adc20Max; adc += 1 << 10 {
		got, _ := CompensateTemperature(&cal, adc)
		require.Greater(t, got, prev, "adc=%d", adc)
		prev = got
	}
}

func TestCompensateHumidity_Clamped(t *testing.T) {
	cal := MockCalibration

	for _, tFine := range []float64{-200000, 0, 128000, 400000} {
		for adc := 0; adc <= adc16Max; adc += 97 {
			h := CompensateHumidity(&cal, tFine, uint16(adc))
			require.GreaterOrEqual(t, h, 0.0)
			require.LessOrEqual(t, h, 100.0)
		}
	}

	assert.Equal(t, 0.0, CompensateHumidity(&cal, 128000, 0))
	assert.Equal(t, 100.0, CompensateHumidity(&cal, 128000, adc16Max))
}

func TestCompensatePressure_ZeroDenominator(t *testing.T) {
	cal := MockCalibration
	cal.P1 = 0

	assert.NotPanics(t, func() {
		assert.Equal(t, 0.0, CompensatePressure(&cal, 128000, 0x80000))
	})
}

func TestCompensateGas_NeverNegative(t *testing.T) {
	cal := MockCalibration

	for swErr := -8; swErr <= 7; swErr++ {
		cal.RangeSwErr = int8(swErr)
		for rng := uint8(0); rng < 16; rng++ {
			for adc := uint16(0); adc < 1024; adc++ {
				if g := CompensateGas(&cal, adc, rng); g < 0 {
					t.Fatalf("negative resistance %v (adc=%d range=%d sw_err=%d)", g, adc, rng, swErr)
				}
			}
		}
	}
}

func TestCompensateGas_Reference(t *testing.T) {
	cal := MockCalibration

	assert.InDelta(t, 248262.1648, CompensateGas(&cal, 512, 5), 1e-4)
	assert.InDelta(t, 9271.365498106228, CompensateGas(&cal, 300, 10), 1e-6)
	assert.InDelta(t, 362345.8755104782, CompensateGas(&cal, 1023, 4), 1e-6)
}
