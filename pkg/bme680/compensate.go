package bme680

// Offsets are per-device additive corrections measured against a reference
// instrument. They are applied after compensation.
type Offsets struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // hPa
}

// Reading is one calibrated measurement.
type Reading struct {
	Temperature    float64 // °C, offset applied
	RawTemperature float64 // °C, before offset
	Pressure       float64 // hPa, offset applied
	Humidity       float64 // %RH, offset applied
	GasResistance  float64 // Ω, only meaningful when HasGas
	HasGas         bool
	GasValid       bool
	HeaterStable   bool
}

// Gas range lookup tables from the BME680 datasheet.
var (
	gasRangeK1 = [16]float64{
		1.0, 1.0, 1.0, 1.0, 1.0, 0.99, 1.0, 0.992,
		1.0, 1.0, 0.998, 0.995, 1.0, 0.99, 1.0, 1.0,
	}
	gasRangeK2 = [16]float64{
		8000000.0, 4000000.0, 2000000.0, 1000000.0,
		499500.4995, 248262.1648, 125000.0, 63004.03226,
		31281.28128, 15625.0, 7812.5, 3906.25,
		1953.125, 976.5625, 488.28125, 244.140625,
	}
)

// CompensateTemperature returns the temperature in °C and t_fine, which the
// pressure and humidity stages need.
func CompensateTemperature(c *Calibration, adc uint32) (celsius, tFine float64) {
	raw := float64(adc)
	t1 := float64(c.T1)
	var1 := (raw/16384.0 - t1/1024.0) * float64(c.T2)
	d := raw/131072.0 - t1/8192.0
	var2 := d * d * float64(c.T3) * 16.0
	tFine = var1 + var2
	return tFine / 5120.0, tFine
}

// CompensatePressure returns the pressure in hPa. A zero denominator yields
// exactly 0.
func CompensatePressure(c *Calibration, tFine float64, adc uint32) float64 {
	var1 := tFine/2.0 - 64000.0
	var2 := var1 * var1 * float64(c.P6) / 131072.0
	var2 = var2 + var1*float64(c.P5)*2.0
	var2 = var2/4.0 + float64(c.P4)*65536.0
	var1 = (float64(c.P3)*var1*var1/16384.0 + float64(c.P2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.P1)
	if var1 == 0 {
		return 0
	}

	p := 1048576.0 - float64(adc)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.P9) * p * p / 2147483648.0
	var2 = p * float64(c.P8) / 32768.0
	s := p / 256.0
	var3 := s * s * s * float64(c.P10) / 131072.0
	p = p + (var1+var2+var3+float64(c.P7)*128.0)/16.0
	return p / 100.0
}

// CompensateHumidity returns the relative humidity in %, clamped to [0, 100].
func CompensateHumidity(c *Calibration, tFine float64, adc uint16) float64 {
	tc := tFine / 5120.0
	var1 := float64(adc) - (float64(c.H1)*16.0 + float64(c.H3)/2.0*tc)
	var2 := var1 * (float64(c.H2) / 262144.0 * (1.0 + float64(c.H4)/16384.0*tc + float64(c.H5)/1048576.0*tc*tc))
	var3 := float64(c.H6) / 16384.0
	var4 := float64(c.H7) / 2097152.0
	h := var2 + (var3+var4*tc)*var2*var2

	switch {
	case h > 100.0:
		return 100.0
	case h < 0.0:
		return 0.0
	}
	return h
}

// CompensateGas returns the gas sensor resistance in Ω. Negative results are
// clamped to zero.
func CompensateGas(c *Calibration, adc uint16, gasRange uint8) float64 {
	r := gasRange & gasRangeMask
	var1 := (1340.0 + 5.0*float64(c.RangeSwErr)) * gasRangeK1[r]
	res := var1 * gasRangeK2[r] / (float64(adc) - 512.0 + var1)
	if res < 0 {
		return 0
	}
	return res
}

// Compensate converts a raw frame into a Reading. Temperature runs first
// since every other stage depends on its t_fine; gas is only computed when
// the frame carries a valid, heater-stable conversion.
func Compensate(c *Calibration, f RawFrame, off Offsets) Reading {
	temp, tFine := CompensateTemperature(c, f.Temperature)
	press := CompensatePressure(c, tFine, f.Pressure)
	hum := CompensateHumidity(c, tFine, f.Humidity)

	r := Reading{
		Temperature:    temp + off.Temperature,
		RawTemperature: temp,
		Pressure:       press + off.Pressure,
		Humidity:       hum + off.Humidity,
		GasValid:       f.GasValid,
		HeaterStable:   f.HeaterStable,
	}
	if f.GasValid && f.HeaterStable {
		r.GasResistance = CompensateGas(c, f.Gas, f.GasRange)
		r.HasGas = true
	}
	return r
}
