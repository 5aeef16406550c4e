package bme680

const (
	// DefaultAmbientTemp is the ambient temperature assumed when computing the
	// heater resistance code.
	DefaultAmbientTemp = 25
	maxHeaterTemp      = 400
	maxGasWait         = 4096
	gasWaitSaturated   = 0xFF
)

// HeaterResistance returns the res_heat register code that brings the hot
// plate to targetC degrees, given the ambient temperature ambientC.
func HeaterResistance(c *Calibration, targetC, ambientC int) byte {
	if targetC > maxHeaterTemp {
		targetC = maxHeaterTemp
	}

	var1 := float64(c.G1)/16.0 + 49.0
	var2 := float64(c.G2)/32768.0*0.0005 + 0.00235
	var3 := float64(c.G3) / 1024.0
	var4 := var1 * (1.0 + var2*float64(targetC))
	var5 := var4 + var3*float64(ambientC)
	res := 3.4 * (var5*(4.0/(4.0+float64(c.ResHeatRange)))*(1.0/(1.0+float64(c.ResHeatVal)*0.002)) - 25)

	if res < 0 {
		return 0
	}
	if res > 255 {
		return 255
	}
	return byte(res)
}

// GasWait encodes a heater duration in milliseconds into the gas_wait
// register format: 6-bit mantissa, 2-bit multiplication factor (1, 4, 16, 64).
// Durations of 4096 ms or more saturate.
func GasWait(ms int) byte {
	if ms >= maxGasWait {
		return gasWaitSaturated
	}
	if ms < 0 {
		ms = 0
	}

	factor := 0
	for ms > 0x3F {
		ms /= 4
		factor++
	}
	return byte(ms + factor*64)
}
