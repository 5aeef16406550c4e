// Package bme680 drives a Bosch BME680 environmental sensor over I²C.
//
// The datasheet can be found here:
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme680-ds001.pdf
//
// Compensation follows the floating point formulas of the datasheet. Gas
// measurement (heater profile 0) is optional and selected with
// Options.GasEnabled.
package bme680

// I²C addresses, selected by the SDO pin.
const (
	AddressPrimary   uint16 = 0x77
	AddressSecondary uint16 = 0x76
)

const (
	RegResHeatVal   byte = 0x00 // heater resistance correction, signed
	RegResHeatRange byte = 0x02 // bits 5:4
	RegRangeSwErr   byte = 0x04 // bits 7:4, signed
	RegData         byte = 0x1D // 15 byte field data block 0
	RegResHeat0     byte = 0x5A
	RegGasWait0     byte = 0x64
	RegCtrlGas0     byte = 0x70
	RegCtrlGas1     byte = 0x71
	RegCtrlHum      byte = 0x72
	RegCtrlMeas     byte = 0x74
	RegConfig       byte = 0x75
	RegCoeff1       byte = 0x8A // 23 bytes, temperature and pressure coefficients
	RegChipID       byte = 0xD0
	RegSoftReset    byte = 0xE0
	RegCoeff2       byte = 0xE1 // 14 bytes, humidity, t1 and gas coefficients
)

const (
	ChipID         byte = 0x61 // correct response if reading from chip id register
	SoftResetCmd   byte = 0xB6
	RunGas         byte = 0x10 // ctrl_gas_1 run_gas bit, heater profile 0
	coeff1Len           = 23
	coeff2Len           = 14
	dataLen             = 15
	newDataMask    byte = 0x80
	gasValidMask   byte = 0x20
	heatStableMask byte = 0x10
	gasRangeMask   byte = 0x0F
)

// Mode is the power mode written to the low bits of ctrl_meas.
type Mode byte

// The BME680 has no normal mode; every measurement is a forced one after
// which the device goes back to sleep.
const (
	Sleep  Mode = 0x00
	Forced Mode = 0x01
)

// Oversampling settings for temperature, pressure and humidity.
type Oversampling byte

const (
	Skipped Oversampling = iota
	Sampling1X
	Sampling2X
	Sampling4X
	Sampling8X
	Sampling16X
)

// FilterCoefficient is the IIR filter setting, higher values means steadier
// measurements but slower reaction times.
type FilterCoefficient byte

const (
	Coeff0 FilterCoefficient = iota
	Coeff1
	Coeff3
	Coeff7
	Coeff15
	Coeff31
	Coeff63
	Coeff127
)
