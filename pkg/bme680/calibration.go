package bme680

import "github.com/pkg/errors"

// Calibration holds the factory trimming coefficients read from the device NVM.
type Calibration struct {
	// Temperature compensation
	T1 uint16
	T2 int16
	T3 int8

	// Pressure compensation
	P1  uint16
	P2  int16
	P3  int8
	P4  int16
	P5  int16
	P6  int8
	P7  int8
	P8  int16
	P9  int16
	P10 uint8

	// Humidity compensation
	H1 uint16
	H2 uint16
	H3 int8
	H4 int8
	H5 int8
	H6 uint8
	H7 int8

	// Gas heater
	G1 int8
	G2 int16
	G3 int8

	ResHeatRange uint8
	ResHeatVal   int8
	RangeSwErr   int8
}

var errCaliRead = errors.New("bme680: failed to read calibration coefficient register")

// readCalibration reads both coefficient blocks and the three heater
// registers. It never returns a partially populated Calibration.
func readCalibration(t *Transport) (Calibration, error) {
	coeff1, err := t.ReadBlock(RegCoeff1, coeff1Len)
	if err != nil {
		return Calibration{}, errors.Wrap(errCaliRead, err.Error())
	}
	coeff2, err := t.ReadBlock(RegCoeff2, coeff2Len)
	if err != nil {
		return Calibration{}, errors.Wrap(errCaliRead, err.Error())
	}
	singles := make([]byte, 3)
	for i, reg := range []byte{RegResHeatVal, RegResHeatRange, RegRangeSwErr} {
		if singles[i], err = t.ReadReg(reg); err != nil {
			return Calibration{}, errors.Wrap(errCaliRead, err.Error())
		}
	}
	return parseCalibration(coeff1, coeff2, singles[0], singles[1], singles[2]), nil
}

// parseCalibration decodes the datasheet layout. coeff1 starts at 0x8A,
// coeff2 at 0xE1.
func parseCalibration(coeff1, coeff2 []byte, resHeatVal, resHeatRange, rangeSwErr byte) Calibration {
	var c Calibration

	c.T1 = le16(coeff2[8], coeff2[9])
	c.T2 = int16(le16(coeff1[0], coeff1[1]))
	c.T3 = int8(coeff1[2])

	c.P1 = le16(coeff1[4], coeff1[5])
	c.P2 = int16(le16(coeff1[6], coeff1[7]))
	c.P3 = int8(coeff1[8])
	c.P4 = int16(le16(coeff1[10], coeff1[11]))
	c.P5 = int16(le16(coeff1[12], coeff1[13]))
	c.P7 = int8(coeff1[14])
	c.P6 = int8(coeff1[15])
	c.P8 = int16(le16(coeff1[18], coeff1[19]))
	c.P9 = int16(le16(coeff1[20], coeff1[21]))
	c.P10 = coeff1[22]

	// h1 and h2 share 0xE2: h1 takes the low nibble, h2 the high one.
	c.H1 = uint16(coeff2[2])<<4 | uint16(coeff2[1]&0x0F)
	c.H2 = uint16(coeff2[0])<<4 | uint16(coeff2[1]>>4)
	c.H3 = int8(coeff2[3])
	c.H4 = int8(coeff2[4])
	c.H5 = int8(coeff2[5])
	c.H6 = coeff2[6]
	c.H7 = int8(coeff2[7])

	c.G2 = int16(le16(coeff2[10], coeff2[11]))
	c.G1 = int8(coeff2[12])
	c.G3 = int8(coeff2[13])

	c.ResHeatVal = int8(resHeatVal)
	c.ResHeatRange = (resHeatRange & 0x30) >> 4
	c.RangeSwErr = int8(rangeSwErr&0xF0) / 16

	return c
}

// encode lays the coefficients out the way the device stores them. It is the
// inverse of parseCalibration and feeds the mock register file.
func (c Calibration) encode() (coeff1, coeff2 []byte, resHeatVal, resHeatRange, rangeSwErr byte) {
	coeff1 = make([]byte, coeff1Len)
	coeff2 = make([]byte, coeff2Len)

	putLE16(coeff2[8:], c.T1)
	putLE16(coeff1[0:], uint16(c.T2))
	coeff1[2] = byte(c.T3)

	putLE16(coeff1[4:], c.P1)
	putLE16(coeff1[6:], uint16(c.P2))
	coeff1[8] = byte(c.P3)
	putLE16(coeff1[10:], uint16(c.P4))
	putLE16(coeff1[12:], uint16(c.P5))
	coeff1[14] = byte(c.P7)
	coeff1[15] = byte(c.P6)
	putLE16(coeff1[18:], uint16(c.P8))
	putLE16(coeff1[20:], uint16(c.P9))
	coeff1[22] = c.P10

	coeff2[0] = byte(c.H2 >> 4)
	coeff2[1] = byte(c.H2&0x0F)<<4 | byte(c.H1&0x0F)
	coeff2[2] = byte(c.H1 >> 4)
	coeff2[3] = byte(c.H3)
	coeff2[4] = byte(c.H4)
	coeff2[5] = byte(c.H5)
	coeff2[6] = c.H6
	coeff2[7] = byte(c.H7)

	putLE16(coeff2[10:], uint16(c.G2))
	coeff2[12] = byte(c.G1)
	coeff2[13] = byte(c.G3)

	resHeatVal = byte(c.ResHeatVal)
	resHeatRange = (c.ResHeatRange & 0x03) << 4
	rangeSwErr = byte(c.RangeSwErr) << 4
	return
}

func le16(lsb, msb byte) uint16 {
	return uint16(msb)<<8 | uint16(lsb)
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
