package bme680

import "github.com/pkg/errors"

// ErrImplausibleFrame is returned for data blocks that look like a stuck bus.
var ErrImplausibleFrame = errors.New("bme680: implausible data frame")

const (
	adc20Max = 1<<20 - 1
	adc16Max = 1<<16 - 1
)

// RawFrame is one decoded field data block.
type RawFrame struct {
	Pressure     uint32 // 20-bit
	Temperature  uint32 // 20-bit
	Humidity     uint16
	Gas          uint16 // 10-bit
	GasRange     uint8  // 4-bit
	GasValid     bool
	HeaterStable bool
	NewData      bool
}

// DecodeFrame unpacks the 15 byte data block read from RegData.
func DecodeFrame(data []byte) (RawFrame, error) {
	if len(data) < dataLen {
		return RawFrame{}, errors.Errorf("bme680: short data block: %d bytes", len(data))
	}
	return RawFrame{
		Pressure:     uint32(data[2])<<12 | uint32(data[3])<<4 | uint32(data[4])>>4,
		Temperature:  uint32(data[5])<<12 | uint32(data[6])<<4 | uint32(data[7])>>4,
		Humidity:     uint16(data[8])<<8 | uint16(data[9]),
		Gas:          uint16(data[13])<<2 | uint16(data[14])>>6,
		GasRange:     data[14] & gasRangeMask,
		GasValid:     data[14]&gasValidMask != 0,
		HeaterStable: data[14]&heatStableMask != 0,
		NewData:      data[0]&newDataMask != 0,
	}, nil
}

// Plausible rejects frames whose ADC fields are all zero or all ones, which is
// what a bus held low or high reads back.
func (f RawFrame) Plausible() error {
	switch {
	case f.Pressure == 0 && f.Temperature == 0 && f.Humidity == 0:
		return errors.Wrap(ErrImplausibleFrame, "all ADC fields zero")
	case f.Pressure == adc20Max && f.Temperature == adc20Max && f.Humidity == adc16Max:
		return errors.Wrap(ErrImplausibleFrame, "all ADC fields saturated")
	}
	return nil
}

// encodeFrame packs f into a data block. Used by the mock bus.
func encodeFrame(f RawFrame) []byte {
	data := make([]byte, dataLen)
	if f.NewData {
		data[0] = newDataMask
	}
	data[2] = byte(f.Pressure >> 12)
	data[3] = byte(f.Pressure >> 4)
	data[4] = byte(f.Pressure<<4) & 0xF0
	data[5] = byte(f.Temperature >> 12)
	data[6] = byte(f.Temperature >> 4)
	data[7] = byte(f.Temperature<<4) & 0xF0
	data[8] = byte(f.Humidity >> 8)
	data[9] = byte(f.Humidity)
	data[13] = byte(f.Gas >> 2)
	data[14] = byte(f.Gas<<6) | f.GasRange&gasRangeMask
	if f.GasValid {
		data[14] |= gasValidMask
	}
	if f.HeaterStable {
		data[14] |= heatStableMask
	}
	return data
}
