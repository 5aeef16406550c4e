package uplink

import (
	"math"

	"github.com/itohio/envrelay/pkg/bme680"
)

// Payload is the Ambient channel data record.
type Payload struct {
	WriteKey    string   `json:"writeKey"`
	Temperature float64  `json:"d1"`
	Humidity    float64  `json:"d2"`
	IAQ         *float64 `json:"d3,omitempty"`
	Pressure    float64  `json:"d4"`
	Gas         *float64 `json:"d5,omitempty"`
}

// NewPayload rounds r for transmission. iaq may be nil. Gas is sent only when
// the reading carries a positive resistance.
func NewPayload(writeKey string, r bme680.Reading, iaq *float64) Payload {
	p := Payload{
		WriteKey:    writeKey,
		Temperature: round(r.Temperature, 1),
		Humidity:    round(r.Humidity, 1),
		Pressure:    round(r.Pressure, 1),
	}
	if iaq != nil {
		v := round(*iaq, 0)
		p.IAQ = &v
	}
	if r.HasGas && r.GasResistance > 0 {
		v := round(r.GasResistance, 0)
		p.Gas = &v
	}
	return p
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
