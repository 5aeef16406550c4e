package uplink

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/envrelay/pkg/bme680"
)

func TestNewPayload_OptionalFields(t *testing.T) {
	iaq := 120.4
	tests := []struct {
		name    string
		reading bme680.Reading
		iaq     *float64
		want    string
	}{
		{
			name:    "no gas no iaq",
			reading: bme680.Reading{Temperature: 21.04, Humidity: 55.55, Pressure: 1000.04},
			want:    `{"writeKey":"k","d1":21,"d2":55.6,"d4":1000}`,
		},
		{
			name:    "gas and iaq",
			reading: bme680.Reading{Temperature: 21, Humidity: 55, Pressure: 1000, GasResistance: 51234.5, HasGas: true},
			iaq:     &iaq,
			want:    `{"writeKey":"k","d1":21,"d2":55,"d3":120,"d4":1000,"d5":51235}`,
		},
		{
			name:    "zero gas dropped",
			reading: bme680.Reading{Temperature: 21, Humidity: 55, Pressure: 1000, HasGas: true},
			want:    `{"writeKey":"k","d1":21,"d2":55,"d4":1000}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(NewPayload("k", tt.reading, tt.iaq))
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 23.5, round(23.456, 1))
	assert.Equal(t, -3.2, round(-3.24, 1))
	assert.Equal(t, 48212.0, round(48211.6, 0))
}
