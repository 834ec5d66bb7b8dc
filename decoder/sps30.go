package decoder

import (
	"encoding/binary"

	"github.com/akhenakh/sensorbridge/sensor"
)

// SPS30Port is the LoRaWAN port reserved for SPS30 frames,
// those are decoded whatever the application encoding is.
const SPS30Port = 30

const sps30Length = 20

var sps30Layout = []struct {
	item  sensor.Item
	scale float64
}{
	{sensor.PM1_0, 10},
	{sensor.PM2_5, 10},
	{sensor.PM4_0, 10},
	{sensor.PM10, 10},
	{sensor.PM0_5_N, 10},
	{sensor.PM1_0_N, 10},
	{sensor.PM2_5_N, 10},
	{sensor.PM4_0_N, 10},
	{sensor.PM10_N, 10},
	{sensor.PM_TPS, 1000},
}

// DecodeSPS30 decodes ten big endian uint16: mass concentrations (ug/m3 x10),
// number concentrations (#/cm3 x10) then the typical particle size (um x1000).
func DecodeSPS30(p []byte) (*sensor.Data, error) {
	if len(p) != sps30Length {
		return nil, parseErrorf(SPS30, "invalid length %d, expected %d", len(p), sps30Length)
	}

	d := sensor.NewData()
	for i, f := range sps30Layout {
		v := binary.BigEndian.Uint16(p[i*2:])
		d.Add(f.item, float64(v)/f.scale)
	}
	return d, nil
}
