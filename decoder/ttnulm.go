package decoder

import (
	"encoding/binary"

	"github.com/akhenakh/sensorbridge/sensor"
)

const ttnUlmLength = 8

// DecodeTTNUlm decodes the TTN Ulm frame:
//  0-1 PM10 ug/m3 x10
//  2-3 PM2.5 ug/m3 x10
//  4-5 relative humidity % x10
//  6-7 temperature C x10, signed
func DecodeTTNUlm(p []byte) (*sensor.Data, error) {
	if len(p) != ttnUlmLength {
		return nil, parseErrorf(TTNUlm, "invalid length %d, expected %d", len(p), ttnUlmLength)
	}

	pm10 := float64(binary.BigEndian.Uint16(p[0:])) / 10.0
	pm25 := float64(binary.BigEndian.Uint16(p[2:])) / 10.0
	rh := float64(binary.BigEndian.Uint16(p[4:])) / 10.0
	temp := float64(int16(binary.BigEndian.Uint16(p[6:]))) / 10.0

	if rh > 100 {
		return nil, parseErrorf(TTNUlm, "humidity out of range %v", rh)
	}

	d := sensor.NewData()
	d.Add(sensor.PM10, pm10)
	d.Add(sensor.PM2_5, pm25)
	d.Add(sensor.HUMI, rh)
	d.Add(sensor.TEMP, temp)
	return d, nil
}
