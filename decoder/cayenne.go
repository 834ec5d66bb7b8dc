package decoder

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/akhenakh/cayenne"

	"github.com/akhenakh/sensorbridge/sensor"
)

// analog input channels carrying particulate matter
var cayenneAnalogChannels = map[int]sensor.Item{
	1: sensor.PM10,
	2: sensor.PM2_5,
	3: sensor.PM1_0,
	4: sensor.PM4_0,
}

// DecodeCayenne decodes a Cayenne LPP frame, only the channels present end up in the record.
func DecodeCayenne(p []byte) (*sensor.Data, error) {
	if len(p) == 0 {
		return nil, parseErrorf(Cayenne, "empty payload")
	}

	dec := cayenne.NewDecoder(bytes.NewReader(p))
	msg, err := dec.DecodeUplink()
	if err != nil {
		return nil, parseErrorf(Cayenne, "%v", err)
	}

	values := msg.Values()

	// iterate in a stable order so the same frame always gives the same record
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := sensor.NewData()
	for _, k := range keys {
		kind, channel, ok := splitCayenneKey(k)
		if !ok {
			continue
		}
		v := values[k]

		switch kind {
		case "analog_input":
			item, ok := cayenneAnalogChannels[channel]
			if !ok {
				continue
			}
			if f, ok := toFloat(v); ok {
				d.Add(item, f)
			}
		case "temperature":
			if f, ok := toFloat(v); ok {
				d.Add(sensor.TEMP, f)
			}
		case "relative_humidity":
			if f, ok := toFloat(v); ok {
				d.Add(sensor.HUMI, f)
			}
		case "barometric_pressure":
			// hPa (mbar) to Pa
			if f, ok := toFloat(v); ok {
				d.Add(sensor.PRESSURE, 100.0*f)
			}
		case "gps":
			pos, ok := toFloats(v)
			if !ok || len(pos) < 2 {
				continue
			}
			d.Add(sensor.POS_LAT, pos[0])
			d.Add(sensor.POS_LON, pos[1])
			if len(pos) > 2 {
				d.Add(sensor.POS_ALT, pos[2])
			}
		}
	}

	if d.Len() == 0 {
		return nil, parseErrorf(Cayenne, "no usable channel")
	}
	return d, nil
}

// splitCayenneKey splits keys like "analog_input_1" into kind and channel.
func splitCayenneKey(k string) (string, int, bool) {
	i := strings.LastIndexByte(k, '_')
	if i <= 0 || i == len(k)-1 {
		return "", 0, false
	}
	c, err := strconv.Atoi(k[i+1:])
	if err != nil {
		return "", 0, false
	}
	return k[:i], c, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toFloats(v interface{}) ([]float64, bool) {
	switch a := v.(type) {
	case []float32:
		res := make([]float64, len(a))
		for i, f := range a {
			res[i] = float64(f)
		}
		return res, true
	case []float64:
		return a, true
	case []interface{}:
		res := make([]float64, 0, len(a))
		for _, e := range a {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			res = append(res, f)
		}
		return res, true
	case map[string]interface{}:
		lat, ok1 := toFloat(a["latitude"])
		lng, ok2 := toFloat(a["longitude"])
		if !ok1 || !ok2 {
			return nil, false
		}
		res := []float64{lat, lng}
		if alt, ok := toFloat(a["altitude"]); ok {
			res = append(res, alt)
		}
		return res, true
	}
	return nil, false
}
