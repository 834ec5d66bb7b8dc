// Package storage archives sensor records and indexes the last position of each device.
package storage

import (
	"encoding/json"
	"time"

	"github.com/akhenakh/sensorbridge/sensor"
)

// Indexer stores the history of every device, only the most recent record
// of a device is present in the geo index.
type Indexer interface {
	Store(r Record) error
	Last(key string) (*Record, error)
	History(key string, count int) ([]Record, error)
	Keys() ([]string, error)
	RadiusSearch(lat, lng, radius float64) ([]Record, error)
	RectSearch(urlat, urlng, bllat, bllng float64) ([]Record, error)
}

// Record is a measurement at a position, Key is usually an app/dev device id.
type Record struct {
	Key  string
	Lat  float64
	Lng  float64
	Time time.Time
	Data *sensor.Data
}

// EncodeValue returns the stored representation of d.
func EncodeValue(d *sensor.Data) ([]byte, error) {
	if d == nil {
		d = sensor.NewData()
	}
	return json.Marshal(d)
}

func DecodeValue(b []byte) (*sensor.Data, error) {
	d := sensor.NewData()
	if len(b) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, err
	}
	return d, nil
}
