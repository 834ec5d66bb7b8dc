// Package senscom uploads particulate matter and meteo records to sensor.community.
package senscom

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/sink"
)

const (
	Name = "senscom"

	DefaultURL = "https://api.sensor.community"

	// AttrSensorID is the device attribute holding the sensor.community id, e.g. TTN-0004A30B001C0530
	AttrSensorID = "senscom-id"

	// PinPM is the SDS011 like particulate matter pin
	PinPM = "1"
	// PinMeteo is the BME280 pin
	PinMeteo = "11"

	SoftwareVersion = "sensorbridge"
)

// Value is a single measurement as expected by the sensor.community API.
type Value struct {
	Type  string `json:"value_type"`
	Value string `json:"value"`
}

// Message is the sensor.community upload body, also accepted by openSenseMap.
type Message struct {
	SoftwareVersion string  `json:"software_version"`
	Values          []Value `json:"sensordatavalues"`
}

func (m *Message) add(typ string, v float64, precision int) {
	m.Values = append(m.Values, Value{Type: typ, Value: strconv.FormatFloat(v, 'f', precision, 64)})
}

// PMMessage returns the particulate matter values of d, nil when there are none.
func PMMessage(d *sensor.Data) *Message {
	m := &Message{SoftwareVersion: SoftwareVersion}
	for _, e := range []struct {
		item sensor.Item
		typ  string
	}{
		{sensor.PM10, "P1"},
		{sensor.PM2_5, "P2"},
		{sensor.PM1_0, "P0"},
		{sensor.PM4_0, "P4"},
	} {
		if v, ok := d.Get(e.item); ok {
			m.add(e.typ, v, 1)
		}
	}
	if len(m.Values) == 0 {
		return nil
	}
	return m
}

// MeteoMessage returns the temperature, humidity and pressure values of d, nil when there are none.
func MeteoMessage(d *sensor.Data) *Message {
	m := &Message{SoftwareVersion: SoftwareVersion}
	if v, ok := d.Get(sensor.TEMP); ok {
		m.add("temperature", v, 1)
	}
	if v, ok := d.Get(sensor.HUMI); ok {
		m.add("humidity", v, 1)
	}
	if v, ok := d.Get(sensor.PRESSURE); ok {
		m.add("pressure", v, 0)
	}
	if len(m.Values) == 0 {
		return nil
	}
	return m
}

type Config struct {
	URL     string
	Timeout time.Duration
}

// Sink uploads the records of every device carrying a senscom-id attribute.
type Sink struct {
	*sink.Uploader
	logger log.Logger
	url    string

	mu  sync.RWMutex
	ids map[sensor.AppDeviceID]string
}

func New(logger log.Logger, cfg Config) *Sink {
	logger = log.With(logger, "component", "sink", "sink", Name)
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Sink{
		Uploader: sink.NewUploader(logger, Name, cfg.Timeout),
		logger:   logger,
		url:      strings.TrimRight(cfg.URL, "/") + "/v1/push-sensor-data/",
		ids:      make(map[sensor.AppDeviceID]string),
	}
}

// AcceptAttributes rebuilds the device to sensor id mapping.
func (s *Sink) AcceptAttributes(dir sensor.Directory) {
	ids := make(map[sensor.AppDeviceID]string)
	for k, attrs := range dir {
		if id, ok := attrs.Get(AttrSensorID); ok && id != "" {
			ids[k] = id
		}
	}
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	level.Info(s.logger).Log("msg", "sensor ids updated", "count", len(ids))
}

func (s *Sink) sensorID(key sensor.AppDeviceID) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.ids[key]
	return id, ok
}

func (s *Sink) AcceptRecord(key sensor.AppDeviceID, d *sensor.Data) {
	id, ok := s.sensorID(key)
	if !ok {
		return
	}
	if m := PMMessage(d); m != nil {
		s.Schedule(func() { s.upload(key, id, PinPM, m) })
	}
	if m := MeteoMessage(d); m != nil {
		s.Schedule(func() { s.upload(key, id, PinMeteo, m) })
	}
}

func (s *Sink) upload(key sensor.AppDeviceID, id, pin string, m *Message) {
	_, err := s.Post(s.url, m, func(r *http.Request) {
		r.Header.Set("X-Pin", pin)
		r.Header.Set("X-Sensor", id)
	})
	if err != nil {
		level.Warn(s.logger).Log("msg", "upload failed", "device", key, "sensor_id", id, "pin", pin, "error", err)
		return
	}
	level.Debug(s.logger).Log("msg", "upload done", "device", key, "sensor_id", id, "pin", pin)
}
