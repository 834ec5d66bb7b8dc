// Package mydevices pushes records to myDevices Cayenne through its HTTP API.
package mydevices

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/sink"
)

const (
	Name = "mydevices"

	DefaultURL = "https://api.mydevices.com"

	AttrUsername = "mydevices-username"
	AttrPassword = "mydevices-password"
	AttrClientID = "mydevices-clientid"
)

// Value is one channel of a myDevices push.
type Value struct {
	Channel int     `json:"channel"`
	Value   float64 `json:"value"`
	Type    string  `json:"type"`
	Unit    string  `json:"unit"`
}

type channel struct {
	item    sensor.Item
	channel int
	typ     string
	unit    string
	scale   float64
}

var channels = []channel{
	{sensor.PM10, 1, "analog_sensor", "null", 1},
	{sensor.PM2_5, 2, "analog_sensor", "null", 1},
	{sensor.PM1_0, 3, "analog_sensor", "null", 1},
	{sensor.PM4_0, 4, "analog_sensor", "null", 1},
	{sensor.HUMI, 10, "rel_hum", "p", 1},
	{sensor.TEMP, 11, "temp", "c", 1},
	// Pa to hPa
	{sensor.PRESSURE, 12, "bp", "hpa", 0.01},
	{sensor.LORA_RSSI, 20, "rssi", "dbm", 1},
	{sensor.LORA_SNR, 21, "snr", "db", 1},
}

// Message returns the channels present in d.
func Message(d *sensor.Data) []Value {
	var res []Value
	for _, c := range channels {
		v, ok := d.Get(c.item)
		if !ok {
			continue
		}
		res = append(res, Value{Channel: c.channel, Value: v * c.scale, Type: c.typ, Unit: c.unit})
	}
	return res
}

type credentials struct {
	username string
	password string
	clientID string
}

type Config struct {
	URL     string
	Timeout time.Duration
}

type Sink struct {
	*sink.Uploader
	logger log.Logger
	url    string

	mu          sync.RWMutex
	credentials map[sensor.AppDeviceID]credentials
}

func New(logger log.Logger, cfg Config) *Sink {
	logger = log.With(logger, "component", "sink", "sink", Name)
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Sink{
		Uploader:    sink.NewUploader(logger, Name, cfg.Timeout),
		logger:      logger,
		url:         strings.TrimRight(cfg.URL, "/"),
		credentials: make(map[sensor.AppDeviceID]credentials),
	}
}

// AcceptAttributes keeps the devices having the three credential attributes.
func (s *Sink) AcceptAttributes(dir sensor.Directory) {
	creds := make(map[sensor.AppDeviceID]credentials)
	for k, attrs := range dir {
		if !attrs.HasAll(AttrUsername, AttrPassword, AttrClientID) {
			continue
		}
		creds[k] = credentials{
			username: attrs[AttrUsername],
			password: attrs[AttrPassword],
			clientID: attrs[AttrClientID],
		}
	}
	s.mu.Lock()
	s.credentials = creds
	s.mu.Unlock()
	level.Info(s.logger).Log("msg", "credentials updated", "count", len(creds))
}

func (s *Sink) AcceptRecord(key sensor.AppDeviceID, d *sensor.Data) {
	s.mu.RLock()
	c, ok := s.credentials[key]
	s.mu.RUnlock()
	if !ok {
		return
	}
	m := Message(d)
	if len(m) == 0 {
		return
	}
	s.Schedule(func() { s.upload(key, c, m) })
}

func (s *Sink) upload(key sensor.AppDeviceID, c credentials, m []Value) {
	u := fmt.Sprintf("%s/things/%s/data", s.url, url.PathEscape(c.clientID))
	res, err := s.Post(u, m, func(r *http.Request) {
		r.SetBasicAuth(c.username, c.password)
	})
	if err != nil {
		level.Warn(s.logger).Log("msg", "upload failed", "device", key, "client_id", c.clientID, "error", err)
		return
	}
	level.Debug(s.logger).Log("msg", "upload done", "device", key, "client_id", c.clientID, "result", string(res))
}
