// Package opensense uploads records to openSenseMap boxes using the sensor.community format.
package opensense

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/sink"
	"github.com/akhenakh/sensorbridge/sink/senscom"
)

const (
	Name = "opensense"

	DefaultURL = "https://api.opensensemap.org"

	// AttrBoxID is the device attribute holding the openSenseMap box id
	AttrBoxID = "opensense-id"
)

type Config struct {
	URL     string
	Timeout time.Duration
}

type Sink struct {
	*sink.Uploader
	logger log.Logger
	url    string

	mu    sync.RWMutex
	boxes map[sensor.AppDeviceID]string
}

func New(logger log.Logger, cfg Config) *Sink {
	logger = log.With(logger, "component", "sink", "sink", Name)
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Sink{
		Uploader: sink.NewUploader(logger, Name, cfg.Timeout),
		logger:   logger,
		url:      strings.TrimRight(cfg.URL, "/"),
		boxes:    make(map[sensor.AppDeviceID]string),
	}
}

func (s *Sink) AcceptAttributes(dir sensor.Directory) {
	boxes := make(map[sensor.AppDeviceID]string)
	for k, attrs := range dir {
		if id, ok := attrs.Get(AttrBoxID); ok && id != "" {
			boxes[k] = id
		}
	}
	s.mu.Lock()
	s.boxes = boxes
	s.mu.Unlock()
	level.Info(s.logger).Log("msg", "box ids updated", "count", len(boxes))
}

// Message returns every value of d openSenseMap understands in the luftdaten format.
func Message(d *sensor.Data) *senscom.Message {
	m := &senscom.Message{SoftwareVersion: senscom.SoftwareVersion}
	if pm := senscom.PMMessage(d); pm != nil {
		m.Values = append(m.Values, pm.Values...)
	}
	if meteo := senscom.MeteoMessage(d); meteo != nil {
		m.Values = append(m.Values, meteo.Values...)
	}
	if len(m.Values) == 0 {
		return nil
	}
	return m
}

func (s *Sink) AcceptRecord(key sensor.AppDeviceID, d *sensor.Data) {
	s.mu.RLock()
	box, ok := s.boxes[key]
	s.mu.RUnlock()
	if !ok {
		return
	}
	m := Message(d)
	if m == nil {
		return
	}
	s.Schedule(func() { s.upload(key, box, m) })
}

func (s *Sink) upload(key sensor.AppDeviceID, box string, m *senscom.Message) {
	u := fmt.Sprintf("%s/boxes/%s/data?luftdaten=true", s.url, url.PathEscape(box))
	if _, err := s.Post(u, m, nil); err != nil {
		level.Warn(s.logger).Log("msg", "upload failed", "device", key, "box_id", box, "error", err)
		return
	}
	level.Debug(s.logger).Log("msg", "upload done", "device", key, "box_id", box)
}
