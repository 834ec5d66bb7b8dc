// Package archive stores every positioned record in the local geo index.
package archive

import (
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/geo"
	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/storage"
	"github.com/akhenakh/sensorbridge/worker"
)

const (
	Name = "archive"

	AttrLatitude  = "latitude"
	AttrLongitude = "longitude"
)

type Sink struct {
	logger log.Logger
	idx    storage.Indexer
	queue  *worker.Queue

	// StopTimeout bounds the wait for pending inserts
	StopTimeout time.Duration

	mu        sync.RWMutex
	positions map[sensor.AppDeviceID]geo.Location
}

func New(logger log.Logger, idx storage.Indexer) *Sink {
	logger = log.With(logger, "component", "sink", "sink", Name)
	return &Sink{
		logger:      logger,
		idx:         idx,
		queue:       worker.NewQueue(logger, 1000),
		StopTimeout: 5 * time.Second,
		positions:   make(map[sensor.AppDeviceID]geo.Location),
	}
}

func (s *Sink) Name() string { return Name }

func (s *Sink) Start() error {
	s.queue.Start()
	return nil
}

func (s *Sink) Stop() {
	if err := s.queue.Stop(s.StopTimeout); err != nil {
		level.Warn(s.logger).Log("msg", "pending inserts dropped", "error", err)
	}
}

// AcceptAttributes keeps the registered position of the devices.
func (s *Sink) AcceptAttributes(dir sensor.Directory) {
	positions := make(map[sensor.AppDeviceID]geo.Location)
	for k, attrs := range dir {
		lat, okLat := attrs.Float(AttrLatitude)
		lng, okLng := attrs.Float(AttrLongitude)
		if okLat && okLng {
			positions[k] = geo.Location{Lat: lat, Lon: lng}
		}
	}
	s.mu.Lock()
	s.positions = positions
	s.mu.Unlock()
}

// Position returns the position reported in d or the registered one.
func (s *Sink) Position(key sensor.AppDeviceID, d *sensor.Data) (geo.Location, bool) {
	lat, okLat := d.Get(sensor.POS_LAT)
	lng, okLng := d.Get(sensor.POS_LON)
	if okLat && okLng {
		alt, _ := d.Get(sensor.POS_ALT)
		return geo.Location{Lat: lat, Lon: lng, Alt: alt}, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.positions[key]
	return loc, ok
}

func (s *Sink) AcceptRecord(key sensor.AppDeviceID, d *sensor.Data) {
	loc, ok := s.Position(key, d)
	if !ok {
		return
	}
	r := storage.Record{
		Key:  key.String(),
		Lat:  loc.Lat,
		Lng:  loc.Lon,
		Time: time.Now().UTC(),
		Data: d,
	}
	err := s.queue.Submit(func() {
		if err := s.idx.Store(r); err != nil {
			level.Error(s.logger).Log("msg", "can't store record", "device", key, "error", err)
			return
		}
		metrics.InsertCounter.Inc()
	})
	if err != nil {
		level.Warn(s.logger).Log("msg", "insert dropped", "device", key, "error", err)
	}
}
