package sensorbridge

import (
	"sync"

	"github.com/akhenakh/sensorbridge/sensor"
)

type received struct {
	key  sensor.AppDeviceID
	data *sensor.Data
}

type fakeSink struct {
	name    string
	records chan received
	dirs    chan sensor.Directory

	mu      sync.Mutex
	starts  int
	stops   int
	onAcc   func()
	onStop  func()
	startFn func() error
}

func newFakeSink(name string) *fakeSink {
	return &fakeSink{
		name:    name,
		records: make(chan received, 100),
		dirs:    make(chan sensor.Directory, 100),
	}
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Start() error {
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	if s.startFn != nil {
		return s.startFn()
	}
	return nil
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	if s.onStop != nil {
		s.onStop()
	}
}

func (s *fakeSink) AcceptRecord(key sensor.AppDeviceID, data *sensor.Data) {
	if s.onAcc != nil {
		s.onAcc()
	}
	s.records <- received{key: key, data: data}
}

func (s *fakeSink) AcceptAttributes(dir sensor.Directory) {
	s.dirs <- dir
}

type fakeCommander struct {
	ups  chan sensor.Uplink
	dirs chan sensor.Directory
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{
		ups:  make(chan sensor.Uplink, 10),
		dirs: make(chan sensor.Directory, 10),
	}
}

func (c *fakeCommander) Start() error                         { return nil }
func (c *fakeCommander) Stop()                                {}
func (c *fakeCommander) HandleResponse(up sensor.Uplink)      { c.ups <- up }
func (c *fakeCommander) AcceptAttributes(dir sensor.Directory) { c.dirs <- dir }

type capturePublisher struct {
	got []received
}

func (p *capturePublisher) Publish(key sensor.AppDeviceID, data *sensor.Data) {
	p.got = append(p.got, received{key: key, data: data})
}
