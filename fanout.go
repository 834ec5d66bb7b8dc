package sensorbridge

import (
	"fmt"
	"sync"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
	"github.com/akhenakh/sensorbridge/worker"
)

const defaultMailboxSize = 256

// Fanout delivers records and attribute directories to every sink.
// Each sink gets its own mailbox so a slow or failing sink never delays the others.
type Fanout struct {
	logger    log.Logger
	mailboxes []*mailbox

	mu      sync.Mutex
	started bool
	stopped bool
}

type mailbox struct {
	sink    Sink
	logger  log.Logger
	records *worker.Queue

	// latest directory wins
	snapshots chan sensor.Directory
	quit      chan struct{}
	done      chan struct{}
}

// NewFanout returns a Fanout over sinks, mailboxSize bounds the pending records per sink.
func NewFanout(logger log.Logger, mailboxSize int, sinks ...Sink) *Fanout {
	logger = log.With(logger, "component", "fanout")
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	f := &Fanout{logger: logger}
	for _, s := range sinks {
		mlogger := log.With(logger, "sink", s.Name())
		f.mailboxes = append(f.mailboxes, &mailbox{
			sink:      s,
			logger:    mlogger,
			records:   worker.NewQueue(mlogger, mailboxSize),
			snapshots: make(chan sensor.Directory, 1),
			quit:      make(chan struct{}),
			done:      make(chan struct{}),
		})
	}
	return f
}

// Sinks returns the registered sinks.
func (f *Fanout) Sinks() []Sink {
	res := make([]Sink, len(f.mailboxes))
	for i, mb := range f.mailboxes {
		res[i] = mb.sink
	}
	return res
}

// Start starts every sink then the mailboxes, a sink failing to start is logged and skipped.
func (f *Fanout) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.stopped {
		return nil
	}
	f.started = true

	for _, mb := range f.mailboxes {
		var serr error
		err := mb.call("start", func() { serr = mb.sink.Start() })
		if err == nil {
			err = serr
		}
		if err != nil {
			level.Error(mb.logger).Log("msg", "can't start sink", "error", err)
		}
		mb.records.Start()
		go mb.runSnapshots()
	}
	return nil
}

// Publish hands data to every sink without blocking.
func (f *Fanout) Publish(key sensor.AppDeviceID, data *sensor.Data) {
	metrics.RecordCounter.Inc()
	for _, mb := range f.mailboxes {
		mb := mb
		err := mb.records.Submit(func() {
			if err := mb.call("record", func() { mb.sink.AcceptRecord(key, data) }); err != nil {
				report(mb.logger, err)
			}
		})
		if err != nil {
			report(mb.logger, &SinkDeliveryError{Sink: mb.sink.Name(), Op: "record", Err: err})
		}
	}
}

// AcceptAttributes hands dir to every sink, a directory not yet consumed by a sink is replaced.
func (f *Fanout) AcceptAttributes(dir sensor.Directory) {
	for _, mb := range f.mailboxes {
		mb.offer(dir)
	}
}

// Stop stops accepting work and stops every sink concurrently,
// waiting at most timeout for each of them.
func (f *Fanout) Stop(timeout time.Duration) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	started := f.started
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, mb := range f.mailboxes {
		mb := mb
		wg.Add(1)
		go func() {
			defer wg.Done()
			mb.stop(started, timeout)
		}()
	}
	wg.Wait()
	level.Info(f.logger).Log("msg", "all sinks stopped")
}

func (mb *mailbox) offer(dir sensor.Directory) {
	for {
		select {
		case mb.snapshots <- dir:
			return
		default:
		}
		// drop the stale directory
		select {
		case <-mb.snapshots:
		default:
		}
	}
}

func (mb *mailbox) runSnapshots() {
	defer close(mb.done)
	for {
		select {
		case <-mb.quit:
			return
		case dir := <-mb.snapshots:
			if err := mb.call("attributes", func() { mb.sink.AcceptAttributes(dir) }); err != nil {
				report(mb.logger, err)
			}
		}
	}
}

func (mb *mailbox) stop(started bool, timeout time.Duration) {
	if err := mb.records.Stop(timeout); err != nil {
		level.Warn(mb.logger).Log("msg", "pending records not delivered", "error", err)
	}
	if started {
		close(mb.quit)
		select {
		case <-mb.done:
		case <-time.After(timeout):
			level.Warn(mb.logger).Log("msg", "attributes delivery still running")
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := mb.call("stop", mb.sink.Stop); err != nil {
			report(mb.logger, err)
		}
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		level.Warn(mb.logger).Log("msg", "sink did not stop in time", "timeout", timeout)
	}
}

// call runs fn recovering from a panic into a SinkDeliveryError.
func (mb *mailbox) call(op string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			if !ok {
				rerr = fmt.Errorf("%v", r)
			}
			err = &SinkDeliveryError{Sink: mb.sink.Name(), Op: op, Err: rerr}
		}
	}()
	fn()
	return nil
}

func report(logger log.Logger, err error) {
	if serr, ok := err.(*SinkDeliveryError); ok {
		metrics.SinkErrorCounter.WithLabelValues(serr.Sink).Inc()
	}
	level.Warn(logger).Log("msg", "sink delivery failed", "error", err)
}
