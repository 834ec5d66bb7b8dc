package sensorbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/akhenakh/sensorbridge/metrics"
	"github.com/akhenakh/sensorbridge/sensor"
)

const (
	DefaultRefreshInterval = 60 * time.Minute
	DefaultRegistryTimeout = 20 * time.Second
)

// Registry lists the devices of an application with their attributes.
type Registry interface {
	ListDevices(ctx context.Context) ([]sensor.Device, error)
}

// AttributeStore holds the current directory, replaced as a whole.
type AttributeStore struct {
	v atomic.Value
}

func NewAttributeStore() *AttributeStore {
	s := &AttributeStore{}
	s.v.Store(sensor.Directory{})
	return s
}

// Load returns the current directory, callers must not modify it.
func (s *AttributeStore) Load() sensor.Directory {
	return s.v.Load().(sensor.Directory)
}

func (s *AttributeStore) Store(dir sensor.Directory) {
	if dir == nil {
		dir = sensor.Directory{}
	}
	s.v.Store(dir)
}

type RefresherConfig struct {
	Interval time.Duration
	// Timeout applies to each registry query
	Timeout time.Duration
}

// Refresher periodically rebuilds the attribute directory from the registries.
type Refresher struct {
	logger     log.Logger
	store      *AttributeStore
	registries map[string]Registry
	listeners  []AttributeListener
	config     RefresherConfig
}

func NewRefresher(logger log.Logger, store *AttributeStore, registries map[string]Registry,
	cfg RefresherConfig, listeners ...AttributeListener) *Refresher {
	logger = log.With(logger, "component", "refresher")
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRegistryTimeout
	}
	return &Refresher{
		logger:     logger,
		store:      store,
		registries: registries,
		listeners:  listeners,
		config:     cfg,
	}
}

// Run refreshes right away then at every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

type appResult struct {
	appID   string
	devices []sensor.Device
	err     error
}

// Refresh queries every registry, publishes the new directory then notifies the listeners.
// An application whose query fails keeps its previous entries.
func (r *Refresher) Refresh(ctx context.Context) sensor.Directory {
	previous := r.store.Load()

	results := make(chan appResult, len(r.registries))
	var wg sync.WaitGroup
	for appID, reg := range r.registries {
		appID, reg := appID, reg
		wg.Add(1)
		go func() {
			defer wg.Done()
			level.Info(r.logger).Log("msg", "fetching application attributes", "app_id", appID)
			devices, err := r.query(ctx, reg)
			results <- appResult{appID: appID, devices: devices, err: err}
		}()
	}
	wg.Wait()
	close(results)

	dir := make(sensor.Directory)
	for res := range results {
		if res.err != nil {
			err := &RegistryQueryError{AppID: res.appID, Err: res.err}
			level.Warn(r.logger).Log("msg", "keeping previous attributes", "app_id", res.appID, "error", err)
			metrics.RegistryRefreshCounter.WithLabelValues(res.appID, metrics.ResultError).Inc()
			for k, v := range previous.Application(res.appID) {
				dir[k] = v
			}
			continue
		}
		metrics.RegistryRefreshCounter.WithLabelValues(res.appID, metrics.ResultOK).Inc()
		for _, dev := range res.devices {
			attrs := make(sensor.AttributeMap, len(dev.Attributes))
			for k, v := range dev.Attributes {
				attrs[k] = v
			}
			dir[sensor.AppDeviceID{AppID: res.appID, DevID: dev.DevID}] = attrs
		}
	}

	r.store.Store(dir)
	level.Info(r.logger).Log("msg", "fetching application attributes done", "devices", len(dir))

	for _, l := range r.listeners {
		r.notify(l, dir)
	}
	return dir
}

// query bounds the registry call by the timeout even if the registry ignores its context.
func (r *Refresher) query(ctx context.Context, reg Registry) ([]sensor.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	type result struct {
		devices []sensor.Device
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		devices, err := reg.ListDevices(ctx)
		ch <- result{devices, err}
	}()

	select {
	case res := <-ch:
		return res.devices, res.err
	case <-ctx.Done():
		return nil, ErrRegistryTimeout
	}
}

func (r *Refresher) notify(l AttributeListener, dir sensor.Directory) {
	defer func() {
		if rec := recover(); rec != nil {
			level.Error(r.logger).Log("msg", "attributes listener panicked", "error", fmt.Sprint(rec))
		}
	}()
	l.AcceptAttributes(dir)
}
